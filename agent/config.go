package agent

// AgentConfig is one agent definition from agents.yaml.
type AgentConfig struct {
	Name         string      `yaml:"name" json:"name"`
	Model        any         `yaml:"model" json:"model"` // string ("ollama:model") or map (provider/model/api_key/base_url)
	SystemPrompt string      `yaml:"system_prompt" json:"system_prompt"` // overrides the prompts file when set
	PromptsFile  string      `yaml:"prompts_file" json:"prompts_file"`
	Tools        []string    `yaml:"tools" json:"tools"` // builtin tool names to enable; empty = all
	Sandbox      *SandboxCfg `yaml:"sandbox" json:"sandbox"`
	Planner      PlannerCfg  `yaml:"planner" json:"planner"`
	Debug        bool        `yaml:"debug" json:"debug"`
}

// SandboxCfg holds execution-environment configuration.
type SandboxCfg struct {
	Type           string  `yaml:"type" json:"type"` // "local", "remote"
	Workdir        string  `yaml:"workdir" json:"workdir"`
	Timeout        float64 `yaml:"timeout" json:"timeout"` // seconds
	MaxOutputBytes int     `yaml:"max_output_bytes" json:"max_output_bytes"`
	URL            string  `yaml:"url" json:"url"` // remote daemon websocket URL
}

// PlannerCfg tunes the plan supervision heuristics.
type PlannerCfg struct {
	MaxAnomalies  int `yaml:"max_anomalies" json:"max_anomalies"`   // default 3
	LoopWindow    int `yaml:"loop_window" json:"loop_window"`       // default 6
	MaxReplans    int `yaml:"max_replans" json:"max_replans"`       // default 2
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"` // per turn / per step; default 25
}

// ModelStr extracts a display string from the Model field (string or map).
func (c *AgentConfig) ModelStr() string {
	switch v := c.Model.(type) {
	case string:
		return v
	case map[string]any:
		prov, _ := v["provider"].(string)
		model, _ := v["model"].(string)
		if prov != "" && model != "" {
			return prov + ":" + model
		}
		if model != "" {
			return model
		}
		return prov
	default:
		return ""
	}
}
