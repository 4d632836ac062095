// Package config loads server configuration from CLI flags plus environment
// variables, and agent definitions from a YAML file.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"stepwise/agent"
)

// AppConfig holds server-level runtime configuration.
type AppConfig struct {
	Host       string
	Port       int
	ConfigFile string
}

// LoadAppConfig reads configuration from CLI flags and environment variables.
// CLI flags take precedence over env vars.
func LoadAppConfig() *AppConfig {
	host := flag.String("host", "", "Listen host (env: HOST, default: 0.0.0.0)")
	port := flag.Int("port", 0, "Listen port (env: PORT, default: 8000)")
	configFile := flag.String("config", "", "Path to agents.yaml config file (env: STEPWISE_CONFIG)")
	flag.Parse()

	cfg := &AppConfig{
		Host:       envOr("HOST", "0.0.0.0"),
		Port:       envIntOr("PORT", 8000),
		ConfigFile: os.Getenv("STEPWISE_CONFIG"),
	}

	// CLI flags override env
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *configFile != "" {
		cfg.ConfigFile = *configFile
	}

	return cfg
}

// Addr returns the listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// File is the top-level structure of agents.yaml.
type File struct {
	Defaults *Defaults                     `yaml:"defaults"`
	Agents   map[string]*agent.AgentConfig `yaml:"agents"`
}

// Defaults apply to every agent that doesn't set its own value.
type Defaults struct {
	Sandbox *agent.SandboxCfg `yaml:"sandbox"`
	Planner *agent.PlannerCfg `yaml:"planner"`
	Debug   bool              `yaml:"debug"`
}

// LoadAgentsFile reads agents.yaml, merges defaults into each agent and
// resolves relative paths against the config file's directory.
func LoadAgentsFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	configDir, _ := filepath.Abs(filepath.Dir(path))

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("config %s defines no agents", path)
	}

	for id, agentCfg := range cfg.Agents {
		if agentCfg == nil {
			return nil, fmt.Errorf("agent %q has an empty definition", id)
		}
		mergeDefaults(agentCfg, cfg.Defaults)

		if agentCfg.Sandbox != nil && agentCfg.Sandbox.Workdir != "" && !filepath.IsAbs(agentCfg.Sandbox.Workdir) {
			agentCfg.Sandbox.Workdir = filepath.Join(configDir, agentCfg.Sandbox.Workdir)
		}
		if agentCfg.PromptsFile != "" && !filepath.IsAbs(agentCfg.PromptsFile) {
			agentCfg.PromptsFile = filepath.Join(configDir, agentCfg.PromptsFile)
		}
	}

	return &cfg, nil
}

func mergeDefaults(cfg *agent.AgentConfig, def *Defaults) {
	if def == nil {
		return
	}
	if cfg.Sandbox == nil && def.Sandbox != nil {
		sb := *def.Sandbox
		cfg.Sandbox = &sb
	}
	if def.Planner != nil {
		if cfg.Planner.MaxAnomalies == 0 {
			cfg.Planner.MaxAnomalies = def.Planner.MaxAnomalies
		}
		if cfg.Planner.LoopWindow == 0 {
			cfg.Planner.LoopWindow = def.Planner.LoopWindow
		}
		if cfg.Planner.MaxReplans == 0 {
			cfg.Planner.MaxReplans = def.Planner.MaxReplans
		}
		if cfg.Planner.MaxIterations == 0 {
			cfg.Planner.MaxIterations = def.Planner.MaxIterations
		}
	}
	if !cfg.Debug && def.Debug {
		cfg.Debug = true
	}
}

// envOr returns the environment variable or a default value.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envIntOr returns the environment variable as int or a default value.
func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
