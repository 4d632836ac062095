package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"stepwise/agent"
	"stepwise/config"
	"stepwise/handlers"
	"stepwise/llm"
	"stepwise/prompts"
	"stepwise/sandbox"
	"stepwise/tools"
)

func main() {
	appCfg := config.LoadAppConfig()

	agentID, agentCfg := selectAgent(appCfg)

	client, model, err := llm.Resolve(agentCfg.Model)
	if err != nil {
		log.Fatalf("Resolve model for agent %q: %v", agentID, err)
	}

	sb, local := buildSandbox(agentCfg.Sandbox)

	registry := tools.NewRegistry()
	for _, t := range tools.SandboxTools(sb) {
		if !toolEnabled(agentCfg.Tools, t.Name()) {
			continue
		}
		if err := registry.Register(t); err != nil {
			log.Fatalf("Register tool %s: %v", t.Name(), err)
		}
	}

	prov := prompts.Default()
	if agentCfg.PromptsFile != "" {
		prov, err = prompts.LoadFile(agentCfg.PromptsFile)
		if err != nil {
			log.Fatalf("Load prompts: %v", err)
		}
	}

	a := agent.New(agentID, agentCfg, client, model, registry, prov)

	mux := http.NewServeMux()
	handlers.New(a, local).Register(mux)

	srv := &http.Server{
		Addr:         appCfg.Addr(),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // disable for SSE
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Printf("stepwise starting on %s (agent=%s, model=%s, workspace=%s)",
		appCfg.Addr(), agentID, model, sb.Workdir())
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// selectAgent loads agents.yaml when configured, preferring the agent named
// "default", then the first by name. Without a config file a local Ollama
// agent is used.
func selectAgent(appCfg *config.AppConfig) (string, *agent.AgentConfig) {
	if appCfg.ConfigFile == "" {
		return "default", &agent.AgentConfig{
			Name:  "default",
			Model: "ollama:qwen2.5-coder",
		}
	}

	log.Printf("Loading config from %s", appCfg.ConfigFile)
	cfg, err := config.LoadAgentsFile(appCfg.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if agentCfg, ok := cfg.Agents["default"]; ok {
		return "default", agentCfg
	}
	ids := make([]string, 0, len(cfg.Agents))
	for id := range cfg.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0], cfg.Agents[ids[0]]
}

// buildSandbox creates the execution environment. Returns the sandbox plus
// the local instance when applicable (the terminal endpoint needs it).
func buildSandbox(cfg *agent.SandboxCfg) (sandbox.Sandbox, *sandbox.Local) {
	if cfg == nil {
		local := sandbox.NewLocal("", 0, 0)
		return local, local
	}
	switch cfg.Type {
	case "remote":
		remote, err := sandbox.DialRemote(cfg.URL, cfg.Workdir, cfg.Timeout)
		if err != nil {
			log.Fatalf("Connect remote sandbox %s: %v", cfg.URL, err)
		}
		return remote, nil
	default:
		local := sandbox.NewLocal(cfg.Workdir, cfg.Timeout, cfg.MaxOutputBytes)
		return local, local
	}
}

func toolEnabled(enabled []string, name string) bool {
	if len(enabled) == 0 {
		return true
	}
	for _, n := range enabled {
		if n == name {
			return true
		}
	}
	return false
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
