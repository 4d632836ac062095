// stepwised runs inside a sandbox container and serves the workspace over a
// single websocket connection, eliminating a process spawn per host command.
// The wire protocol is JSON request/response; see the sandbox package.
//
// Environment variables:
//
//	DAEMON_LISTEN   — listen address (default "0.0.0.0:9090")
//	DAEMON_WORKDIR  — workspace root (default "/workspace")
//	DAEMON_TIMEOUT  — per-command timeout in seconds (default 120)
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stepwise/sandbox"
)

func main() {
	listenAddr := envOr("DAEMON_LISTEN", "0.0.0.0:9090")
	workdir := envOr("DAEMON_WORKDIR", "/workspace")
	timeout, _ := strconv.ParseFloat(envOr("DAEMON_TIMEOUT", "120"), 64)

	local := sandbox.NewLocal(workdir, timeout, 0)

	mux := http.NewServeMux()
	mux.Handle("/sandbox", sandbox.NewDaemon(local))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:        listenAddr,
		Handler:     mux,
		ReadTimeout: 0, // long-lived websocket connections
		IdleTimeout: 0,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
		<-sig
		log.Println("stepwised shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Printf("stepwised listening on %s (workspace=%s)", listenAddr, local.Workdir())
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
