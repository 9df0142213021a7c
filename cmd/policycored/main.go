package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/policycore/internal/policy/common/log"
	"github.com/haukened/policycore/internal/policy/config"
	"github.com/haukened/policycore/internal/policy/core"
)

const (
	version = "0.1.0-dev"
	appName = "policycored"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"store_path": cfg.Store.Path,
		"pool":       cfg.Pool,
		"cache_size": cfg.Cache.Size,
	}, "starting "+appName)

	c, err := core.Open(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to open policy core")
	}

	if c.Degraded() {
		log.Warn(nil, "policy core running in pass-through mode: no store configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	<-ctx.Done()

	if err := c.Close(); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "error closing policy core")
	}

	log.Info(nil, appName+" stopped gracefully")
}
