package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"speedo/internal/config"
)

func main() {
	var configPath string
	var autostart bool
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.BoolVar(&autostart, "autostart", false, "Start a tracking session immediately")
	flag.Parse()

	// Optional .env for per-host overrides; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}
	defer rt.Close()

	log.Printf("speedo starting source=%s web=%v", cfg.Location.Source, cfg.Web.Enable)

	if err := rt.Run(ctx, autostart); err != nil && ctx.Err() == nil {
		log.Fatalf("runtime stopped: %v", err)
	}
	log.Printf("speedo stopping")
}
