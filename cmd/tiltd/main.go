package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tiltview/internal/config"
	"tiltview/internal/logging"
	"tiltview/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
	}

	logs := web.NewLogBuffer(cfg.Log.Lines)
	out := logging.Setup(logging.Config{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, logs)
	defer out.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("tiltview starting")
	rt, err := startRuntime(ctx, cfg, logs)
	if err != nil {
		log.Printf("startup failed: %v", err)
		cancel()
		out.Close()
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case err := <-rt.webErr:
		if err != nil {
			log.Printf("web server stopped: %v", err)
		}
	}
	log.Printf("tiltview stopping")
	cancel()
	rt.Close()
}
