package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"strata/internal/config"
	"strata/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "configuration file path")
		workerMode = flag.Bool("worker", false, "run as a task-queue worker instead of the daemon (nats backend only)")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	if *workerMode {
		if err := runWorker(ctx, cfg, logger); err != nil {
			log.Fatalf("worker: %v", err)
		}
		return
	}

	if err := runDaemon(ctx, cfg, logger); err != nil {
		log.Fatalf("daemon: %v", err)
	}
}
