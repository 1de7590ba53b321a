package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/perf-brain/internal/app"
	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "path to config.yaml")
	once := flag.Bool("once", false, "run a single pass over all organizations and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	brain, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize brain: %v", err)
	}
	defer brain.Close()

	scheduler := worker.NewScheduler(brain.Orgs, brain.Engine, cfg.Scheduler.Interval(), cfg.Scheduler.Concurrency)

	if *once {
		stats, err := scheduler.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Scheduled pass failed: %v", err)
		}
		log.Printf("Done: %d organizations, %d succeeded, %d skipped, %d failed",
			stats.Organizations, stats.Succeeded, stats.Skipped, stats.Failed)
		if stats.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Printf("Brain worker running (every %s, concurrency %d)", cfg.Scheduler.Interval(), cfg.Scheduler.Concurrency)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down worker...")
	scheduler.Stop()
	log.Println("Worker stopped")
}
