package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/perf-brain/internal/api"
	"github.com/ignite/perf-brain/internal/app"
	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v\n"+
			"  Hint: Run 'lsof -i :<port>' to find the blocking process", addr, err)
	}
	return ln.Close()
}

func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}
	return ""
}

func main() {
	cfgFlag := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.LoadFromEnv(configPath(*cfgFlag))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx := context.Background()
	brain, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize brain: %v", err)
	}
	defer brain.Close()

	// The scheduler can run in-process for single-node installs.
	var scheduler *worker.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = worker.NewScheduler(brain.Orgs, brain.Engine, cfg.Scheduler.Interval(), cfg.Scheduler.Concurrency)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		log.Printf("Scheduler started (every %s, concurrency %d)", cfg.Scheduler.Interval(), cfg.Scheduler.Concurrency)
	}

	router := api.SetupRoutes(api.NewHandlers(brain.Engine), brain.HealthChecker(), cfg.Server.CORSOrigins, brain.Registry)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s (config %s)", addr, cfg.Brain.Fingerprint())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}

	// Leave in-flight cycles time to persist.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Brain.CycleTimeout()+10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
