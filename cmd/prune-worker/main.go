package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/store"
)

// prune-worker deletes availability entries whose date has passed, so stale
// slots never show up as bookable.
func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.Env)
	if err != nil {
		log.Error("config load error", "error", err)
		os.Exit(1)
	}

	log.Info("prune-worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(rootCtx, cfg, log)
	if err != nil {
		log.Error("backend setup error", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	svc := booking.NewService(backend.Repo, backend.Locker, cfg, booking.WithLogger(log))

	// Run once at startup
	runOnce(rootCtx, log, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping prune worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, svc)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, svc *booking.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.PrunePastAvailability(runCtx)
	if err != nil {
		log.Error("prune run error", "error", err)
		return
	}
	log.Info("prune run complete", "deleted", n, "duration", time.Since(start))
}
