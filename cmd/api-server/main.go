package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/booking/metrics"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/store"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.Env)
	if err != nil {
		log.Error("config load error", "error", err)
		os.Exit(1)
	}

	log.Info("api-server starting up",
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"store", cfg.StoreBackend,
		"lock", cfg.LockBackend,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(rootCtx, cfg, log)
	if err != nil {
		log.Error("backend setup error", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := booking.NewService(backend.Repo, backend.Locker, cfg,
		booking.WithMetrics(metrics.New(reg)),
		booking.WithLogger(log),
	)

	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	deps := make(map[string]api.Pinger, len(backend.Deps))
	for name, ping := range backend.Deps {
		deps[name] = ping
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:        svc,
			Logger:         log,
			JWTSecret:      cfg.JWTSecret,
			Limiter:        limiter,
			RequestTimeout: cfg.RequestTimeout,
			Gatherer:       reg,
			Deps:           deps,
			Env:            cfg.Env,
			Version:        version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		limiter.Run(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("api-server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("api-server stopped")
}
