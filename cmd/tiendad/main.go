// cmd/tiendad/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tiendaonline/tienda-api/internal/catalog"
	"github.com/tiendaonline/tienda-api/internal/config"
	"github.com/tiendaonline/tienda-api/internal/lifecycle"
	"github.com/tiendaonline/tienda-api/internal/server"
	"github.com/tiendaonline/tienda-api/internal/storage"
	"github.com/tiendaonline/tienda-api/internal/telemetry"
	"github.com/tiendaonline/tienda-api/internal/webhook"
)

const (
	serviceName     = "tiendad"
	shutdownTimeout = 10 * time.Second
)

// app holds everything main starts and stops.
type app struct {
	handler    http.Handler
	backend    storage.Backend
	supervisor *lifecycle.Supervisor
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.SetupProvider(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		logger.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	a, err := build(cfg, logger, os.Exit)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	// The listener does not wait for the database.
	a.supervisor.Start(context.Background())

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("tiendad starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           server.NewMetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listener starting", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	if err := a.backend.Disconnect(ctx); err != nil {
		logger.Error("database disconnect failed", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("telemetry shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// build wires storage, the supervisor, the route groups and the ingress
// pipeline without starting anything.
func build(cfg config.Config, logger *slog.Logger, exit func(int)) (*app, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	supervisor := lifecycle.New(backend, logger,
		lifecycle.WithExit(exit),
		lifecycle.WithTimeout(cfg.MongoConnectTimeout),
	)

	groups := make(map[string]http.Handler, len(server.Prefixes))
	for _, m := range catalog.Mounts(backend, logger) {
		groups[m.Prefix] = m.Group
	}
	receiver := webhook.New(backend, logger,
		webhook.WithSecret(cfg.WebhookSecret),
		webhook.WithTolerance(cfg.WebhookTolerance),
	)
	groups[server.WebhookPrefix] = receiver.Routes()

	mounts := make([]server.Mount, 0, len(server.Prefixes))
	for _, prefix := range server.Prefixes {
		mounts = append(mounts, server.Mount{Prefix: prefix, Group: groups[prefix]})
	}

	h, err := server.New(server.Options{
		Config:    cfg,
		Mounts:    mounts,
		Readiness: supervisor,
		Pinger:    backend,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build server: %w", err)
	}
	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	return &app{
		handler:    telemetry.Middleware(h, "tienda.api"),
		backend:    backend,
		supervisor: supervisor,
	}, nil
}

func newBackend(cfg config.Config) (storage.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendMongo, "":
		return storage.NewMongo(cfg.MongoURI, cfg.MongoDatabase), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
