package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/escalation"
	"github.com/pulseboard/pulseboard/internal/gateway"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/notify"
	"github.com/pulseboard/pulseboard/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("pulseboard-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"heartbeat", cfg.Server.Heartbeat,
		"idle_timeout", cfg.Escalation.IdleTimeout,
		"signal_window", cfg.Escalation.SignalWindow,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Live metrics aggregate — the single writer for shared counters.
	agg := metrics.New().EnablePrometheus()

	// Escalation detector with background idle-session sweep.
	det := escalation.New(cfg.Escalation)
	go det.Run(ctx)

	// Broadcast hub with per-observer heartbeats.
	hub := ws.New(agg, cfg.Server.Heartbeat, cfg.Server.ObserverBuffer)
	go hub.Run(ctx)

	// Notification dispatcher: observer broadcast plus SMS backstop.
	disp := notify.New(hub, cfg.Notifications)

	// Rate limiter: Redis-backed when configured, in-process otherwise.
	var limiter gateway.RateLimiter
	if addr := cfg.Server.RateLimit.RedisAddr; addr != "" {
		limiter, err = gateway.NewRedisLimiter(addr, cfg.Server.RateLimit.RedisPassword, cfg.Server.RateLimit.RedisDB)
		if err != nil {
			slog.Error("redis rate limiter unavailable — falling back to in-process", "addr", addr, "err", err)
			limiter = nil
		}
	}

	gw := gateway.New(agg, det, disp, hub, cfg.Server.RateLimit, limiter)
	defer gw.Close()

	// Hot-reload escalation and notification tunables on config writes.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			det.UpdateRules(next.Escalation)
			disp.UpdateConfig(next.Notifications)
		})
		if err != nil {
			slog.Error("config watch stopped", "err", err)
		}
	}()

	httpMux := http.NewServeMux()
	httpMux.Handle("/webhook/", http.TimeoutHandler(gw, cfg.Server.RequestTimeout,
		`{"success":false,"error":"request timed out"}`))
	httpMux.Handle("/api/", api.New(agg, det, hub))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", agg.Handler())

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("pulseboard-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
	disp.Close()
}
