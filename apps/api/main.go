// Command api serves the HTTP surface without holding websocket sessions.
// Events it produces reach clients through the relay and the gateways.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahaj/chatcore/pkg/auth"
	"github.com/mahaj/chatcore/pkg/config"
	"github.com/mahaj/chatcore/pkg/core"
	"github.com/mahaj/chatcore/pkg/httpapi"
	"github.com/mahaj/chatcore/pkg/logger"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, "api", cfg.LogLevel)

	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("memory store is not shared with the gateway; use it for local testing only")
	}
	if !cfg.RelayEnabled() {
		log.Warn("relay disabled; events produced here reach no websocket clients")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	node, err := core.Open(ctx, cfg, log, rec)
	if err != nil {
		log.Error("failed to start node", slog.Any("error", err))
		os.Exit(1)
	}
	defer node.Close()

	router := httpapi.NewRouter(httpapi.Deps{
		Core:              node.Core,
		Signer:            auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL),
		Gatherer:          reg,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimit:         rate.Limit(cfg.EventRate),
		RateBurst:         cfg.EventBurst,
		Logger:            log,
	})

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("api starting", slog.String("addr", cfg.APIAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
