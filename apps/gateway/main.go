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
	log := logger.SetupDefault(os.Stdout, "gateway", cfg.LogLevel)

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

	signer := auth.NewSigner(cfg.JWTSecret, cfg.JWTTTL)
	hub := NewHub(node.Core, signer, HubConfig{
		EventRate:     cfg.EventRate,
		EventBurst:    cfg.EventBurst,
		AllowedOrigin: cfg.CORSAllowedOrigin,
	}, log, rec)

	if node.Relay != nil {
		go func() {
			if err := hub.Run(ctx, node.Relay, "gateway-"+node.Origin); err != nil {
				log.Error("relay consumer stopped", slog.Any("error", err))
			}
		}()
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Core:              node.Core,
		Signer:            signer,
		Gatherer:          reg,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimit:         rate.Limit(cfg.EventRate),
		RateBurst:         cfg.EventBurst,
		Logger:            log,
	})
	router.Get("/ws", hub.ServeWs)

	srv := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway starting", slog.String("addr", cfg.GatewayAddr), slog.String("origin", node.Origin))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
