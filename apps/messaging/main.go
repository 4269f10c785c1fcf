// Command messaging bootstraps the schema and keeps inbox state current
// from the relay topic.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/chatcore/pkg/config"
	"github.com/mahaj/chatcore/pkg/db"
	"github.com/mahaj/chatcore/pkg/fanout"
	"github.com/mahaj/chatcore/pkg/logger"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, "messaging", cfg.LogLevel)

	if cfg.StoreDriver != config.StoreScylla || !cfg.RelayEnabled() {
		log.Error("messaging needs the scylla store and kafka brokers")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.EnsureSchema(ctx, cfg.ScyllaHosts, cfg.ScyllaKeyspace, 1); err != nil {
		log.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Error("failed to connect to scylla", slog.Any("error", err))
		os.Exit(1)
	}
	defer session.Close()

	relay := fanout.NewKafkaRelay(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	defer relay.Close()

	consumer := NewConsumer(store.NewScyllaInbox(session), log)

	log.Info("inbox consumer starting", slog.String("group_id", cfg.KafkaGroupID), slog.String("topic", cfg.KafkaTopic))
	err = relay.Consume(ctx, cfg.KafkaGroupID, func(env model.Envelope) {
		consumer.Handle(ctx, env)
	})
	if err != nil {
		log.Error("consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("inbox consumer stopped")
}
