// Command drop_schema drops every table in the configured keyspace.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/mahaj/chatcore/pkg/config"
	"github.com/mahaj/chatcore/pkg/db"
	"github.com/mahaj/chatcore/pkg/logger"
)

func main() {
	confirm := flag.Bool("yes", false, "required; drops all chat data")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, "drop_schema", cfg.LogLevel)

	if !*confirm {
		log.Error("refusing to drop tables without -yes", slog.String("keyspace", cfg.ScyllaKeyspace))
		os.Exit(2)
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Error("failed to connect to scylla", slog.Any("error", err))
		os.Exit(1)
	}
	defer session.Close()

	if err := db.DropSchema(context.Background(), session); err != nil {
		log.Error("drop failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("tables dropped", slog.String("keyspace", cfg.ScyllaKeyspace))
}
