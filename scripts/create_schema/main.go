// Command create_schema creates the keyspace and every table if missing.
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
	replication := flag.Int("replication", 1, "keyspace replication factor")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, "create_schema", cfg.LogLevel)

	if err := db.EnsureSchema(context.Background(), cfg.ScyllaHosts, cfg.ScyllaKeyspace, *replication); err != nil {
		log.Error("schema creation failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("schema ready", slog.String("keyspace", cfg.ScyllaKeyspace), slog.Int("tables", len(db.Tables)))
}
