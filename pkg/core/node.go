package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mahaj/chatcore/pkg/config"
	"github.com/mahaj/chatcore/pkg/db"
	"github.com/mahaj/chatcore/pkg/fanout"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/mahaj/chatcore/pkg/presence"
	"github.com/mahaj/chatcore/pkg/snowflake"
	"github.com/redis/go-redis/v9"
)

// Node is a Core plus the connections it was built on.
type Node struct {
	*Core

	Origin  string
	Relay   *fanout.KafkaRelay
	Session *db.Session
	Redis   *redis.Client
}

// Open connects the backends named by cfg and builds a Core over them.
// Redis and Kafka are optional; Scylla is required unless the memory store
// is selected. When the relay is enabled, unread counters are left to the
// inbox consumer.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger, rec metrics.Recorder) (*Node, error) {
	if log == nil {
		log = slog.Default()
	}
	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, err
	}
	n := &Node{Origin: nodeOrigin(cfg.NodeID)}

	stores := MemoryStores()
	if cfg.StoreDriver == config.StoreScylla {
		n.Session, err = db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
		if err != nil {
			return nil, fmt.Errorf("connect scylla: %w", err)
		}
		stores = ScyllaStores(n.Session)
	}

	d := Deps{
		Stores:      stores,
		IDs:         ids,
		Origin:      n.Origin,
		InlineInbox: !cfg.RelayEnabled(),
		Logger:      log,
		Metrics:     rec,
	}

	if cfg.RedisAddr != "" {
		n.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := n.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, online list falls back to local sessions",
				slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
			n.Redis.Close()
			n.Redis = nil
		} else {
			d.OnlineSet = presence.NewRedisOnlineSet(n.Redis)
		}
	}

	if cfg.RelayEnabled() {
		n.Relay = fanout.NewKafkaRelay(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		d.Relay = n.Relay
	}

	n.Core = New(d)
	return n, nil
}

func (n *Node) Close() error {
	var errs []error
	if n.Relay != nil {
		errs = append(errs, n.Relay.Close())
	}
	if n.Redis != nil {
		errs = append(errs, n.Redis.Close())
	}
	if n.Session != nil {
		n.Session.Close()
	}
	return errors.Join(errs...)
}

// nodeOrigin is unique per process so that restarted nodes with the same
// NODE_ID do not drop each other's envelopes.
func nodeOrigin(id int64) string {
	host, err := os.Hostname()
	if err != nil {
		host = "node"
	}
	return host + "-" + strconv.FormatInt(id, 10) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
