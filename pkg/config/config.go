// Package config loads process settings from the environment once at start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreScylla = "scylla"
	StoreMemory = "memory"
)

// Config is immutable after Load.
type Config struct {
	// Storage
	StoreDriver    string
	ScyllaHosts    []string
	ScyllaKeyspace string

	// Presence mirror. Empty disables it.
	RedisAddr string

	// Relay. Empty brokers disables it.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// Servers
	GatewayAddr string
	APIAddr     string
	NodeID      int64

	// Per-connection inbound event limit
	EventRate  float64
	EventBurst int

	CORSAllowedOrigin string
	LogLevel          string
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreDriver:       getEnvString("STORE_DRIVER", StoreScylla),
		ScyllaHosts:       getEnvList("SCYLLA_HOSTS", "localhost:9042"),
		ScyllaKeyspace:    getEnvString("SCYLLA_KEYSPACE", "chat"),
		RedisAddr:         getEnvString("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:      getEnvList("KAFKA_BROKERS", "localhost:19092"),
		KafkaTopic:        getEnvString("KAFKA_TOPIC", "chat-events"),
		KafkaGroupID:      getEnvString("KAFKA_GROUP_ID", "messaging-service-group"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTTTL:            getEnvDuration("JWT_TTL", 24*time.Hour),
		GatewayAddr:       getEnvString("GATEWAY_ADDR", ":8080"),
		APIAddr:           getEnvString("API_ADDR", ":8081"),
		NodeID:            getEnvInt64("NODE_ID", 1),
		EventRate:         getEnvFloat("EVENT_RATE", 20),
		EventBurst:        getEnvInt("EVENT_BURST", 40),
		CORSAllowedOrigin: getEnvString("CORS_ALLOWED_ORIGIN", "*"),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
	}

	if v, ok := os.LookupEnv("REDIS_ADDR"); ok && v == "" {
		cfg.RedisAddr = ""
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v == "" {
		cfg.KafkaBrokers = nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case StoreScylla:
		if len(c.ScyllaHosts) == 0 {
			problems = append(problems, "SCYLLA_HOSTS is required for the scylla store")
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		problems = append(problems, "NODE_ID must be between 0 and 1023")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RelayEnabled reports whether fanout envelopes are shared over Kafka.
func (c *Config) RelayEnabled() bool { return len(c.KafkaBrokers) > 0 }

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvList(key, defaultVal string) []string {
	raw := getEnvString(key, defaultVal)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
