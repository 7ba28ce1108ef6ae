package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Addr            string
	DatabaseURL     string
	AdminJWTSecret  string
	KafkaBrokers    []string
	KafkaTopic      string
	SnapshotBucket  string
	SnapshotPrefix  string
	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration
}

const (
	defaultAddr            = ":8070"
	defaultKafkaTopic      = "pricing.audit"
	defaultStoreTimeout    = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("PRICING_ADDR", defaultAddr),
		DatabaseURL:     firstNonEmpty(os.Getenv("PRICING_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		AdminJWTSecret:  os.Getenv("PRICING_ADMIN_JWT_SECRET"),
		KafkaBrokers:    splitList(os.Getenv("PRICING_KAFKA_BROKERS")),
		KafkaTopic:      getEnv("PRICING_KAFKA_TOPIC", defaultKafkaTopic),
		SnapshotBucket:  os.Getenv("PRICING_SNAPSHOT_BUCKET"),
		SnapshotPrefix:  os.Getenv("PRICING_SNAPSHOT_PREFIX"),
		StoreTimeout:    getDuration("PRICING_STORE_TIMEOUT", defaultStoreTimeout),
		ShutdownTimeout: getDuration("PRICING_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or PRICING_DATABASE_URL required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
