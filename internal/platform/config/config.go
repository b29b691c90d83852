package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	// AllocatorURL points at the external yield allocator; empty means
	// the vault runs on local reserve alone.
	AllocatorURL string

	// BridgeURL points at the settlement dispatcher used to pay out
	// finalized withdrawals.
	BridgeURL string

	KafkaBrokers []string
	KafkaTopic   string

	Redis RedisConfig

	// Default vault parameters applied when the state table is empty.
	EntryFeeBps uint16
	ExitFeeBps  uint16
	MinDeposit  uint64
}

// RedisConfig captures Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StatsCacheTTL bounds staleness of cached vault stats and request lookups.
var StatsCacheTTL = 5 * time.Second

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("SATVAULT_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("SATVAULT_DATABASE_URL"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AllocatorURL:  os.Getenv("SATVAULT_ALLOCATOR_URL"),
		BridgeURL:     os.Getenv("SATVAULT_BRIDGE_URL"),
		KafkaTopic:    envOr("SATVAULT_KAFKA_TOPIC", "satvault.events"),
		EntryFeeBps:   envUint16("SATVAULT_ENTRY_FEE_BPS", 0),
		ExitFeeBps:    envUint16("SATVAULT_EXIT_FEE_BPS", 0),
		MinDeposit:    envUint64("SATVAULT_MIN_DEPOSIT", 0),
		Redis: RedisConfig{
			URL:          os.Getenv("SATVAULT_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("SATVAULT_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint16(key string, fallback uint16) uint16 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return fallback
	}
	return uint16(n)
}

func envUint64(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
