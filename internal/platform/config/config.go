package config

import (
	"os"
	"strings"
	"time"

	platformstrings "aidpool/pkg/platform/strings"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    []string
	JWTSigningKey   string
	RecheckInterval time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("AIDPOOL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("AIDPOOL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	recheck := 5 * time.Minute
	if v := os.Getenv("AIDPOOL_RECHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			recheck = d
		}
	}

	var brokers []string
	if v := os.Getenv("AIDPOOL_KAFKA_BROKERS"); v != "" {
		brokers = platformstrings.DedupeAndTrim(strings.Split(v, ","))
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("AIDPOOL_DATABASE_URL"),
		RedisURL:        os.Getenv("AIDPOOL_REDIS_URL"),
		KafkaBrokers:    brokers,
		JWTSigningKey:   jwtSigningKey,
		RecheckInterval: recheck,
	}
}

// RedisConfig tunes the go-redis client pool.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns pool settings suitable for this service's
// idempotency-key workload.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:          url,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
