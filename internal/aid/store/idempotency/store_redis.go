// Package idempotency deduplicates payment-gateway confirmation callbacks so
// a replayed event confirms a donation exactly once.
package idempotency

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aidpool_idempotency_claims_total",
	Help: "Confirmation callback idempotency claims by outcome",
}, []string{"outcome"})

const keyPrefix = "aidpool:idem:"

// RedisStore is the production implementation for distributed deployments
// where multiple instances receive gateway callbacks.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Claim records the key if unseen. SET NX is atomic, so concurrent replays
// of the same callback resolve to exactly one winner.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, "1", ttl).Result()
	if err != nil {
		claimsTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if ok {
		claimsTotal.WithLabelValues("claimed").Inc()
	} else {
		claimsTotal.WithLabelValues("duplicate").Inc()
	}
	return ok, nil
}
