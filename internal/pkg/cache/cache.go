package cache

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/talentbridge/jobboard/internal/pkg/config"
)

const (
	// GatewayDowntimeKey is set while the payment gateway reports degraded service
	GatewayDowntimeKey = "payment_gateway:downtime"
	gatewayDowntimeTTL = 6 * time.Hour
)

// SetupCache initializes the connection to the Redis-compatible cache server
func SetupCache(cfg config.CacheConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache at %s: %v", cfg.Addr(), err)
	} else {
		log.Infof("[Cache] Connected to cache: %s", pong)
	}
	return client
}

// Store holds shared runtime flags.
type Store struct {
	client *redis.Client
}

func NewStore(c *redis.Client) *Store {
	return &Store{client: c}
}

// SetGatewayDowntime raises or clears the gateway downtime flag. A raised
// flag expires on its own if the resolution event never arrives.
func (s *Store) SetGatewayDowntime(ctx context.Context, down bool) error {
	if !down {
		return s.client.Del(ctx, GatewayDowntimeKey).Err()
	}
	return s.client.Set(ctx, GatewayDowntimeKey, time.Now().UTC().Format(time.RFC3339), gatewayDowntimeTTL).Err()
}

func (s *Store) GatewayDowntime(ctx context.Context) (bool, error) {
	err := s.client.Get(ctx, GatewayDowntimeKey).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
