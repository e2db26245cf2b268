package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"
)

// limiterDatabase keeps limiter counters apart from the application cache.
const limiterDatabase = 2

// NewLimiterStorage builds fiber storage on the same Redis server as client.
func NewLimiterStorage(client *redis.Client) fiber.Storage {
	opts := client.Options()
	host, port := "127.0.0.1", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
