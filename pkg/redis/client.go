// Package redis holds the Redis connection and the dead-letter stream built on it.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a go-redis client that knows how to report its own health.
type Client struct {
	*redis.Client
}

// NewClient dials Redis and fails unless the first ping succeeds.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	c := Wrap(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
	if err := c.Check(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr(), err)
	}

	logger.WithFields(map[string]any{"addr": cfg.Addr(), "db": cfg.DB}).Info("Connected to redis")
	return c, nil
}

func Wrap(rdb *redis.Client) *Client {
	return &Client{Client: rdb}
}

// Check pings with a bounded timeout. It is the health check for the readiness route.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}
