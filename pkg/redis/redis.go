package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type Redis interface {
	RDB() *goredis.Client
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Host     string
	Port     uint16
	Password string
	DB       int
}

type client struct {
	rdb *goredis.Client
}

func New(cfg *Config) (Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port))),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &client{rdb: rdb}, nil
}

func (c *client) RDB() *goredis.Client {
	return c.rdb
}

func (c *client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *client) Close() error {
	return c.rdb.Close()
}
