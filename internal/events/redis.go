package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	defaultStream = "parking:actions"
	defaultMaxLen = 10000
)

type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

type RedisOption func(*RedisPublisher)

func WithStream(stream string) RedisOption {
	return func(p *RedisPublisher) {
		if s := strings.TrimSpace(stream); s != "" {
			p.stream = s
		}
	}
}

func WithMaxLen(n int64) RedisOption {
	return func(p *RedisPublisher) { p.maxLen = n }
}

func NewRedisPublisher(rdb *redis.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		rdb:    rdb,
		stream: defaultStream,
		maxLen: defaultMaxLen,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewRedisPublisherFromURL parses a redis:// URL and checks the connection.
func NewRedisPublisherFromURL(ctx context.Context, url string, opts ...RedisOption) (*RedisPublisher, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisPublisher(rdb, opts...), nil
}

func (p *RedisPublisher) Stream() string {
	return p.stream
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: ev.Fields(),
	}).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
