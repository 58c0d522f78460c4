package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "forge:ratelimit:"

type redisLimiter struct {
	client  *redis.Client
	timeout time.Duration
	log     *logrus.Entry
}

// NewRedis returns a limiter whose counters are shared across instances.
// Redis being down fails open: limiting degrades to "allowed" rather than
// taking the request path down with it.
func NewRedis(addr, password string, db int) (Limiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &redisLimiter{
		client:  client,
		timeout: 250 * time.Millisecond,
		log:     logrus.WithField("component", "ratelimit"),
	}, nil
}

func (l *redisLimiter) Check(key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.log.WithError(err).Warn("redis incr failed, admitting request")
		return Decision{Allowed: true}
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, window).Err(); err != nil {
			l.log.WithError(err).Warn("redis expire failed")
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}

	return Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		ResetTime: time.Now().Add(ttl),
	}
}

func (l *redisLimiter) Close() {
	_ = l.client.Close()
}
