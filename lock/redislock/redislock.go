// Package redislock implements lock.Locker on Redis so several OpenShelf
// processes sharing one store serialize work on the same book.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/openshelf/lock"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Defaults used when Options leaves a field zero.
const (
	DefaultPrefix = "openshelf:lock"
	DefaultTTL    = 10 * time.Second
	DefaultRetry  = 25 * time.Millisecond
)

// Options configures a Locker.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Retry    time.Duration
	Logger   *slog.Logger
}

// Locker is a lease-based lock. A holder that outlives TTL loses the lock.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

var _ lock.Locker = (*Locker)(nil)

// New connects to Redis at opts.Addr.
func New(opts Options) (*Locker, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redislock: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts), nil
}

// NewWithClient uses an existing client. Addr, Password and DB are ignored.
func NewWithClient(client *redis.Client, opts Options) *Locker {
	l := &Locker{
		client: client,
		prefix: strings.TrimSpace(opts.Prefix),
		ttl:    opts.TTL,
		retry:  opts.Retry,
		logger: opts.Logger,
	}
	if l.prefix == "" {
		l.prefix = DefaultPrefix
	}
	if l.ttl <= 0 {
		l.ttl = DefaultTTL
	}
	if l.retry <= 0 {
		l.retry = DefaultRetry
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Acquire implements lock.Locker.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + ":" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redislock: acquire %s: %w", key, err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) releaser(redisKey, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("openshelf: lock release failed", "key", redisKey, "error", err)
		}
	}
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}
