package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"tour-payments/internal/store"
	"tour-payments/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const (
	dedupPrefix = "webhook:dedup:"
	lockPrefix  = "lock:"

	lockPollInterval = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	logger        *zap.Logger
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientFromRedis(rdb), nil
}

// NewClientFromRedis wraps an existing connection without pinging it
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		logger:        util.GetLogger(),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection, used by the readiness probe
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// DedupWindow remembers webhook notification keys with SET NX EX, so the
// window is shared by every instance and bounded by key expiry.
type DedupWindow struct {
	client *Client
	ttl    time.Duration
}

// NewDedupWindow creates a dedup window whose keys live for ttl
func NewDedupWindow(client *Client, ttl time.Duration) *DedupWindow {
	return &DedupWindow{client: client, ttl: ttl}
}

// FirstSeen records key and reports whether nobody recorded it within the ttl
func (d *DedupWindow) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.rdb.SetNX(ctx, dedupPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx failed: %w", err)
	}
	return ok, nil
}

// Forget removes key so a redelivery is processed again
func (d *DedupWindow) Forget(ctx context.Context, key string) error {
	return d.client.rdb.Del(ctx, dedupPrefix+key).Err()
}

// Locker is a distributed per-key lock. Each holder writes a random token and
// only the holder's token can release it; the ttl frees locks of crashed holders.
type Locker struct {
	client *Client
	ttl    time.Duration
}

// NewLocker creates a locker whose locks expire after ttl
func NewLocker(client *Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Lock polls until key is acquired or ctx is done
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	token := uuid.New().String()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("lock setnx failed: %w", err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, store.ErrConcurrencyConflict
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}
}

func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := l.client.releaseScript.Run(ctx, l.client.rdb, []string{redisKey}, token).Err(); err != nil {
		l.client.logger.Warn("Failed to release lock, it will expire",
			zap.String("key", redisKey),
			zap.Error(err))
	}
}
