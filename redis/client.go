package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Aniket1mg/cauldron/backoff"
	"github.com/Aniket1mg/cauldron/log"
	"github.com/Aniket1mg/cauldron/telemetry"
)

// reconnectBackoffCap is the maximum delay between reconnect attempts.
const reconnectBackoffCap = 30 * time.Second

// Client wraps a go-redis client with lazy connection and reconnect rate
// limiting. Each Client owns its connection; there is no process-wide
// singleton. Client is safe for concurrent use.
type Client struct {
	mu        sync.RWMutex
	cfg       Config
	client    *redis.Client
	connected bool

	// Reconnect rate limiting: exponential backoff between failed attempts
	// so a down server is not hammered by every caller.
	lastReconnectAttempt time.Time
	reconnectAttempts    int
}

// New validates cfg, connects and pings, and returns a ready client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	c, err := NewLazy(cfg)
	if err != nil {
		return nil, err
	}

	if _, err := c.GetClient(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// NewLazy validates cfg and returns an unconnected client. The connection
// is established on first GetClient call.
func NewLazy(cfg Config) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{cfg: normalized}, nil
}

// GetClient returns a connected go-redis client, connecting or
// reconnecting on demand. Exactly one caller dials under concurrency;
// failed attempts are rate-limited with exponential backoff.
func (c *Client) GetClient(ctx context.Context) (*redis.Client, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()

	if c.client != nil {
		client := c.client
		c.mu.RUnlock()

		return client, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock.
	if c.client != nil {
		return c.client, nil
	}

	if c.reconnectAttempts > 0 {
		delay := backoff.ExponentialWithJitter(500*time.Millisecond, c.reconnectAttempts)
		if delay > reconnectBackoffCap {
			delay = reconnectBackoffCap
		}

		if elapsed := time.Since(c.lastReconnectAttempt); elapsed < delay {
			return nil, fmt.Errorf("%w (next attempt in %s)", ErrReconnectRateLimited, delay-elapsed)
		}
	}

	c.lastReconnectAttempt = time.Now()

	// Only trace when actually dialing.
	ctx, span := otel.Tracer("redis").Start(ctx, "redis.connect")
	defer span.End()

	span.SetAttributes(attribute.String("db.system", "redis"))

	if err := c.connectLocked(ctx); err != nil {
		c.reconnectAttempts++

		telemetry.HandleSpanError(span, "failed to connect to redis", err)

		return nil, err
	}

	c.reconnectAttempts = 0

	return c.client, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	c.cfg.Logger.Log(ctx, log.LevelInfo, "connecting to redis",
		log.String("address", c.cfg.Address),
		log.Int("db", c.cfg.DB),
	)

	o := c.cfg.Options
	rdb := redis.NewClient(&redis.Options{
		Addr:            c.cfg.Address,
		DB:              c.cfg.DB,
		Username:        c.cfg.Username,
		Password:        c.cfg.Password,
		PoolSize:        o.PoolSize,
		MinIdleConns:    o.MinIdleConns,
		ReadTimeout:     o.ReadTimeout,
		WriteTimeout:    o.WriteTimeout,
		DialTimeout:     o.DialTimeout,
		PoolTimeout:     o.PoolTimeout,
		MaxRetries:      o.MaxRetries,
		MinRetryBackoff: o.MinRetryBackoff,
		MaxRetryBackoff: o.MaxRetryBackoff,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		c.cfg.Logger.Log(ctx, log.LevelError, "redis ping failed", log.Err(err))
		c.connected = false

		return fmt.Errorf("redis connect: ping: %w", err)
	}

	c.client = rdb
	c.connected = true

	c.cfg.Logger.Log(ctx, log.LevelInfo, "connected to redis")

	return nil
}

// IsConnected reports whether the client currently holds a connection.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

// Close closes the underlying connection. It is idempotent and safe to
// call on a client that never connected.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	_, span := otel.Tracer("redis").Start(context.Background(), "redis.close")
	defer span.End()

	span.SetAttributes(attribute.String("db.system", "redis"))

	err := c.client.Close()
	c.client = nil
	c.connected = false

	if err != nil {
		telemetry.HandleSpanError(span, "failed to close redis client", err)
	}

	return err
}
