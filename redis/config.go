package redis

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Aniket1mg/cauldron/log"
)

var (
	// ErrNilClient is returned when a client receiver is nil.
	ErrNilClient = errors.New("redis client is nil")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid redis config")

	// ErrNil is returned by Store.Get when the key does not exist.
	ErrNil = errors.New("redis key does not exist")

	// ErrReconnectRateLimited indicates a reconnect attempt was refused
	// because the backoff window after a failed attempt has not elapsed.
	ErrReconnectRateLimited = errors.New("redis reconnect rate-limited")
)

// Config defines connection target, auth and pool settings for a Client.
type Config struct {
	// Address is the host:port of the server. Required.
	Address string

	// DB selects the logical database.
	DB int

	// Username and Password authenticate the connection. Both optional.
	Username string
	Password string

	Options ConnectionOptions

	Logger log.Logger
}

// ConnectionOptions configures timeouts, pooling and command retries.
// Zero values are replaced with defaults when the client is built.
type ConnectionOptions struct {
	PoolSize        int
	MinIdleConns    int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DialTimeout     time.Duration
	PoolTimeout     time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

const maxPoolSize = 1000

func normalizeConfig(cfg Config) (Config, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	normalizeConnectionOptions(&cfg.Options)

	if strings.TrimSpace(cfg.Address) == "" {
		return Config{}, fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}

	return cfg, nil
}

func normalizeConnectionOptions(options *ConnectionOptions) {
	if options.PoolSize == 0 {
		options.PoolSize = 10
	}

	if options.PoolSize > maxPoolSize {
		options.PoolSize = maxPoolSize
	}

	if options.ReadTimeout == 0 {
		options.ReadTimeout = 3 * time.Second
	}

	if options.WriteTimeout == 0 {
		options.WriteTimeout = 3 * time.Second
	}

	if options.DialTimeout == 0 {
		options.DialTimeout = 5 * time.Second
	}

	if options.PoolTimeout == 0 {
		options.PoolTimeout = 2 * time.Second
	}

	if options.MaxRetries == 0 {
		options.MaxRetries = 3
	}

	if options.MinRetryBackoff == 0 {
		options.MinRetryBackoff = 8 * time.Millisecond
	}

	if options.MaxRetryBackoff == 0 {
		options.MaxRetryBackoff = 1 * time.Second
	}
}
