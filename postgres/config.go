package postgres

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Aniket1mg/cauldron/log"
)

const (
	defaultMinConns       = 1
	defaultMaxConns       = 10
	defaultKeepaliveIdle  = 5 * time.Second
	defaultKeepaliveIntvl = 4 * time.Second
	defaultAcquireTimeout = 60 * time.Second
)

// Config holds the connection parameters for a Pool. It is copied at pool
// construction time and must not be mutated afterwards.
type Config struct {
	// Database is the database name. Required.
	Database string

	// User is the authentication role. Required.
	User string

	// Password is the authentication secret. May be empty for trust auth.
	Password string

	// Host is the server hostname or address. Required.
	Host string

	// Port is the server port. Required.
	Port int

	// EnableSSL selects sslmode=prefer when true and sslmode=disable
	// otherwise.
	EnableSSL bool

	// MinConns and MaxConns bound the pool size. Defaults 1 and 10.
	MinConns int32
	MaxConns int32

	// KeepaliveIdle and KeepaliveInterval configure TCP keepalives on the
	// underlying sockets. Defaults 5s and 4s.
	KeepaliveIdle     time.Duration
	KeepaliveInterval time.Duration

	// RefreshPeriod is the interval between idle-connection eviction
	// sweeps. Zero or negative disables eviction.
	RefreshPeriod time.Duration

	// AcquireTimeout bounds how long a caller waits for a pooled
	// connection. Default 60s.
	AcquireTimeout time.Duration

	// Logger receives pool lifecycle and diagnostic events. Defaults to
	// a no-op logger.
	Logger log.Logger
}

// withDefaults returns a copy of cfg with zero-value tunables replaced by
// their defaults.
func (cfg Config) withDefaults() Config {
	if cfg.MinConns <= 0 {
		cfg.MinConns = defaultMinConns
	}

	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}

	if cfg.KeepaliveIdle <= 0 {
		cfg.KeepaliveIdle = defaultKeepaliveIdle
	}

	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = defaultKeepaliveIntvl
	}

	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return cfg
}

// validate reports whether the required connection fields are present.
func (cfg Config) validate() error {
	switch {
	case cfg.Database == "":
		return fmt.Errorf("%w: database is required", ErrInvalidConfig)
	case cfg.User == "":
		return fmt.Errorf("%w: user is required", ErrInvalidConfig)
	case cfg.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case cfg.Port <= 0 || cfg.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}

	return nil
}

// dsn renders a postgres connection URL. The password is URL-escaped so
// credentials with reserved characters round-trip.
func (cfg Config) dsn() string {
	sslmode := "disable"
	if cfg.EnableSSL {
		sslmode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=" + sslmode,
	}

	return u.String()
}
