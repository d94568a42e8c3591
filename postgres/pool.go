package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Aniket1mg/cauldron/backoff"
	"github.com/Aniket1mg/cauldron/log"
	"github.com/Aniket1mg/cauldron/runtime"
	"github.com/Aniket1mg/cauldron/telemetry"
)

// Seams for tests that exercise pool lifecycle without a server.
var (
	newPoolFn = func(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
		return pgxpool.NewWithConfig(ctx, cfg)
	}

	pingFn = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

// Pool manages a lazily-created pgx connection pool. The underlying pool is
// created on first use; until then a Pool is an inert value carrying its
// configuration. Pool is safe for concurrent use.
type Pool struct {
	cfg        Config
	id         string
	configured bool

	mu     sync.RWMutex
	pool   *pgxpool.Pool
	cancel context.CancelFunc
	closed bool

	diag diagnostics
}

// NewPool validates cfg and returns an unconnected Pool. No network
// activity happens until the first operation.
func NewPool(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Pool{
		cfg:        cfg.withDefaults(),
		id:         uuid.NewString(),
		configured: true,
	}, nil
}

// ID returns the unique identifier of this pool instance.
func (p *Pool) ID() string {
	if p == nil {
		return ""
	}

	return p.id
}

// get returns the underlying pgx pool, creating it on first call. Exactly
// one caller performs the creation under concurrency; the rest block on the
// mutex and observe the winner's pool.
func (p *Pool) get(ctx context.Context) (*pgxpool.Pool, error) {
	if p == nil || !p.configured {
		return nil, ErrNotConfigured
	}

	p.mu.RLock()

	if p.pool != nil {
		pool := p.pool
		p.mu.RUnlock()

		return pool, nil
	}

	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring the write lock.
	if p.pool != nil {
		return p.pool, nil
	}

	if p.closed {
		return nil, fmt.Errorf("%w: pool is closed", ErrNotConfigured)
	}

	pool, err := p.createLocked(ctx)
	if err != nil {
		return nil, err
	}

	p.pool = pool

	if p.cfg.RefreshPeriod > 0 {
		evictCtx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel

		runtime.SafeGoWithContextAndComponent(
			evictCtx, p.cfg.Logger, "postgres", "idle-eviction",
			runtime.KeepRunning, p.evictionLoop,
		)
	}

	return p.pool, nil
}

// createLocked builds and pings the pgx pool. Caller must hold the write
// lock.
func (p *Pool) createLocked(ctx context.Context) (pool *pgxpool.Pool, err error) {
	ctx, span := otel.Tracer("postgres").Start(ctx, "postgres.connect")
	defer func() {
		telemetry.HandleSpanError(span, "failed to create postgres pool", err)
		span.End()
	}()

	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", p.cfg.Database),
	)

	pcfg, err := pgxpool.ParseConfig(p.cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres configuration: %w", err)
	}

	pcfg.MinConns = p.cfg.MinConns
	pcfg.MaxConns = p.cfg.MaxConns

	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     p.cfg.KeepaliveIdle,
			Interval: p.cfg.KeepaliveInterval,
		},
	}
	pcfg.ConnConfig.DialFunc = dialer.DialContext

	pool, err = newPoolFn(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pingFn(ctx, pool); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p.cfg.Logger.Log(ctx, log.LevelInfo, "postgres pool created",
		log.String("pool_id", p.id),
		log.String("database", p.cfg.Database),
		log.Int("max_conns", int(p.cfg.MaxConns)),
	)

	return pool, nil
}

// Acquire returns a pooled connection, waiting at most the configured
// acquire timeout. On timeout it returns ErrAcquireTimeout and triggers an
// asynchronous, rate-limited diagnostic snapshot of the pool and server
// activity. The caller must Release the connection.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	pool, err := p.get(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("postgres").Start(ctx, "postgres.acquire")
	defer span.End()

	span.SetAttributes(attribute.String("db.system", "postgresql"))

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := pool.Acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			runtime.SafeGo(p.cfg.Logger, "postgres-pool-diagnostics", func() {
				p.logPoolState(context.Background())
			})

			err = fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.AcquireTimeout)
			telemetry.HandleSpanError(span, "acquire timed out", err)

			return nil, err
		}

		telemetry.HandleSpanError(span, "failed to acquire postgres connection", err)

		return nil, fmt.Errorf("failed to acquire postgres connection: %w", err)
	}

	return conn, nil
}

// evictionLoop periodically closes every idle connection so the pool does
// not pin stale sessions. It exits when ctx is cancelled by Close.
func (p *Pool) evictionLoop(ctx context.Context) {
	for {
		if err := backoff.SleepWithContext(ctx, p.cfg.RefreshPeriod); err != nil {
			return
		}

		p.evictIdle(ctx)
	}
}

// evictIdle closes all currently idle connections. In-use connections are
// untouched; pgxpool replenishes toward MinConns on demand.
func (p *Pool) evictIdle(ctx context.Context) {
	p.mu.RLock()
	pool := p.pool
	p.mu.RUnlock()

	if pool == nil {
		return
	}

	idle := pool.AcquireAllIdle(ctx)
	for _, conn := range idle {
		func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = conn.Hijack().Close(closeCtx)
		}()
	}

	if len(idle) > 0 && p.cfg.Logger.Enabled(log.LevelDebug) {
		p.cfg.Logger.Log(ctx, log.LevelDebug, "evicted idle postgres connections",
			log.String("pool_id", p.id),
			log.Int("count", len(idle)),
		)
	}
}

// Stat returns a snapshot of pool counters, or nil if the pool has not
// been created yet.
func (p *Pool) Stat() *pgxpool.Stat {
	if p == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pool == nil {
		return nil
	}

	return p.pool.Stat()
}

// Close stops the eviction loop and closes the underlying pool. It is
// idempotent and safe to call on a pool that was never used.
func (p *Pool) Close() {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

// dedicatedConn opens a connection outside the pool. Callers own the
// connection and must close it.
func (p *Pool) dedicatedConn(ctx context.Context) (*pgx.Conn, error) {
	if p == nil || !p.configured {
		return nil, ErrNotConfigured
	}

	conn, err := pgx.Connect(ctx, p.cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open dedicated postgres connection: %w", err)
	}

	return conn, nil
}
