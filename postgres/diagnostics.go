package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/Aniket1mg/cauldron/log"
)

const diagnosticInterval = 10 * time.Minute

// diagnostics rate-limits pool state snapshots. The timestamp and counter
// are guarded independently so reading one never blocks updating the other.
type diagnostics struct {
	lastMu sync.Mutex
	last   time.Time

	countMu sync.Mutex
	count   int
}

// shouldRun reports whether enough time has passed since the last snapshot
// and, if so, claims the slot.
func (d *diagnostics) shouldRun(now time.Time) bool {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()

	if !d.last.IsZero() && now.Sub(d.last) < diagnosticInterval {
		return false
	}

	d.last = now

	return true
}

func (d *diagnostics) bump() int {
	d.countMu.Lock()
	defer d.countMu.Unlock()

	d.count++

	return d.count
}

const activityQuery = `
select pid, state, query, now(), query_start, state_change
from pg_stat_activity
where datname = $1;`

// logPoolState emits a diagnostic snapshot of the pool counters and the
// server-side activity for this database. At most one snapshot runs per
// ten minutes; extra calls return immediately. Failures are swallowed and
// logged at debug so the calling path is never affected.
func (p *Pool) logPoolState(ctx context.Context) {
	if p == nil {
		return
	}

	// Check for a usable pool before claiming the rate-limit slot, so a
	// snapshot that cannot report anything does not suppress the next one.
	stat := p.Stat()
	if stat == nil {
		return
	}

	if !p.diag.shouldRun(time.Now()) {
		return
	}

	seq := p.diag.bump()

	p.cfg.Logger.Log(ctx, log.LevelWarn, "postgres pool state",
		log.String("pool_id", p.id),
		log.Int("snapshot", seq),
		log.Int("total_conns", int(stat.TotalConns())),
		log.Int("idle_conns", int(stat.IdleConns())),
		log.Int("acquired_conns", int(stat.AcquiredConns())),
		log.Int64("empty_acquire_count", stat.EmptyAcquireCount()),
	)

	p.logServerActivity(ctx)
}

// logServerActivity queries pg_stat_activity on a dedicated connection so
// the diagnostic itself does not compete for an exhausted pool.
func (p *Pool) logServerActivity(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := p.dedicatedConn(ctx)
	if err != nil {
		p.cfg.Logger.Log(ctx, log.LevelDebug, "diagnostic connection failed", log.Err(err))

		return
	}

	defer func() {
		_ = conn.Close(ctx)
	}()

	rows, err := conn.Query(ctx, activityQuery, p.cfg.Database)
	if err != nil {
		p.cfg.Logger.Log(ctx, log.LevelDebug, "pg_stat_activity query failed", log.Err(err))

		return
	}

	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			p.cfg.Logger.Log(ctx, log.LevelDebug, "pg_stat_activity row scan failed", log.Err(err))

			return
		}

		p.cfg.Logger.Log(ctx, log.LevelWarn, "postgres backend activity",
			log.String("pool_id", p.id),
			log.Any("backend", values),
		)
	}

	if err := rows.Err(); err != nil {
		p.cfg.Logger.Log(ctx, log.LevelDebug, "pg_stat_activity iteration failed", log.Err(err))
	}
}
