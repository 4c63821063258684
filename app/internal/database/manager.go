package database

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"linkwatch/app/internal/metrics"
)

const (
	DefaultMaxConnections  = 5
	DefaultMaxIdleTime     = 5 * time.Minute
	DefaultCleanupInterval = 60 * time.Second
	DefaultRetries         = 3
	DefaultRetryDelay      = 1 * time.Second

	pingQuery = "SELECT 1"
)

// Options tunes a Manager. Zero values fall back to the defaults above.
type Options struct {
	MaxConnections  int
	MaxIdleTime     time.Duration
	CleanupInterval time.Duration
	Retries         int
	RetryDelay      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.MaxIdleTime <= 0 {
		o.MaxIdleTime = DefaultMaxIdleTime
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

type pooledConn struct {
	conn     Conn
	lastUsed time.Time
}

// Manager keeps a small set of persistent connections keyed by operation
// type, so hot paths do not pay for a pool round trip on every query.
// At most MaxConnections connections are cached at any time.
type Manager struct {
	pool Pool
	opts Options

	mu    sync.Mutex
	conns map[string]*pooledConn
	stop  chan struct{}
	wg    sync.WaitGroup

	now   func() time.Time
	randN func(n int) int
}

// NewManager creates a manager over pool
func NewManager(pool Pool, opts Options) *Manager {
	return &Manager{
		pool:  pool,
		opts:  opts.withDefaults(),
		conns: make(map[string]*pooledConn),
		now:   time.Now,
		randN: rand.IntN,
	}
}

// GetConnection returns the cached connection for op if it still answers a
// trivial query. Otherwise it acquires a new one while under capacity, or
// reuses a randomly chosen cached connection when at capacity.
func (m *Manager) GetConnection(ctx context.Context, op string) (Conn, error) {
	m.mu.Lock()
	pc, ok := m.conns[op]
	m.mu.Unlock()

	if ok {
		_, err := pc.conn.Query(ctx, pingQuery)
		if err == nil {
			m.touch(pc)
			return pc.conn, nil
		}
		// A cancelled caller says nothing about the connection
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("liveness check for %s: %w", op, ctxErr)
		}
		log.Warn().Err(err).Str("operation", op).Msg("Cached database connection failed liveness check, evicting")
		m.evict(pc.conn, "broken")
	}

	if conn := m.reuseIfFull(); conn != nil {
		return conn, nil
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for %s: %w", op, err)
	}

	// The cache may have changed while we were waiting on the pool
	m.mu.Lock()
	if existing, ok := m.conns[op]; ok {
		existing.lastUsed = m.now()
		m.mu.Unlock()
		_ = conn.Close()
		return existing.conn, nil
	}
	if len(m.conns) >= m.opts.MaxConnections {
		reused := m.pickLocked()
		m.mu.Unlock()
		_ = conn.Close()
		return reused, nil
	}
	m.conns[op] = &pooledConn{conn: conn, lastUsed: m.now()}
	size := len(m.conns)
	m.mu.Unlock()

	metrics.DBConnectionsCached.Set(float64(size))
	log.Debug().Str("operation", op).Int("cached", size).Msg("Cached new database connection")
	return conn, nil
}

// ExecuteQuery runs a read query, retrying on connection loss
func (m *Manager) ExecuteQuery(ctx context.Context, op, query string, args ...any) ([]Row, error) {
	var rows []Row
	err := m.withRetry(ctx, op, func(c Conn) error {
		var err error
		rows, err = c.Query(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecuteStatement runs a write statement, retrying on connection loss.
// It returns the number of affected rows.
func (m *Manager) ExecuteStatement(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	err := m.withRetry(ctx, op, func(c Conn) error {
		var err error
		n, err = c.Exec(ctx, query, args...)
		return err
	})
	return n, err
}

// withRetry makes up to Retries attempts. Only connection-loss errors are
// retried; anything else is returned as is.
func (m *Manager) withRetry(ctx context.Context, op string, fn func(Conn) error) error {
	var lastErr error
	for attempt := 1; attempt <= m.opts.Retries; attempt++ {
		conn, err := m.GetConnection(ctx, op)
		if err == nil {
			if err = fn(conn); err == nil {
				return nil
			}
		}
		if ctx.Err() != nil || !IsConnectionLost(err) {
			return err
		}

		lastErr = err
		if conn != nil {
			m.evict(conn, "lost")
		}
		if attempt == m.opts.Retries {
			break
		}

		log.Warn().Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("retry_in", m.opts.RetryDelay).
			Msg("Database connection lost, retrying")
		metrics.DBQueryRetriesTotal.WithLabelValues(op).Inc()

		timer := time.NewTimer(m.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, m.opts.Retries, lastErr)
}

// CleanupIdleConnections releases cached connections idle longer than
// MaxIdleTime and returns how many were released.
func (m *Manager) CleanupIdleConnections() int {
	cutoff := m.now().Add(-m.opts.MaxIdleTime)

	m.mu.Lock()
	var idle []Conn
	for op, pc := range m.conns {
		if pc.lastUsed.Before(cutoff) {
			idle = append(idle, pc.conn)
			delete(m.conns, op)
		}
	}
	size := len(m.conns)
	m.mu.Unlock()

	for _, c := range idle {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("Error releasing idle connection")
		}
	}
	if len(idle) > 0 {
		metrics.DBConnectionsEvictedTotal.WithLabelValues("idle").Add(float64(len(idle)))
		log.Debug().Int("released", len(idle)).Int("cached", size).Msg("Released idle database connections")
	}
	metrics.DBConnectionsCached.Set(float64(size))
	return len(idle)
}

// Start runs CleanupIdleConnections every CleanupInterval until Stop is
// called or ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CleanupIdleConnections()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the cleanup loop
func (m *Manager) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		m.wg.Wait()
	}
}

// CloseAll stops the cleanup loop and releases every cached connection
func (m *Manager) CloseAll() error {
	m.Stop()

	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*pooledConn)
	m.mu.Unlock()

	var errs []error
	seen := make(map[Conn]struct{}, len(conns))
	for _, pc := range conns {
		if _, ok := seen[pc.conn]; ok {
			continue
		}
		seen[pc.conn] = struct{}{}
		if err := pc.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	metrics.DBConnectionsCached.Set(0)
	return errors.Join(errs...)
}

// Size returns the number of cached connections
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) touch(pc *pooledConn) {
	m.mu.Lock()
	pc.lastUsed = m.now()
	m.mu.Unlock()
}

func (m *Manager) reuseIfFull() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) < m.opts.MaxConnections {
		return nil
	}
	return m.pickLocked()
}

// pickLocked returns a uniformly random cached connection
func (m *Manager) pickLocked() Conn {
	i := m.randN(len(m.conns))
	for _, pc := range m.conns {
		if i == 0 {
			pc.lastUsed = m.now()
			return pc.conn
		}
		i--
	}
	return nil
}

// evict drops every cache entry holding conn and releases it once
func (m *Manager) evict(conn Conn, reason string) {
	m.mu.Lock()
	found := false
	for op, pc := range m.conns {
		if pc.conn == conn {
			delete(m.conns, op)
			found = true
		}
	}
	size := len(m.conns)
	m.mu.Unlock()

	if !found {
		return
	}
	_ = conn.Close()
	metrics.DBConnectionsEvictedTotal.WithLabelValues(reason).Inc()
	metrics.DBConnectionsCached.Set(float64(size))
}
