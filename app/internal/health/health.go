// Package health probes database reachability independently of business
// queries and backs off along a fixed schedule while the database is down.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"linkwatch/app/internal/database"
	"linkwatch/app/internal/metrics"
	"linkwatch/app/internal/models"
)

var (
	DefaultSchedule = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	DefaultMaxDelay = 60 * time.Second
)

const probeQuery = "SELECT 1"

// Config holds the retry schedule. The schedule is sorted ascending.
type Config struct {
	Schedule []time.Duration
	MaxDelay time.Duration
}

// Service tracks whether the database answers a trivial query
type Service struct {
	pool     database.Pool
	schedule []time.Duration
	maxDelay time.Duration

	probeMu sync.Mutex // serializes probes

	mu            sync.RWMutex
	healthy       bool
	lastCheckAt   *time.Time
	lastHealthyAt *time.Time
	lastError     string
	retryDelay    time.Duration

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}

	now func() time.Time
}

// New creates a health service over pool
func New(pool database.Pool, cfg Config) *Service {
	schedule := make([]time.Duration, 0, len(cfg.Schedule))
	for _, d := range cfg.Schedule {
		if d > 0 {
			schedule = append(schedule, d)
		}
	}
	if len(schedule) == 0 {
		schedule = append(schedule, DefaultSchedule...)
	}
	sort.Slice(schedule, func(i, j int) bool { return schedule[i] < schedule[j] })

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = schedule[len(schedule)-1]
	}

	return &Service{
		pool:       pool,
		schedule:   schedule,
		maxDelay:   maxDelay,
		retryDelay: schedule[0],
		now:        time.Now,
	}
}

// NextRetry returns the smallest scheduled delay greater than current,
// or the maximum delay when none is left, never exceeding the maximum.
func (s *Service) NextRetry(current time.Duration) time.Duration {
	next := s.maxDelay
	for _, d := range s.schedule {
		if d > current {
			next = d
			break
		}
	}
	if next > s.maxDelay {
		next = s.maxDelay
	}
	return next
}

// Probe borrows one connection, runs a trivial query and releases it.
// The outcome is recorded in the status; failures are also returned.
func (s *Service) Probe(ctx context.Context) error {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()

	err := s.probeOnce(ctx)
	now := s.now()

	s.mu.Lock()
	s.lastCheckAt = &now
	if err == nil {
		if !s.healthy {
			log.Info().Msg("Database is reachable")
		}
		s.healthy = true
		s.lastHealthyAt = &now
		s.lastError = ""
		s.retryDelay = s.schedule[0]
	} else {
		s.healthy = false
		s.lastError = err.Error()
		s.retryDelay = s.NextRetry(s.retryDelay)
		log.Warn().Err(err).Dur("next_retry", s.retryDelay).Msg("Database health probe failed")
	}
	s.mu.Unlock()

	metrics.SetDBHealthy(err == nil)
	return err
}

func (s *Service) probeOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("Error releasing health probe connection")
		}
	}()

	if _, err := conn.Query(ctx, probeQuery); err != nil {
		return fmt.Errorf("probe query: %w", err)
	}
	return nil
}

// Status returns a snapshot of the last probe outcome
func (s *Service) Status() models.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.HealthStatus{
		Checked:        s.lastCheckAt != nil,
		Healthy:        s.healthy,
		LastCheckAt:    copyTime(s.lastCheckAt),
		LastHealthyAt:  copyTime(s.lastHealthyAt),
		LastError:      s.lastError,
		NextRetryDelay: s.retryDelay,
	}
}

// nextDelay is how long the loop waits before the next probe
func (s *Service) nextDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.healthy {
		return s.schedule[0]
	}
	return s.retryDelay
}

// Start probes immediately and then reschedules itself after every probe
// until Stop is called or ctx is done. Probe errors never end the loop.
func (s *Service) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)
}

func (s *Service) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	for {
		_ = s.Probe(ctx)

		timer := time.NewTimer(s.nextDelay())
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Stop ends the probe loop and waits for it to exit
func (s *Service) Stop() {
	s.loopMu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.loopMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
