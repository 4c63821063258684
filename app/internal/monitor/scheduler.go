package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"linkwatch/app/internal/models"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultCheckTimeout = 3 * time.Second
	DefaultConcurrency  = 16
)

// Prober checks one address
type Prober interface {
	Probe(ctx context.Context, address string) (alive bool, latencyMs float64, err error)
}

// Inventory supplies the hosts to check
type Inventory interface {
	Inventory() []models.InventoryHost
}

// Recorder is the state store
type Recorder interface {
	UpdateCheck(report models.CheckReport) models.HostState
	ApplyTransition(hostID string, to models.State, at time.Time) models.TransitionResult
}

// CheckWriter persists check results
type CheckWriter interface {
	InsertCheck(ctx context.Context, hostID string, alive bool, latencyMs float64, at time.Time) error
}

// Notifier receives recorded transitions
type Notifier interface {
	HandleTransition(ctx context.Context, res models.TransitionResult) error
}

// Config for the scheduler
type Config struct {
	PollInterval time.Duration
	CheckTimeout time.Duration
	Concurrency  int
	Policy       Policy
}

// Deps are the collaborators of the scheduler. Writer and Notifier may be nil.
type Deps struct {
	Inventory Inventory
	Prober    Prober
	Store     Recorder
	Writer    CheckWriter
	Notifier  Notifier
}

// Scheduler probes every inventory host once per poll interval
type Scheduler struct {
	cfg     Config
	deps    Deps
	tracker *Tracker

	runMu sync.Mutex        // one round at a time
	addrs map[string]string // last probed address per host, guarded by runMu

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}

	now func() time.Time
}

// NewScheduler creates a scheduler
func NewScheduler(cfg Config, deps Deps) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	cfg.Policy = cfg.Policy.withDefaults()

	return &Scheduler{
		cfg:     cfg,
		deps:    deps,
		tracker: NewTracker(),
		addrs:   make(map[string]string),
		now:     time.Now,
	}
}

// RunOnce checks every host currently in the inventory and returns the
// transitions that were recorded.
func (s *Scheduler) RunOnce(ctx context.Context) []models.TransitionResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	hosts := s.deps.Inventory.Inventory()
	s.syncTracker(hosts)

	var (
		mu          sync.Mutex
		transitions []models.TransitionResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, h := range hosts {
		g.Go(func() error {
			if res, ok := s.checkHost(gctx, h); ok {
				mu.Lock()
				transitions = append(transitions, res)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().Int("hosts", len(hosts)).Int("transitions", len(transitions)).Msg("Check round complete")
	return transitions
}

// syncTracker drops streaks of hosts that left the inventory and restarts
// the streak of a host whose address changed, since results from the old
// address say nothing about the new one.
func (s *Scheduler) syncTracker(hosts []models.InventoryHost) {
	valid := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		valid[h.ID] = struct{}{}
		if prev, ok := s.addrs[h.ID]; ok && prev != h.Address {
			s.tracker.Reset(h.ID)
			log.Info().
				Str("host", h.ID).
				Str("old_address", prev).
				Str("address", h.Address).
				Msg("Host address changed, restarting check streak")
		}
		s.addrs[h.ID] = h.Address
	}
	for id := range s.addrs {
		if _, ok := valid[id]; !ok {
			delete(s.addrs, id)
		}
	}
	if n := s.tracker.Prune(valid); n > 0 {
		log.Debug().Int("removed", n).Msg("Dropped check streaks for removed hosts")
	}
}

func (s *Scheduler) checkHost(ctx context.Context, h models.InventoryHost) (models.TransitionResult, bool) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	alive, latency, err := s.deps.Prober.Probe(pctx, h.Address)
	cancel()
	if err != nil {
		alive, latency = false, 0
		log.Debug().Err(err).Str("host", h.ID).Str("address", h.Address).Msg("Probe failed")
	}

	at := s.now()
	host := s.deps.Store.UpdateCheck(models.CheckReport{
		HostID:      h.ID,
		Address:     h.Address,
		DisplayName: h.DisplayName,
		Alive:       alive,
		LatencyMs:   latency,
		Timestamp:   at,
	})

	if s.deps.Writer != nil {
		if err := s.deps.Writer.InsertCheck(ctx, h.ID, alive, latency, at); err != nil {
			log.Warn().Err(err).Str("host", h.ID).Msg("Failed to write check log")
		}
	}

	streak := s.tracker.Update(h.ID, alive)
	to, changed := s.cfg.Policy.Decide(host.State, streak)
	if !changed {
		return models.TransitionResult{}, false
	}

	res := s.deps.Store.ApplyTransition(h.ID, to, at)
	log.Info().
		Str("host", h.ID).
		Str("from", string(res.From)).
		Str("to", string(res.To)).
		Msg("Host state changed")

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.HandleTransition(ctx, res); err != nil {
			log.Error().Err(err).Str("host", h.ID).Msg("Failed to send alert")
		}
	}
	return res, true
}

// Start runs a round immediately and then every poll interval until Stop
// is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop and waits for the current round to finish
func (s *Scheduler) Stop() {
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
