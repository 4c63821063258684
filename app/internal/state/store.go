// Package state holds the process-wide view of host status and a bounded
// journal of check results and state transitions.
//
// A single Store is created at startup and handed to every component that
// needs it. The store only records outcomes; deciding when a host changes
// state is left to the caller (see the monitor package).
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"linkwatch/app/internal/metrics"
	"linkwatch/app/internal/models"
	"linkwatch/app/internal/pagination"
)

const (
	DefaultJournalCapacity      = 1000
	DefaultEventTTL             = 24 * time.Hour
	DefaultRecentChecksCapacity = 50
)

// Config bounds the memory held by the store
type Config struct {
	JournalCapacity      int
	EventTTL             time.Duration
	RecentChecksCapacity int
}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	hosts  map[string]*models.HostState
	events []models.Event
	cfg    Config
	now    func() time.Time
}

// New creates an empty store. Zero config values fall back to defaults.
func New(cfg Config) *Store {
	if cfg.JournalCapacity <= 0 {
		cfg.JournalCapacity = DefaultJournalCapacity
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = DefaultEventTTL
	}
	if cfg.RecentChecksCapacity <= 0 {
		cfg.RecentChecksCapacity = DefaultRecentChecksCapacity
	}
	return &Store{
		hosts: make(map[string]*models.HostState),
		cfg:   cfg,
		now:   time.Now,
	}
}

// EnsureHost returns the host, creating it if needed. Non-empty seed fields
// overwrite the stored address and display name.
func (s *Store) EnsureHost(hostID string, seed *models.HostSeed) models.HostState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyHost(s.ensureLocked(hostID, seed))
}

func (s *Store) ensureLocked(hostID string, seed *models.HostSeed) *models.HostState {
	h, ok := s.hosts[hostID]
	if !ok {
		now := s.now()
		h = &models.HostState{
			HostID:       hostID,
			DisplayName:  hostID,
			State:        models.StateOnline,
			UpSince:      &now,
			RecentChecks: make([]models.CheckSample, 0, s.cfg.RecentChecksCapacity),
		}
		s.hosts[hostID] = h
	}
	if seed != nil {
		if seed.Address != "" {
			h.Address = seed.Address
		}
		if seed.DisplayName != "" {
			h.DisplayName = seed.DisplayName
		}
	}
	return h
}

// UpdateCheck records a check result. It never changes the host's state.
func (s *Store) UpdateCheck(r models.CheckReport) models.HostState {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.ensureLocked(r.HostID, &models.HostSeed{Address: r.Address, DisplayName: r.DisplayName})
	result := models.CheckResult{Alive: r.Alive, LatencyMs: r.LatencyMs}
	h.LastResult = &result
	h.LastResultAt = &ts

	h.RecentChecks = append(h.RecentChecks, models.CheckSample{Success: r.Alive, Timestamp: ts})
	if over := len(h.RecentChecks) - s.cfg.RecentChecksCapacity; over > 0 {
		h.RecentChecks = append(h.RecentChecks[:0], h.RecentChecks[over:]...)
	}

	payload := result
	s.appendLocked(models.Event{
		Type:  models.EventCheckResult,
		Check: &payload,
	}, h, ts)

	return copyHost(h)
}

// ApplyTransition moves a host to the given state. A zero timestamp means now.
// OriginalDownTime is set when a host enters OFFLINE from any other state and
// is kept through recovery so notifications can report the whole outage.
func (s *Store) ApplyTransition(hostID string, to models.State, at time.Time) models.TransitionResult {
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.ensureLocked(hostID, nil)
	from := h.State
	h.State = to

	ts := at
	switch to {
	case models.StateOffline:
		h.DownSince = &ts
		h.UpSince = nil
		if from != models.StateOffline || h.OriginalDownTime == nil {
			h.OriginalDownTime = &ts
		}
	default:
		h.UpSince = &ts
		h.DownSince = nil
	}

	tr := models.Transition{From: from, To: to, At: ts}
	h.LastTransition = &tr

	payload := tr
	s.appendLocked(models.Event{
		Type:       models.EventStateTransition,
		Transition: &payload,
	}, h, ts)

	metrics.TransitionsTotal.WithLabelValues(string(to)).Inc()

	return models.TransitionResult{From: from, To: to, Host: copyHost(h)}
}

// Host returns a snapshot of a single host
func (s *Store) Host(hostID string) (models.HostState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hosts[hostID]
	if !ok {
		return models.HostState{}, false
	}
	return copyHost(h), true
}

// Hosts returns snapshots of every known host ordered by id
func (s *Store) Hosts() []models.HostState {
	s.mu.Lock()
	out := make([]models.HostState, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, copyHost(h))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].HostID < out[j].HostID })
	return out
}

// RecentEvents drops expired events and returns the newest limit events in
// insertion order. A limit of zero or less returns the whole journal.
func (s *Store) RecentEvents(limit int) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	start := 0
	if limit > 0 && limit < len(s.events) {
		start = len(s.events) - limit
	}
	out := make([]models.Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// EventsPage returns a newest-first page of the journal
func (s *Store) EventsPage(p pagination.Params) pagination.Page[models.Event] {
	events := s.RecentEvents(0)
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return pagination.Slice(events, p)
}

// Len returns the journal length after pruning
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.events)
}

func (s *Store) appendLocked(ev models.Event, h *models.HostState, ts time.Time) {
	ev.ID = uuid.NewString()
	ev.HostID = h.HostID
	ev.Address = h.Address
	ev.DisplayName = h.DisplayName
	ev.Timestamp = ts

	s.events = append(s.events, ev)
	s.pruneLocked()
}

// pruneLocked drops the oldest appends until the journal fits its capacity,
// then every entry older than the TTL. Reports can carry their own
// timestamps, so expired entries are not always at the head.
func (s *Store) pruneLocked() {
	if over := len(s.events) - s.cfg.JournalCapacity; over > 0 {
		s.events = append(s.events[:0], s.events[over:]...)
	}
	cutoff := s.now().Add(-s.cfg.EventTTL)
	kept := s.events[:0]
	for _, ev := range s.events {
		if !ev.Timestamp.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	clear(s.events[len(kept):])
	s.events = kept
	metrics.EventJournalSize.Set(float64(len(s.events)))
}

func copyHost(h *models.HostState) models.HostState {
	c := *h
	c.LastResult = copyPtr(h.LastResult)
	c.LastResultAt = copyPtr(h.LastResultAt)
	c.DownSince = copyPtr(h.DownSince)
	c.UpSince = copyPtr(h.UpSince)
	c.LastTransition = copyPtr(h.LastTransition)
	c.OriginalDownTime = copyPtr(h.OriginalDownTime)
	c.RecentChecks = make([]models.CheckSample, len(h.RecentChecks))
	copy(c.RecentChecks, h.RecentChecks)
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
