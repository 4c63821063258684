package monitor

import "sync"

// Streak is the current run of identical results for one host
type Streak struct {
	Failures  int
	Successes int
}

// Tracker keeps consecutive failure and success counts per host.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	streaks map[string]Streak
}

// NewTracker creates a new tracker.
func NewTracker() *Tracker {
	return &Tracker{
		streaks: make(map[string]Streak),
	}
}

// Update extends the matching run and resets the opposite one.
func (t *Tracker) Update(hostID string, alive bool) Streak {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.streaks[hostID]
	if alive {
		s.Successes++
		s.Failures = 0
	} else {
		s.Failures++
		s.Successes = 0
	}
	t.streaks[hostID] = s
	return s
}

// Reset clears the counts for a host.
func (t *Tracker) Reset(hostID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streaks, hostID)
}

// Prune removes entries for hosts that left the inventory and returns how
// many were removed.
func (t *Tracker) Prune(valid map[string]struct{}) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id := range t.streaks {
		if _, ok := valid[id]; !ok {
			delete(t.streaks, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streaks)
}
