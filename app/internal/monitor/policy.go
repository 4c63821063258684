package monitor

import "linkwatch/app/internal/models"

const (
	DefaultDownThreshold = 3
	DefaultUpThreshold   = 2
)

// Policy decides state changes from result streaks
type Policy struct {
	DownThreshold int
	UpThreshold   int
}

func (p Policy) withDefaults() Policy {
	if p.DownThreshold < 1 {
		p.DownThreshold = DefaultDownThreshold
	}
	if p.UpThreshold < 1 {
		p.UpThreshold = DefaultUpThreshold
	}
	return p
}

// Decide returns the state a host should move to and whether that is a change.
func (p Policy) Decide(current models.State, s Streak) (models.State, bool) {
	p = p.withDefaults()
	switch current {
	case models.StateOffline:
		if s.Successes >= p.UpThreshold {
			return models.StateOnline, true
		}
	default:
		if s.Failures >= p.DownThreshold {
			return models.StateOffline, true
		}
	}
	return current, false
}
