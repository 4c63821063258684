package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"linkwatch/app/internal/metrics"
	"linkwatch/app/internal/models"
	"linkwatch/app/internal/stats"
)

const (
	KindDown      = "down"
	KindRecovered = "recovered"

	DefaultMinInterval = 60 * time.Second
)

// Notification is a rendered incident message
type Notification struct {
	Kind           string    `json:"kind"`
	HostID         string    `json:"host_id"`
	DisplayName    string    `json:"display_name"`
	Address        string    `json:"address"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	At             time.Time `json:"at"`
	Duration       string    `json:"duration,omitempty"`
	DowntimeEvents int       `json:"downtime_events,omitempty"`
}

// Sender delivers notifications
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Config for the alerts manager
type Config struct {
	// MinInterval is the minimum gap between two notifications of the same
	// kind for one host.
	MinInterval time.Duration
	// DownThreshold is the failure run length counted as one downtime event.
	DownThreshold int
}

// Manager turns state transitions into notifications
type Manager struct {
	senders       []Sender
	minInterval   time.Duration
	downThreshold int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	now func() time.Time
}

// NewManager creates an alerts manager that delivers through every sender
func NewManager(cfg Config, senders ...Sender) *Manager {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.DownThreshold < 1 {
		cfg.DownThreshold = 1
	}
	return &Manager{
		senders:       senders,
		minInterval:   cfg.MinInterval,
		downThreshold: cfg.DownThreshold,
		limiters:      make(map[string]*rate.Limiter),
		now:           time.Now,
	}
}

// HandleTransition notifies when a host goes offline or comes back online.
// Other transitions are ignored.
func (m *Manager) HandleTransition(ctx context.Context, res models.TransitionResult) error {
	var n Notification
	switch {
	case res.To == models.StateOffline && res.From != models.StateOffline:
		n = m.downNotification(res.Host)
	case res.From == models.StateOffline && res.To == models.StateOnline:
		n = m.recoveredNotification(res.Host)
	default:
		return nil
	}

	if !m.allow(n.HostID, n.Kind) {
		metrics.AlertsSuppressedTotal.WithLabelValues("rate_limited").Inc()
		log.Info().Str("host", n.HostID).Str("kind", n.Kind).Msg("Alert suppressed by rate limit")
		return nil
	}

	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		metrics.AlertsSuppressedTotal.WithLabelValues("send_failed").Inc()
		return fmt.Errorf("send %s alert for %s: %w", n.Kind, n.HostID, err)
	}
	metrics.AlertsSentTotal.WithLabelValues(n.Kind).Inc()
	return nil
}

func (m *Manager) downNotification(h models.HostState) Notification {
	at := m.now()
	if h.DownSince != nil {
		at = *h.DownSince
	}
	name := hostLabel(h)
	return Notification{
		Kind:        KindDown,
		HostID:      h.HostID,
		DisplayName: h.DisplayName,
		Address:     h.Address,
		At:          at,
		Subject:     fmt.Sprintf("[DOWN] %s", name),
		Body:        fmt.Sprintf("%s stopped responding at %s.", name, at.Format(time.RFC1123)),
	}
}

func (m *Manager) recoveredNotification(h models.HostState) Notification {
	at := m.now()
	if h.UpSince != nil {
		at = *h.UpSince
	}
	name := hostLabel(h)
	duration := stats.FormatDuration(h.OriginalDownTime, at)
	events := stats.CountDowntimeEvents(h.RecentChecks, m.downThreshold)

	return Notification{
		Kind:           KindRecovered,
		HostID:         h.HostID,
		DisplayName:    h.DisplayName,
		Address:        h.Address,
		At:             at,
		Duration:       duration,
		DowntimeEvents: events,
		Subject:        fmt.Sprintf("[UP] %s", name),
		Body: fmt.Sprintf("%s is back online at %s.\nOutage duration: %s\nDowntime events in recent checks: %d",
			name, at.Format(time.RFC1123), duration, events),
	}
}

func hostLabel(h models.HostState) string {
	name := h.DisplayName
	if name == "" {
		name = h.HostID
	}
	if h.Address == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, h.Address)
}

// allow applies a token bucket per host and kind
func (m *Manager) allow(hostID, kind string) bool {
	key := hostID + "|" + kind

	m.mu.Lock()
	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(m.minInterval), 1)
		m.limiters[key] = l
	}
	m.mu.Unlock()

	return l.AllowN(m.now(), 1)
}

// LogSender writes notifications to the log
type LogSender struct{}

func (LogSender) Send(_ context.Context, n Notification) error {
	ev := log.Warn()
	if n.Kind == KindRecovered {
		ev = log.Info()
	}
	ev.Str("host", n.HostID).
		Str("kind", n.Kind).
		Str("duration", n.Duration).
		Int("downtime_events", n.DowntimeEvents).
		Msg(n.Subject)
	return nil
}
