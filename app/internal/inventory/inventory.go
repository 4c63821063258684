// Package inventory keeps a cached copy of the host table. A failed refresh
// keeps serving the last good list so monitoring continues through a
// database outage.
package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"linkwatch/app/internal/metrics"
	"linkwatch/app/internal/models"
)

const DefaultRefreshInterval = 60 * time.Second

// Source lists the hosts to monitor
type Source interface {
	ListHosts(ctx context.Context) ([]models.InventoryHost, error)
}

// Seeder is told about every host loaded
type Seeder interface {
	EnsureHost(hostID string, seed *models.HostSeed) models.HostState
}

// Service caches the inventory
type Service struct {
	source   Source
	seeder   Seeder
	interval time.Duration

	mu            sync.RWMutex
	hosts         []models.InventoryHost
	lastRefreshAt *time.Time
	refreshError  string

	loopMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates an inventory service. seeder may be nil.
func New(source Source, seeder Seeder, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Service{
		source:   source,
		seeder:   seeder,
		interval: interval,
		hosts:    []models.InventoryHost{},
		now:      time.Now,
	}
}

// LoadInitial performs the first refresh
func (s *Service) LoadInitial(ctx context.Context) []models.InventoryHost {
	hosts := s.Refresh(ctx)
	if len(hosts) == 0 {
		log.Warn().Msg("Inventory is empty after initial load")
	} else {
		log.Info().Int("hosts", len(hosts)).Msg("Inventory loaded")
	}
	return hosts
}

// Refresh reloads the host list. On failure the previous list is kept and
// returned; the error is only recorded in Meta.
func (s *Service) Refresh(ctx context.Context) []models.InventoryHost {
	hosts, err := s.source.ListHosts(ctx)
	if err != nil {
		metrics.InventoryRefreshFailuresTotal.Inc()

		s.mu.Lock()
		s.refreshError = err.Error()
		cached := copyHosts(s.hosts)
		s.mu.Unlock()

		log.Error().Err(err).Int("cached_hosts", len(cached)).Msg("Inventory refresh failed, keeping previous inventory")
		return cached
	}

	if s.seeder != nil {
		for _, h := range hosts {
			s.seeder.EnsureHost(h.ID, &models.HostSeed{Address: h.Address, DisplayName: h.DisplayName})
		}
	}

	now := s.now()
	s.mu.Lock()
	s.hosts = copyHosts(hosts)
	s.lastRefreshAt = &now
	s.refreshError = ""
	s.mu.Unlock()

	metrics.InventoryHosts.Set(float64(len(hosts)))
	log.Debug().Int("hosts", len(hosts)).Msg("Inventory refreshed")
	return copyHosts(hosts)
}

// Inventory returns the cached host list
func (s *Service) Inventory() []models.InventoryHost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyHosts(s.hosts)
}

// Meta describes the cached inventory
func (s *Service) Meta() models.InventoryMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := models.InventoryMeta{
		Count:        len(s.hosts),
		RefreshError: s.refreshError,
	}
	if s.lastRefreshAt != nil {
		t := *s.lastRefreshAt
		meta.LastRefreshAt = &t
	}
	return meta
}

// StartAutoRefresh refreshes every interval until StopAutoRefresh or ctx is done
func (s *Service) StartAutoRefresh(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Refresh(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopAutoRefresh ends the refresh loop
func (s *Service) StopAutoRefresh() {
	s.loopMu.Lock()
	stop := s.stop
	s.stop = nil
	s.loopMu.Unlock()

	if stop != nil {
		close(stop)
		s.wg.Wait()
	}
}

func copyHosts(in []models.InventoryHost) []models.InventoryHost {
	out := make([]models.InventoryHost, len(in))
	copy(out, in)
	return out
}
