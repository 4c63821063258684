package database

import (
	"context"
	"time"

	"linkwatch/app/internal/models"
)

// Operation types used as connection cache keys
const (
	OpInventory = "inventory"
	OpCheckLog  = "check_log"
	OpReport    = "report"
)

// TimeLayout is the fixed-width UTC layout stored in checked_at so that
// string order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Executor is the subset of Manager used by the repositories
type Executor interface {
	ExecuteQuery(ctx context.Context, op, query string, args ...any) ([]Row, error)
	ExecuteStatement(ctx context.Context, op, query string, args ...any) (int64, error)
}

// Hosts reads and writes the hosts and check_log tables
type Hosts struct {
	exec Executor
}

// NewHosts creates a host repository
func NewHosts(exec Executor) *Hosts {
	return &Hosts{exec: exec}
}

// ListHosts returns every host ordered by id
func (h *Hosts) ListHosts(ctx context.Context) ([]models.InventoryHost, error) {
	rows, err := h.exec.ExecuteQuery(ctx, OpInventory,
		`SELECT id, address, display_name FROM hosts ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}

	hosts := make([]models.InventoryHost, 0, len(rows))
	for _, r := range rows {
		hosts = append(hosts, models.InventoryHost{
			ID:          r.String("id"),
			Address:     r.String("address"),
			DisplayName: r.String("display_name"),
		})
	}
	return hosts, nil
}

// UpsertHost inserts or updates a host
func (h *Hosts) UpsertHost(ctx context.Context, host models.InventoryHost) error {
	_, err := h.exec.ExecuteStatement(ctx, OpInventory, `
		INSERT INTO hosts (id, address, display_name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET address=excluded.address, display_name=excluded.display_name`,
		host.ID, host.Address, host.DisplayName)
	return err
}

// InsertCheck appends a row to the check log
func (h *Hosts) InsertCheck(ctx context.Context, hostID string, alive bool, latencyMs float64, at time.Time) error {
	aliveInt := 0
	var latency any
	if alive {
		aliveInt = 1
		latency = latencyMs
	}
	_, err := h.exec.ExecuteStatement(ctx, OpCheckLog,
		`INSERT INTO check_log (host_id, alive, latency_ms, checked_at) VALUES (?, ?, ?, ?)`,
		hostID, aliveInt, latency, at.UTC().Format(TimeLayout))
	return err
}
