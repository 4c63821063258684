package database

import (
	"context"
	"time"

	"linkwatch/app/internal/models"
	"linkwatch/app/internal/pagination"
	"linkwatch/app/internal/stats"
)

// CheckLogEntry is a row of the check log
type CheckLogEntry struct {
	ID        int64     `json:"id"`
	HostID    string    `json:"host_id"`
	Alive     bool      `json:"alive"`
	LatencyMs float64   `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// DowntimeReport summarizes a host's check log over a window
type DowntimeReport struct {
	HostID         string    `json:"host_id"`
	Since          time.Time `json:"since"`
	Samples        int       `json:"samples"`
	Failures       int       `json:"failures"`
	DowntimeEvents int       `json:"downtime_events"`
	UptimePercent  float64   `json:"uptime_percent"`
	AvgLatencyMs   float64   `json:"avg_latency_ms"`
}

// Reports runs ad hoc reporting queries
type Reports struct {
	exec Executor
}

// NewReports creates a reporting repository
func NewReports(exec Executor) *Reports {
	return &Reports{exec: exec}
}

// CheckLogPage returns a newest-first page of a host's check log
func (r *Reports) CheckLogPage(ctx context.Context, hostID string, p pagination.Params) (pagination.Page[CheckLogEntry], error) {
	p = p.Normalize()

	countRows, err := r.exec.ExecuteQuery(ctx, OpReport,
		`SELECT COUNT(*) AS total FROM check_log WHERE host_id = ?`, hostID)
	if err != nil {
		return pagination.Page[CheckLogEntry]{}, err
	}
	total := 0
	if len(countRows) > 0 {
		total = int(countRows[0].Int64("total"))
	}

	rows, err := r.exec.ExecuteQuery(ctx, OpReport, `
		SELECT id, host_id, alive, COALESCE(latency_ms, 0) AS latency_ms, checked_at
		FROM check_log WHERE host_id = ?
		ORDER BY checked_at DESC, id DESC LIMIT ? OFFSET ?`,
		hostID, p.PerPage, p.Offset())
	if err != nil {
		return pagination.Page[CheckLogEntry]{}, err
	}

	entries := make([]CheckLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, scanCheckLog(row))
	}
	return pagination.NewPage(entries, p, total), nil
}

// DowntimeReport counts outages of at least threshold consecutive failed
// checks since the given time.
func (r *Reports) DowntimeReport(ctx context.Context, hostID string, since time.Time, threshold int) (DowntimeReport, error) {
	rows, err := r.exec.ExecuteQuery(ctx, OpReport, `
		SELECT alive, checked_at FROM check_log
		WHERE host_id = ? AND checked_at >= ?
		ORDER BY checked_at ASC, id ASC`,
		hostID, since.UTC().Format(TimeLayout))
	if err != nil {
		return DowntimeReport{}, err
	}

	report := DowntimeReport{HostID: hostID, Since: since, Samples: len(rows)}
	samples := make([]models.CheckSample, 0, len(rows))
	for _, row := range rows {
		ts, _ := time.Parse(TimeLayout, row.String("checked_at"))
		ok := row.Bool("alive")
		if !ok {
			report.Failures++
		}
		samples = append(samples, models.CheckSample{Success: ok, Timestamp: ts})
	}
	report.DowntimeEvents = stats.CountDowntimeEvents(samples, threshold)
	report.UptimePercent = stats.UptimePercent(samples)

	avg, err := r.exec.ExecuteQuery(ctx, OpReport, `
		SELECT COALESCE(AVG(latency_ms), 0) AS avg_ms FROM check_log
		WHERE host_id = ? AND checked_at >= ? AND latency_ms IS NOT NULL`,
		hostID, since.UTC().Format(TimeLayout))
	if err != nil {
		return DowntimeReport{}, err
	}
	if len(avg) > 0 {
		report.AvgLatencyMs = avg[0].Float64("avg_ms")
	}
	return report, nil
}

func scanCheckLog(row Row) CheckLogEntry {
	ts, _ := time.Parse(TimeLayout, row.String("checked_at"))
	return CheckLogEntry{
		ID:        row.Int64("id"),
		HostID:    row.String("host_id"),
		Alive:     row.Bool("alive"),
		LatencyMs: row.Float64("latency_ms"),
		CheckedAt: ts,
	}
}
