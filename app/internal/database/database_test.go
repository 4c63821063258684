package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkwatch/app/internal/models"
	"linkwatch/app/internal/pagination"
)

// initTestDB opens a file-backed database; each pinned connection to
// ":memory:" would otherwise see its own empty database.
func initTestDB(t *testing.T) *Manager {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err, "failed to init test db")

	m := NewManager(NewSQLPool(db), Options{RetryDelay: time.Millisecond})
	t.Cleanup(func() {
		_ = m.CloseAll()
		_ = db.Close()
	})
	return m
}

// --------------- Open / EnsureSchema ---------------

func TestOpen_SchemaIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idem.db")
	db, err := Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, db.Close())

	db, err = Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestSQLPool_Query(t *testing.T) {
	m := initTestDB(t)

	rows, err := m.ExecuteQuery(context.Background(), "probe", "SELECT 1 AS one, 'x' AS s, NULL AS n")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Int64("one"))
	assert.Equal(t, "x", rows[0].String("s"))
	assert.Equal(t, "", rows[0].String("n"))
	assert.Equal(t, 1, m.Size())
}

func TestSQLPool_QueryError(t *testing.T) {
	m := initTestDB(t)

	_, err := m.ExecuteQuery(context.Background(), "probe", "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.False(t, IsConnectionLost(err))
}

// --------------- Hosts ---------------

func TestHosts_UpsertAndList(t *testing.T) {
	m := initTestDB(t)
	repo := NewHosts(m)
	ctx := context.Background()

	require.NoError(t, repo.UpsertHost(ctx, models.InventoryHost{ID: "b", Address: "10.0.0.2", DisplayName: "Branch B"}))
	require.NoError(t, repo.UpsertHost(ctx, models.InventoryHost{ID: "a", Address: "10.0.0.1", DisplayName: "Branch A"}))
	require.NoError(t, repo.UpsertHost(ctx, models.InventoryHost{ID: "b", Address: "10.0.0.22", DisplayName: "Branch B2"}))

	hosts, err := repo.ListHosts(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, models.InventoryHost{ID: "a", Address: "10.0.0.1", DisplayName: "Branch A"}, hosts[0])
	assert.Equal(t, "10.0.0.22", hosts[1].Address)
	assert.Equal(t, "Branch B2", hosts[1].DisplayName)
}

func TestHosts_ListEmpty(t *testing.T) {
	m := initTestDB(t)
	hosts, err := NewHosts(m).ListHosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

// --------------- Reports ---------------

func seedChecks(t *testing.T, repo *Hosts, hostID string, start time.Time, pattern string) {
	t.Helper()
	for i, c := range pattern {
		err := repo.InsertCheck(context.Background(), hostID, c == '+', float64(10+i), start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
}

func TestReports_CheckLogPage(t *testing.T) {
	m := initTestDB(t)
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	seedChecks(t, NewHosts(m), "h1", start, "++-++")
	seedChecks(t, NewHosts(m), "h2", start, "+")

	page, err := NewReports(m).CheckLogPage(context.Background(), "h1", pagination.Params{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, start.Add(4*time.Minute), page.Items[0].CheckedAt)
	assert.True(t, page.Items[0].Alive)
	assert.InDelta(t, 14, page.Items[0].LatencyMs, 0.001)

	page, err = NewReports(m).CheckLogPage(context.Background(), "h1", pagination.Params{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.False(t, page.Items[0].Alive)
	assert.Zero(t, page.Items[0].LatencyMs, "failed checks store no latency")
}

func TestReports_DowntimeReport(t *testing.T) {
	m := initTestDB(t)
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	seedChecks(t, NewHosts(m), "h1", start, "+---+--+----+")

	report, err := NewReports(m).DowntimeReport(context.Background(), "h1", start, 3)
	require.NoError(t, err)
	assert.Equal(t, 13, report.Samples)
	assert.Equal(t, 9, report.Failures)
	assert.Equal(t, 2, report.DowntimeEvents)
	assert.InDelta(t, 4.0/13*100, report.UptimePercent, 0.001)
	assert.InDelta(t, 15.75, report.AvgLatencyMs, 0.001, "average over successful checks only")

	later, err := NewReports(m).DowntimeReport(context.Background(), "h1", start.Add(5*time.Minute), 3)
	require.NoError(t, err)
	assert.Equal(t, 8, later.Samples)
	assert.Equal(t, 1, later.DowntimeEvents)

	empty, err := NewReports(m).DowntimeReport(context.Background(), "unknown", start, 3)
	require.NoError(t, err)
	assert.Zero(t, empty.Samples)
	assert.Equal(t, 100.0, empty.UptimePercent)
	assert.Zero(t, empty.AvgLatencyMs)
}
