package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkwatch/app/internal/models"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (c *captureSender) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestManager(senders ...Sender) (*Manager, *time.Time) {
	m := NewManager(Config{MinInterval: time.Minute, DownThreshold: 3}, senders...)
	now := t0
	m.now = func() time.Time { return now }
	return m, &now
}

func downResult() models.TransitionResult {
	return models.TransitionResult{
		From: models.StateOnline,
		To:   models.StateOffline,
		Host: models.HostState{
			HostID:           "br-01",
			Address:          "10.0.1.1",
			DisplayName:      "Branch 1",
			State:            models.StateOffline,
			DownSince:        ptr(t0),
			OriginalDownTime: ptr(t0),
		},
	}
}

func recoveredResult(downAt, upAt time.Time, samples []models.CheckSample) models.TransitionResult {
	return models.TransitionResult{
		From: models.StateOffline,
		To:   models.StateOnline,
		Host: models.HostState{
			HostID:           "br-01",
			Address:          "10.0.1.1",
			DisplayName:      "Branch 1",
			State:            models.StateOnline,
			UpSince:          ptr(upAt),
			OriginalDownTime: ptr(downAt),
			RecentChecks:     samples,
		},
	}
}

func samplesFrom(pattern string) []models.CheckSample {
	out := make([]models.CheckSample, len(pattern))
	for i, c := range pattern {
		out[i] = models.CheckSample{Success: c == '1', Timestamp: t0.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestHandleTransition_Down(t *testing.T) {
	sender := &captureSender{}
	m, _ := newTestManager(sender)

	require.NoError(t, m.HandleTransition(context.Background(), downResult()))
	require.Len(t, sender.sent, 1)

	n := sender.sent[0]
	assert.Equal(t, KindDown, n.Kind)
	assert.Equal(t, "[DOWN] Branch 1 (10.0.1.1)", n.Subject)
	assert.Contains(t, n.Body, "stopped responding")
	assert.Equal(t, t0, n.At)
}

func TestHandleTransition_RecoveredCarriesDuration(t *testing.T) {
	sender := &captureSender{}
	m, _ := newTestManager(sender)
	up := t0.Add(2*time.Hour + 5*time.Minute)

	res := recoveredResult(t0, up, samplesFrom("0001100011"))
	require.NoError(t, m.HandleTransition(context.Background(), res))
	require.Len(t, sender.sent, 1)

	n := sender.sent[0]
	assert.Equal(t, KindRecovered, n.Kind)
	assert.Equal(t, "2 hours and 5 minutes", n.Duration)
	assert.Equal(t, 2, n.DowntimeEvents)
	assert.Equal(t, "[UP] Branch 1 (10.0.1.1)", n.Subject)
	assert.Contains(t, n.Body, "Outage duration: 2 hours and 5 minutes")
}

func TestHandleTransition_RecoveredWithoutOutageStart(t *testing.T) {
	sender := &captureSender{}
	m, _ := newTestManager(sender)

	res := recoveredResult(t0, t0, nil)
	res.Host.OriginalDownTime = nil
	require.NoError(t, m.HandleTransition(context.Background(), res))
	assert.Equal(t, "unavailable", sender.sent[0].Duration)
}

func TestHandleTransition_IgnoresOtherTransitions(t *testing.T) {
	sender := &captureSender{}
	m, _ := newTestManager(sender)

	res := downResult()
	res.From = models.StateOffline
	require.NoError(t, m.HandleTransition(context.Background(), res))

	res = recoveredResult(t0, t0, nil)
	res.From = models.StateOnline
	require.NoError(t, m.HandleTransition(context.Background(), res))

	assert.Empty(t, sender.sent)
}

func TestHandleTransition_RateLimitedPerHostAndKind(t *testing.T) {
	sender := &captureSender{}
	m, now := newTestManager(sender)
	ctx := context.Background()

	require.NoError(t, m.HandleTransition(ctx, downResult()))
	require.NoError(t, m.HandleTransition(ctx, downResult()))
	assert.Len(t, sender.sent, 1, "second down within interval suppressed")

	require.NoError(t, m.HandleTransition(ctx, recoveredResult(t0, t0, nil)))
	assert.Len(t, sender.sent, 2, "recovery has its own budget")

	other := downResult()
	other.Host.HostID = "br-02"
	require.NoError(t, m.HandleTransition(ctx, other))
	assert.Len(t, sender.sent, 3, "other hosts are not limited")

	*now = now.Add(time.Minute + time.Second)
	require.NoError(t, m.HandleTransition(ctx, downResult()))
	assert.Len(t, sender.sent, 4, "allowed again after the interval")
}

func TestHandleTransition_SenderError(t *testing.T) {
	failing := &captureSender{err: errors.New("connection refused")}
	ok := &captureSender{}
	m, _ := newTestManager(failing, ok)

	err := m.HandleTransition(context.Background(), downResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, ok.sent, 1, "remaining senders still run")
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Notification{Kind: KindRecovered, Subject: "[UP] x"}))
}

// --------------- webhook ---------------

func TestWebhookSender_SignsPayload(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
		payload map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		_ = json.Unmarshal(gotBody, &payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "s3cret")
	n := Notification{Kind: KindRecovered, HostID: "br-01", Subject: "[UP] Branch 1", At: t0, Duration: "5 minutes"}
	require.NoError(t, s.Send(context.Background(), n))

	assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)
	assert.Equal(t, "recovered", payload["status"])
	assert.Equal(t, "br-01", payload["host_id"])
	assert.Equal(t, "5 minutes", payload["duration"])
	assert.Equal(t, "2025-03-01T08:00:00Z", payload["timestamp"])
}

func TestWebhookSender_NoSecretNoSignature(t *testing.T) {
	var hasSig bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasSig = r.Header[SignatureHeader]
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookSender(srv.URL, "").Send(context.Background(), Notification{Kind: KindDown}))
	assert.False(t, hasSig)
}

func TestWebhookSender_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "").Send(context.Background(), Notification{Kind: KindDown})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
