package checker

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPort    = "443"
	DefaultTimeout = 3 * time.Second
)

// TCPProber reports a host alive when a TCP connection to it can be opened
type TCPProber struct {
	Timeout     time.Duration
	DefaultPort string
}

// NewTCPProber creates a prober. Zero values take the defaults.
func NewTCPProber(timeout time.Duration, port string) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if port == "" {
		port = DefaultPort
	}
	return &TCPProber{Timeout: timeout, DefaultPort: port}
}

// Probe dials address and returns the connect latency in milliseconds
func (p *TCPProber) Probe(ctx context.Context, address string) (bool, float64, error) {
	addr := withPort(address, p.DefaultPort)
	d := net.Dialer{Timeout: p.Timeout}

	t0 := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	ms := float64(time.Since(t0).Microseconds()) / 1000
	if err != nil {
		log.Debug().Err(err).Str("addr", addr).Msg("tcp check error")
		return false, 0, err
	}
	_ = conn.Close()
	return true, ms, nil
}

// withPort appends port unless address already carries one
func withPort(address, port string) string {
	address = strings.TrimPrefix(strings.TrimSpace(address), "tcp://")
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), port)
}
