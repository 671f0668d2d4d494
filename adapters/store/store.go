package store

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// NonceBytes gives 128 bits of entropy
	NonceBytes = 16

	// SessionIDBytes gives 256 bits of entropy
	SessionIDBytes = 32

	// DefaultTimeout bounds each remote store call
	DefaultTimeout = 2 * time.Second
)

// Clock returns the current time; injected for tests
type Clock func() time.Time

type options struct {
	clock    Clock
	timeout  time.Duration
	prefix   string
	duration *prometheus.HistogramVec
}

// Option configures a store
type Option func(*options)

// WithClock sets the clock used for expiry decisions
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTimeout bounds every remote call made by the store
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithPrefix sets the key prefix of Redis-backed stores
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithDuration records the latency of every remote call on h, labelled by op
func WithDuration(h *prometheus.HistogramVec) Option {
	return func(o *options) {
		o.duration = h
	}
}

func buildOptions(prefix string, opts []Option) options {
	o := options{clock: time.Now, timeout: DefaultTimeout, prefix: prefix}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// GenerateToken returns n random bytes, hex encoded
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func observe(h *prometheus.HistogramVec, op string, start time.Time) {
	if h == nil {
		return
	}
	h.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
