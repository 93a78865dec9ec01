package transport

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds outbound frames with a token bucket. Useful for
// clients that resend input state on a tight loop and must not flood the
// server.
type RateLimitConfig struct {
	MessagesPerSecond rate.Limit
	Burst             int
	Enabled           bool
}

// DefaultRateLimit allows 100 frames per second with a burst of 200.
func DefaultRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit disables outbound rate limiting.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{Enabled: false}
}

type Options struct {
	// HandshakeTimeout bounds the websocket upgrade. Defaults to 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds every frame write. Defaults to 10s.
	WriteTimeout time.Duration

	// PingInterval is the keepalive ping period. Defaults to 54s.
	PingInterval time.Duration

	// SendBuffer is the outbound frame queue depth. Defaults to 256.
	SendBuffer int

	// RateLimit paces outbound frames. Nil means no limit.
	RateLimit *RateLimitConfig

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}

	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}

	if o.PingInterval <= 0 {
		o.PingInterval = 54 * time.Second
	}

	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
