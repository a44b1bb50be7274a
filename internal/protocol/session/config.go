package session

import "time"

const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultConnectTimeout    = 30 * time.Second
)

// BackoffConfig defines handshake retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines session liveness and connect behavior.
type Config struct {
	// HeartbeatInterval <= 0 disables the keepalive ticker.
	HeartbeatInterval time.Duration
	// ConnectTimeout bounds each handshake attempt; the bootstrap call is bounded only by ctx.
	ConnectTimeout time.Duration
	// MaxConnectAttempts <= 1 means a single handshake attempt.
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  DefaultHeartbeatInterval,
		ConnectTimeout:     DefaultConnectTimeout,
		MaxConnectAttempts: 1,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig. HeartbeatInterval is kept when negative.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = d.MaxConnectAttempts
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 && c.Backoff.Multiplier == 0 {
		c.Backoff = d.Backoff
	}
	return c
}
