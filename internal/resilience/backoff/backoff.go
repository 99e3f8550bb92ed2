// Package backoff computes capped exponential delays shared by channel
// reconnection and recovery retries.
package backoff

import (
	"math"
	"time"
)

// Config defines an exponential backoff curve.
type Config struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// Default is the curve used for reconnection: 1s, 1.5s, 2.25s ... capped at 30s.
var Default = Config{
	InitialInterval: 1 * time.Second,
	Multiplier:      1.5,
	MaxInterval:     30 * time.Second,
}

// Delay returns min(InitialInterval * Multiplier^attempt, MaxInterval).
// attempt is 0-indexed; negative values are treated as 0.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	multiplier := c.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := float64(c.InitialInterval) * math.Pow(multiplier, float64(attempt))
	if c.MaxInterval > 0 && delay > float64(c.MaxInterval) {
		delay = float64(c.MaxInterval)
	}
	return time.Duration(delay)
}

// WithDefaults fills zero fields from Default.
func (c Config) WithDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = Default.InitialInterval
	}
	if c.Multiplier <= 0 {
		c.Multiplier = Default.Multiplier
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = Default.MaxInterval
	}
	return c
}
