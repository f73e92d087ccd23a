package shared

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// BackoffConfig describes a reconnect schedule: exponential delays first,
// then a fixed interval, bounded by a total retry window.
type BackoffConfig struct {
	Exponential []time.Duration
	Fixed       time.Duration
	MaxWindow   time.Duration
}

func NormalizeBackoff(cfg BackoffConfig) BackoffConfig {
	if len(cfg.Exponential) == 0 {
		cfg.Exponential = []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
		}
	}
	if cfg.Fixed <= 0 {
		cfg.Fixed = 10 * time.Second
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = 300 * time.Second
	}
	return cfg
}

// Delay returns the wait before retry attempt n (0-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < len(c.Exponential) {
		return c.Exponential[attempt]
	}
	return c.Fixed
}
