// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the hub from abuse.
package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/linechat/internal/config"
)

// newRateLimiter returns a limiter allowing burst frames at once, refilled
// at burst per interval. It returns nil when limiting is disabled.
func newRateLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if !cfg.Enabled {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}
