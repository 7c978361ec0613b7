package guard

import (
	"time"

	"github.com/adwski/webrtc-signal-relay/backend/model"
)

const (
	DefaultMaxMessageSize       = 10000
	DefaultMaxMessagesPerSecond = 20
	DefaultRateWindow           = time.Second
)

// CheckSize rejects a frame whose total size exceeds max bytes.
func CheckSize(frame model.Frame, max int) error {
	if frame.Size() > max {
		return model.ErrMessageTooLarge
	}
	return nil
}

// RateLimiter counts frames of a single connection in a fixed window.
// The window is reset lazily by the first frame arriving after it
// expired, so the effective window may be slightly longer than configured.
//
// RateLimiter is not safe for concurrent use.
type RateLimiter struct {
	max    int
	window time.Duration
	count  int
	expiry time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		max:    max,
		window: window,
	}
}

// Allow accounts one frame at now and reports whether it is within the limit.
func (rl *RateLimiter) Allow(now time.Time) bool {
	if now.After(rl.expiry) {
		rl.count = 0
		rl.expiry = now.Add(rl.window)
	}
	rl.count++
	return rl.count <= rl.max
}

// Inspect runs both per-frame gates, rate first.
func Inspect(frame model.Frame, rl *RateLimiter, maxSize int, now time.Time) error {
	if !rl.Allow(now) {
		return model.ErrRateLimitExceeded
	}
	return CheckSize(frame, maxSize)
}
