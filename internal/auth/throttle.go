package auth

import (
	"sync"
	"time"
)

// UnknownIPBucket is the shared throttle bucket for requests whose client IP
// could not be determined. Deliberately conservative: unidentified clients
// throttle each other. Deployments behind a reverse proxy that always
// supplies a real client address never hit this bucket.
const UnknownIPBucket = "unknown"

// LoginThrottle counts failed login attempts per source IP over a trailing
// window. Windows are ordered timestamp slices, front-trimmed lazily on each
// check, so no background goroutine is needed and the sliding-window
// semantics stay exact.
type LoginThrottle struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewLoginThrottle(maxAttempts int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func bucket(ip string) string {
	if ip == "" {
		return UnknownIPBucket
	}
	return ip
}

// Allow reports whether ip may attempt a login right now, trimming attempts
// that have aged out of the window first.
func (t *LoginThrottle) Allow(ip string) bool {
	key := bucket(ip)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.attempts[key]
	for len(window) > 0 && now.Sub(window[0]) > t.window {
		window = window[1:]
	}
	if len(window) == 0 {
		delete(t.attempts, key)
	} else {
		t.attempts[key] = window
	}

	return len(window) < t.maxAttempts
}

// RecordFailure appends a failed attempt timestamp for ip.
func (t *LoginThrottle) RecordFailure(ip string) {
	key := bucket(ip)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[key] = append(t.attempts[key], t.now())
}

// Clear wipes the failure history for ip, called after a successful login.
func (t *LoginThrottle) Clear(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, bucket(ip))
}
