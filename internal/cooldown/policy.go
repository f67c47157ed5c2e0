package cooldown

import (
	"sync"
	"time"

	"github.com/awsl-project/appforge/internal/domain"
)

// CooldownReason is why a provider was put in cooldown
type CooldownReason string

const (
	ReasonQuotaExhausted CooldownReason = "quota_exhausted"
	ReasonServerError    CooldownReason = "server_error"
	ReasonNetworkError   CooldownReason = "network_error"
	ReasonAuthFailed     CooldownReason = "auth_failed"
	ReasonUnknown        CooldownReason = "unknown"
)

// ReasonForKind maps a provider error kind to a cooldown reason. Malformed
// output says nothing about provider health and yields no cooldown.
func ReasonForKind(kind domain.ErrorKind) (CooldownReason, bool) {
	switch kind {
	case domain.ErrorKindQuota:
		return ReasonQuotaExhausted, true
	case domain.ErrorKindServer:
		return ReasonServerError, true
	case domain.ErrorKindNetwork:
		return ReasonNetworkError, true
	case domain.ErrorKindAuth:
		return ReasonAuthFailed, true
	case domain.ErrorKindMalformed:
		return "", false
	default:
		return ReasonUnknown, true
	}
}

// CooldownPolicy calculates cooldown duration from consecutive failure count
type CooldownPolicy interface {
	CalculateCooldown(failureCount int) time.Duration
}

// FixedDurationPolicy always returns the same duration
type FixedDurationPolicy struct {
	Duration time.Duration
}

func (p *FixedDurationPolicy) CalculateCooldown(int) time.Duration {
	return p.Duration
}

// ExponentialBackoffPolicy doubles Base per consecutive failure, capped at Max
type ExponentialBackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func (p *ExponentialBackoffPolicy) CalculateCooldown(failureCount int) time.Duration {
	if failureCount < 1 {
		failureCount = 1
	}
	d := p.Base
	for i := 1; i < failureCount; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// DefaultPolicies returns the built-in policy per reason
func DefaultPolicies() map[CooldownReason]CooldownPolicy {
	return map[CooldownReason]CooldownPolicy{
		ReasonQuotaExhausted: &ExponentialBackoffPolicy{Base: time.Minute, Max: 30 * time.Minute},
		ReasonServerError:    &ExponentialBackoffPolicy{Base: 15 * time.Second, Max: 5 * time.Minute},
		ReasonNetworkError:   &ExponentialBackoffPolicy{Base: 10 * time.Second, Max: 2 * time.Minute},
		ReasonAuthFailed:     &FixedDurationPolicy{Duration: 10 * time.Minute},
		ReasonUnknown:        &FixedDurationPolicy{Duration: 30 * time.Second},
	}
}

type failureKey struct {
	provider domain.ProviderType
	reason   CooldownReason
}

type failureEntry struct {
	count    int
	lastSeen time.Time
}

// FailureTracker counts consecutive failures per provider and reason
type FailureTracker struct {
	mu      sync.Mutex
	entries map[failureKey]*failureEntry
}

func NewFailureTracker() *FailureTracker {
	return &FailureTracker{entries: make(map[failureKey]*failureEntry)}
}

// IncrementFailure bumps the count and returns the new value
func (t *FailureTracker) IncrementFailure(p domain.ProviderType, reason CooldownReason, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := failureKey{provider: p, reason: reason}
	e, ok := t.entries[key]
	if !ok {
		e = &failureEntry{}
		t.entries[key] = e
	}
	e.count++
	e.lastSeen = now
	return e.count
}

// Restore seeds a counter loaded from storage
func (t *FailureTracker) Restore(p domain.ProviderType, reason CooldownReason, count int, now time.Time) {
	if count <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[failureKey{provider: p, reason: reason}] = &failureEntry{count: count, lastSeen: now}
}

// ResetFailures clears every counter of a provider
func (t *FailureTracker) ResetFailures(p domain.ProviderType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.entries {
		if key.provider == p {
			delete(t.entries, key)
		}
	}
}

// CleanupExpired drops counters not touched for maxAge
func (t *FailureTracker) CleanupExpired(now time.Time, maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, e := range t.entries {
		if now.Sub(e.lastSeen) > maxAge {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
