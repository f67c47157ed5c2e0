package cooldown

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/repository"
)

// CooldownInfo describes an active cooldown for display
type CooldownInfo struct {
	Provider  domain.ProviderType `json:"provider"`
	Until     time.Time           `json:"until"`
	Remaining string              `json:"remaining"`
	Reason    CooldownReason      `json:"reason"`
}

// Manager tracks providers that recently failed so the router can try
// healthier ones first. With a repository set, cooldowns survive restarts.
type Manager struct {
	mu             sync.RWMutex
	cooldowns      map[domain.ProviderType]time.Time      // provider -> end time
	reasons        map[domain.ProviderType]CooldownReason // provider -> reason
	failureTracker *FailureTracker
	policies       map[CooldownReason]CooldownPolicy
	now            func() time.Time
	repo           repository.CooldownRepository
}

// NewManager creates a new cooldown manager
func NewManager() *Manager {
	return &Manager{
		cooldowns:      make(map[domain.ProviderType]time.Time),
		reasons:        make(map[domain.ProviderType]CooldownReason),
		failureTracker: NewFailureTracker(),
		policies:       DefaultPolicies(),
		now:            time.Now,
	}
}

var defaultManager = NewManager()

// Default returns the process-wide cooldown manager
func Default() *Manager {
	return defaultManager
}

// SetRepository enables persistence
func (m *Manager) SetRepository(repo repository.CooldownRepository) {
	m.mu.Lock()
	m.repo = repo
	m.mu.Unlock()
}

// LoadFromDatabase restores unexpired cooldowns
func (m *Manager) LoadFromDatabase() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.repo == nil {
		return nil
	}

	cooldowns, err := m.repo.GetAll()
	if err != nil {
		return err
	}
	now := m.now()
	for _, c := range cooldowns {
		if now.Before(c.UntilTime) {
			m.cooldowns[c.Provider] = c.UntilTime
			m.reasons[c.Provider] = CooldownReason(c.Reason)
			// 连续失败次数一并恢复，退避不会因重启归零
			m.failureTracker.Restore(c.Provider, CooldownReason(c.Reason), c.FailureCount, now)
		}
	}
	log.Printf("[Cooldown] Loaded %d cooldowns from database", len(m.cooldowns))
	return nil
}

func (m *Manager) persist(p domain.ProviderType, until time.Time, reason CooldownReason, failures int) {
	if m.repo == nil {
		return
	}
	c := &domain.Cooldown{Provider: p, UntilTime: until, Reason: string(reason), FailureCount: failures}
	if err := m.repo.Upsert(c); err != nil {
		log.Printf("[Cooldown] Failed to persist cooldown for %s: %v", p, err)
	}
}

func (m *Manager) forget(p domain.ProviderType) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Delete(p); err != nil {
		log.Printf("[Cooldown] Failed to delete cooldown for %s: %v", p, err)
	}
}

// RecordFailure applies a cooldown for the provider. explicitUntil, when
// given, is used as-is; otherwise the duration comes from the reason's
// policy and the consecutive failure count. Returns the cooldown end time.
func (m *Manager) RecordFailure(p domain.ProviderType, reason CooldownReason, explicitUntil *time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if explicitUntil != nil {
		m.cooldowns[p] = *explicitUntil
		m.reasons[p] = reason
		m.persist(p, *explicitUntil, reason, 0)
		log.Printf("[Cooldown] Provider %s: explicit cooldown until %s (reason=%s)",
			p, explicitUntil.Format("2006-01-02 15:04:05"), reason)
		return *explicitUntil
	}

	now := m.now()
	failureCount := m.failureTracker.IncrementFailure(p, reason, now)

	policy, ok := m.policies[reason]
	if !ok {
		policy = &FixedDurationPolicy{Duration: time.Minute}
		log.Printf("[Cooldown] Warning: no policy for reason=%s, using 1m", reason)
	}

	duration := policy.CalculateCooldown(failureCount)
	until := now.Add(duration)
	m.cooldowns[p] = until
	m.reasons[p] = reason
	m.persist(p, until, reason, failureCount)

	log.Printf("[Cooldown] Provider %s: cooldown %v until %s (reason=%s, failureCount=%d)",
		p, duration, until.Format("2006-01-02 15:04:05"), reason, failureCount)
	return until
}

// RecordSuccess clears the cooldown and resets failure counts
func (m *Manager) RecordSuccess(p domain.ProviderType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, had := m.cooldowns[p]
	delete(m.cooldowns, p)
	delete(m.reasons, p)
	m.failureTracker.ResetFailures(p)
	if had {
		m.forget(p)
		log.Printf("[Cooldown] Provider %s: cleared after successful request", p)
	}
}

// ClearCooldown removes a cooldown without waiting for success
func (m *Manager) ClearCooldown(p domain.ProviderType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cooldowns, p)
	delete(m.reasons, p)
	m.failureTracker.ResetFailures(p)
	m.forget(p)
}

func (m *Manager) IsInCooldown(p domain.ProviderType) bool {
	return !m.GetCooldownUntil(p).IsZero()
}

// GetCooldownUntil returns the end time, or zero when not in cooldown
func (m *Manager) GetCooldownUntil(p domain.ProviderType) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if until, ok := m.cooldowns[p]; ok && m.now().Before(until) {
		return until
	}
	return time.Time{}
}

// GetAllCooldowns returns all active cooldowns
func (m *Manager) GetAllCooldowns() map[domain.ProviderType]time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	result := make(map[domain.ProviderType]time.Time)
	for p, until := range m.cooldowns {
		if now.Before(until) {
			result[p] = until
		}
	}
	return result
}

// GetCooldownInfo returns nil when the provider is not in cooldown
func (m *Manager) GetCooldownInfo(p domain.ProviderType) *CooldownInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	until, ok := m.cooldowns[p]
	if !ok {
		return nil
	}
	remaining := until.Sub(m.now())
	if remaining <= 0 {
		return nil
	}
	reason, ok := m.reasons[p]
	if !ok {
		reason = ReasonUnknown
	}
	return &CooldownInfo{
		Provider:  p,
		Until:     until,
		Remaining: formatDuration(remaining),
		Reason:    reason,
	}
}

// CleanupExpired removes expired cooldowns and stale failure counters
func (m *Manager) CleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []domain.ProviderType
	for p, until := range m.cooldowns {
		if !now.Before(until) {
			delete(m.cooldowns, p)
			delete(m.reasons, p)
			expired = append(expired, p)
		}
	}
	m.failureTracker.CleanupExpired(now, 24*time.Hour)
	if m.repo != nil && len(expired) > 0 {
		if err := m.repo.DeleteExpired(); err != nil {
			log.Printf("[Cooldown] Failed to delete expired cooldowns: %v", err)
		}
	}

	if len(expired) > 0 {
		log.Printf("[Cooldown] Cleaned up %d expired cooldowns", len(expired))
	}
}

// formatDuration formats a duration as e.g. "1h 2m 3s"
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
