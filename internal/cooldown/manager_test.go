package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/domain"
)

func newTestManager(now *time.Time) *Manager {
	m := NewManager()
	m.now = func() time.Time { return *now }
	return m
}

func TestExponentialBackoffPolicy(t *testing.T) {
	p := &ExponentialBackoffPolicy{Base: 10 * time.Second, Max: time.Minute}
	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, 10 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, time.Minute},
		{10, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.CalculateCooldown(tt.count), "count=%d", tt.count)
	}
}

func TestRecordFailureAndSuccess(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	until := m.RecordFailure(domain.ProviderOpenAI, ReasonNetworkError, nil)
	assert.Equal(t, now.Add(10*time.Second), until)
	assert.True(t, m.IsInCooldown(domain.ProviderOpenAI))
	assert.False(t, m.IsInCooldown(domain.ProviderAnthropic))

	// second consecutive failure doubles
	until = m.RecordFailure(domain.ProviderOpenAI, ReasonNetworkError, nil)
	assert.Equal(t, now.Add(20*time.Second), until)

	info := m.GetCooldownInfo(domain.ProviderOpenAI)
	require.NotNil(t, info)
	assert.Equal(t, ReasonNetworkError, info.Reason)
	assert.Equal(t, "20s", info.Remaining)

	m.RecordSuccess(domain.ProviderOpenAI)
	assert.False(t, m.IsInCooldown(domain.ProviderOpenAI))
	assert.Nil(t, m.GetCooldownInfo(domain.ProviderOpenAI))

	// counts were reset
	until = m.RecordFailure(domain.ProviderOpenAI, ReasonNetworkError, nil)
	assert.Equal(t, now.Add(10*time.Second), until)
}

func TestExpiryAndCleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	explicit := now.Add(time.Minute)
	m.RecordFailure(domain.ProviderGoogle, ReasonQuotaExhausted, &explicit)
	assert.Len(t, m.GetAllCooldowns(), 1)

	now = now.Add(2 * time.Minute)
	assert.False(t, m.IsInCooldown(domain.ProviderGoogle))
	assert.Empty(t, m.GetAllCooldowns())

	m.CleanupExpired()
	m.mu.RLock()
	assert.Empty(t, m.cooldowns)
	m.mu.RUnlock()
}

func TestReasonForKind(t *testing.T) {
	_, ok := ReasonForKind(domain.ErrorKindMalformed)
	assert.False(t, ok)

	r, ok := ReasonForKind(domain.ErrorKindQuota)
	assert.True(t, ok)
	assert.Equal(t, ReasonQuotaExhausted, r)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "1h 0m 12s", formatDuration(time.Hour+12*time.Second))
}

type memCooldowns struct {
	rows map[domain.ProviderType]*domain.Cooldown
}

func (r *memCooldowns) GetAll() ([]*domain.Cooldown, error) {
	var list []*domain.Cooldown
	for _, c := range r.rows {
		list = append(list, c)
	}
	return list, nil
}

func (r *memCooldowns) Upsert(c *domain.Cooldown) error {
	r.rows[c.Provider] = c
	return nil
}

func (r *memCooldowns) Delete(p domain.ProviderType) error {
	delete(r.rows, p)
	return nil
}

func (r *memCooldowns) DeleteExpired() error { return nil }

func TestPersistence(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &memCooldowns{rows: map[domain.ProviderType]*domain.Cooldown{}}

	m := newTestManager(&now)
	m.SetRepository(repo)
	m.RecordFailure(domain.ProviderAnthropic, ReasonAuthFailed, nil)
	require.Contains(t, repo.rows, domain.ProviderAnthropic)

	restored := newTestManager(&now)
	restored.SetRepository(repo)
	require.NoError(t, restored.LoadFromDatabase())
	assert.True(t, restored.IsInCooldown(domain.ProviderAnthropic))
	assert.Equal(t, ReasonAuthFailed, restored.GetCooldownInfo(domain.ProviderAnthropic).Reason)

	restored.RecordSuccess(domain.ProviderAnthropic)
	assert.Empty(t, repo.rows)
}

func TestPersistenceKeepsBackoff(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &memCooldowns{rows: map[domain.ProviderType]*domain.Cooldown{}}

	m := newTestManager(&now)
	m.SetRepository(repo)
	m.RecordFailure(domain.ProviderOpenAI, ReasonServerError, nil)
	m.RecordFailure(domain.ProviderOpenAI, ReasonServerError, nil)
	assert.Equal(t, 2, repo.rows[domain.ProviderOpenAI].FailureCount)

	restored := newTestManager(&now)
	restored.SetRepository(repo)
	require.NoError(t, restored.LoadFromDatabase())

	policy := DefaultPolicies()[ReasonServerError]
	until := restored.RecordFailure(domain.ProviderOpenAI, ReasonServerError, nil)
	assert.Equal(t, now.Add(policy.CalculateCooldown(3)), until)
	assert.Equal(t, 3, repo.rows[domain.ProviderOpenAI].FailureCount)
}
