package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/adapter/provider/providertest"
	"github.com/awsl-project/appforge/internal/cooldown"
	"github.com/awsl-project/appforge/internal/domain"
)

func planIDs(cs []*Candidate) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.Model.ID)
	}
	return ids
}

func newAllConfigured(cm *cooldown.Manager) *Router {
	r := NewRouter(cm)
	r.SetAdapter(domain.ProviderAnthropic, providertest.New("anthropic"))
	r.SetAdapter(domain.ProviderGoogle, providertest.New("google"))
	r.SetAdapter(domain.ProviderOpenAI, providertest.New("openai"))
	return r
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		want      []string
	}{
		{"default", "", []string{"claude-sonnet-4-5", "gemini-3-pro", "gpt-5"}},
		{"requested first", "gpt-5", []string{"gpt-5", "claude-sonnet-4-5", "gemini-3-pro"}},
		{"no repeats", "gemini-3-pro", []string{"gemini-3-pro", "claude-sonnet-4-5", "gpt-5"}},
	}
	r := newAllConfigured(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := r.Plan(tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, planIDs(plan))
		})
	}
}

func TestPlanUnknownModel(t *testing.T) {
	r := newAllConfigured(nil)
	_, err := r.Plan("does-not-exist")
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
}

func TestPlanSkipsUnconfigured(t *testing.T) {
	r := NewRouter(nil)
	r.SetAdapter(domain.ProviderOpenAI, providertest.New("openai"))

	plan, err := r.Plan("claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-5"}, planIDs(plan))

	r.RemoveAdapter(domain.ProviderOpenAI)
	plan, err = r.Plan("")
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlanDefersCooldown(t *testing.T) {
	cm := cooldown.NewManager()
	cm.RecordFailure(domain.ProviderAnthropic, cooldown.ReasonServerError, nil)

	r := newAllConfigured(cm)
	plan, err := r.Plan("claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-3-pro", "gpt-5", "claude-sonnet-4-5"}, planIDs(plan))
}

func TestInitAdapters(t *testing.T) {
	const fakeType domain.ProviderType = "router-test"
	provider.RegisterAdapterFactory(fakeType, func(cfg provider.Config) (provider.Provider, error) {
		return providertest.New(string(fakeType)), nil
	})

	r := NewRouter(nil)
	require.NoError(t, r.InitAdapters(map[domain.ProviderType]provider.Config{
		fakeType:                 {APIKey: "k"},
		domain.ProviderAnthropic: {},
	}))
	assert.True(t, r.Configured(fakeType))
	assert.False(t, r.Configured(domain.ProviderAnthropic))
}
