package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/adapter/provider/providertest"
	"github.com/awsl-project/appforge/internal/cooldown"
	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/repository/sqlite"
	"github.com/awsl-project/appforge/internal/router"
	"github.com/awsl-project/appforge/internal/sandbox"
	"github.com/awsl-project/appforge/internal/snapshot"
)

func newAdmin(t *testing.T, rt sandbox.Runtime) (*AdminService, *sqlite.DB, *cooldown.Manager) {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cm := cooldown.NewManager()
	r := router.NewRouter(cm)
	r.SetAdapter(domain.ProviderOpenAI, providertest.New("openai"))

	sbx := sandbox.NewManager(rt, sandbox.Options{}, nil)
	t.Cleanup(func() { sbx.Close(context.Background()) })

	svc := NewAdminService(
		r,
		cm,
		sqlite.NewGenerationRepository(db),
		sqlite.NewGenerationAttemptRepository(db),
		sqlite.NewProjectRepository(db),
		snapshot.NewArchiver(nil, sqlite.NewSnapshotRepository(db)),
		sbx,
	)
	return svc, db, cm
}

func TestAdminGetModels(t *testing.T) {
	svc, _, cm := newAdmin(t, nil)
	cm.RecordFailure(domain.ProviderOpenAI, cooldown.ReasonServerError, nil)

	models := svc.GetModels()
	require.Len(t, models, len(domain.AvailableModels))

	byID := map[string]ModelStatus{}
	for _, m := range models {
		byID[m.ID] = m
	}
	assert.False(t, byID["claude-sonnet-4-5"].Configured)
	assert.True(t, byID["claude-sonnet-4-5"].IsDefault)
	assert.Nil(t, byID["claude-sonnet-4-5"].Cooldown)

	gpt := byID["gpt-5"]
	assert.True(t, gpt.Configured)
	require.NotNil(t, gpt.Cooldown)
	assert.Equal(t, domain.ProviderOpenAI, gpt.Cooldown.Provider)

	require.Len(t, svc.GetCooldowns(), 1)
	svc.ClearCooldown(domain.ProviderOpenAI)
	assert.Empty(t, svc.GetCooldowns())
}

func TestAdminGenerations(t *testing.T) {
	svc, db, _ := newAdmin(t, nil)
	gens := sqlite.NewGenerationRepository(db)
	attempts := sqlite.NewGenerationAttemptRepository(db)

	for i := 0; i < 3; i++ {
		g := &domain.Generation{ConversationID: "c", Status: domain.GenerationStatusCompleted, StartTime: time.Now()}
		require.NoError(t, gens.Create(g))
		require.NoError(t, attempts.Create(&domain.GenerationAttempt{GenerationID: g.ID, ModelID: "gpt-5"}))
	}

	page, err := svc.GetGenerations(2, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Total)

	page, err = svc.GetGenerations(0, -1)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 0, page.Offset)

	detail, err := svc.GetGeneration(page.Items[0].ID)
	require.NoError(t, err)
	assert.Len(t, detail.Attempts, 1)

	_, err = svc.GetGeneration(999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdminProjects(t *testing.T) {
	svc, db, _ := newAdmin(t, nil)
	projects := sqlite.NewProjectRepository(db)
	require.NoError(t, projects.Save(&domain.Project{ConversationID: "c1", Files: domain.FileMapOf("a", "1")}))

	p, err := svc.GetProject("c1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Files.Len())

	require.NoError(t, svc.DeleteProject(context.Background(), "c1"))
	assert.ErrorIs(t, svc.DeleteProject(context.Background(), "c1"), domain.ErrNotFound)

	snaps, err := svc.GetSnapshots("c1")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestAdminSandboxes(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		svc, _, _ := newAdmin(t, nil)
		assert.Empty(t, svc.GetSandboxes())
		assert.ErrorIs(t, svc.TeardownSandbox(context.Background(), "x"), domain.ErrSandboxDisabled)
	})

	t.Run("enabled", func(t *testing.T) {
		svc, _, _ := newAdmin(t, &stubRuntime{})
		_, err := svc.sandboxes.EnsureSession(context.Background(), "conv")
		require.NoError(t, err)

		require.Len(t, svc.GetSandboxes(), 1)
		require.NoError(t, svc.TeardownSandbox(context.Background(), "conv"))
		assert.ErrorIs(t, svc.TeardownSandbox(context.Background(), "conv"), domain.ErrNotFound)
	})
}
