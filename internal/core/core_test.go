package core

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/config"
	"github.com/awsl-project/appforge/internal/domain"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{
		"APPFORGE_DSN", "ANTHROPIC_API_KEY", "GOOGLE_AI_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY",
		"SANDBOX_RUNTIME", "SANDBOX_DIR", "SNAPSHOT_BACKEND", "SNAPSHOT_DIR", "APPFORGE_ADMIN_TOKEN", "APPFORGE_WEB_DIR",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("APPFORGE_DATA_DIR", t.TempDir())
	t.Setenv("SNAPSHOT_BACKEND", "disk")
	return config.FromEnv()
}

func newTestServer(t *testing.T, cfg *config.Config) (*ManagedServer, *DatabaseRepos) {
	t.Helper()
	repos, err := InitializeDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDatabase(repos) })

	components, err := InitializeServerComponents(repos, cfg, "test", io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() {
		components.Shutdown(context.Background())
		log.SetOutput(os.Stderr)
	})

	srv, err := NewManagedServer(&ServerConfig{
		Addr:       cfg.Addr,
		DataDir:    cfg.DataDir,
		InstanceID: "test",
		Components: components,
		WebDir:     cfg.WebDir,
	})
	require.NoError(t, err)
	return srv, repos
}

func TestServerRoutes(t *testing.T) {
	cfg := newTestConfig(t)
	srv, _ := newTestServer(t, cfg)

	tests := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/models", http.StatusOK},
		{http.MethodGet, "/api/sandboxes", http.StatusOK},
		{http.MethodGet, "/api/generate", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodGet, "/", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestServerAdminToken(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AdminToken = "s3cret"
	srv, _ := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// /health 不需要令牌
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Addr = "127.0.0.1:0"
	srv, _ := newTestServer(t, cfg)

	require.NoError(t, srv.Start(context.Background()))
	assert.True(t, srv.IsRunning())
	addr := srv.GetAddr()
	assert.NotEqual(t, "127.0.0.1:0", addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"instanceId":"test"`)

	require.NoError(t, srv.Stop(context.Background()))
	assert.False(t, srv.IsRunning())
	require.NoError(t, srv.Stop(context.Background()))

	_, err = http.Get("http://" + addr + "/health")
	assert.Error(t, err)
}

func TestComponentsFromConfig(t *testing.T) {
	cfg := newTestConfig(t)
	_, repos := newTestServer(t, cfg)

	components, err := InitializeServerComponents(repos, cfg, "test-2", io.Discard)
	require.NoError(t, err)
	defer components.Shutdown(context.Background())

	assert.False(t, components.Sandboxes.Enabled())
	assert.True(t, components.Archiver.Enabled())
	assert.False(t, components.Router.Configured(domain.ProviderAnthropic))
}

func TestCleanupOldGenerations(t *testing.T) {
	cfg := newTestConfig(t)
	repos, err := InitializeDatabase(cfg)
	require.NoError(t, err)
	defer CloseDatabase(repos)

	old := &domain.Generation{
		Status:    "COMPLETED",
		StartTime: time.Now().AddDate(0, 0, -10),
		EndTime:   time.Now().AddDate(0, 0, -10),
	}
	recent := &domain.Generation{
		Status:    "COMPLETED",
		StartTime: time.Now(),
		EndTime:   time.Now(),
	}
	running := &domain.Generation{Status: "IN_PROGRESS", StartTime: time.Now().AddDate(0, 0, -10)}
	for _, g := range []*domain.Generation{old, recent, running} {
		require.NoError(t, repos.GenerationRepo.Create(g))
	}

	deps := BackgroundTaskDeps{
		Generations:   repos.GenerationRepo,
		Attempts:      repos.AttemptRepo,
		RetentionDays: 7,
	}
	deps.cleanupOldGenerations()

	_, err = repos.GenerationRepo.GetByID(old.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repos.GenerationRepo.GetByID(recent.ID)
	assert.NoError(t, err)
	_, err = repos.GenerationRepo.GetByID(running.ID)
	assert.NoError(t, err)

	// 0 表示不清理
	recent.EndTime = time.Now().AddDate(0, 0, -30)
	require.NoError(t, repos.GenerationRepo.Update(recent))
	(&BackgroundTaskDeps{Generations: repos.GenerationRepo}).cleanupOldGenerations()
	_, err = repos.GenerationRepo.GetByID(recent.ID)
	assert.NoError(t, err)
}
