package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	_ "github.com/awsl-project/appforge/internal/adapter/provider/anthropic"
	_ "github.com/awsl-project/appforge/internal/adapter/provider/gemini"
	_ "github.com/awsl-project/appforge/internal/adapter/provider/openai"
	"github.com/awsl-project/appforge/internal/config"
	"github.com/awsl-project/appforge/internal/cooldown"
	"github.com/awsl-project/appforge/internal/executor"
	"github.com/awsl-project/appforge/internal/handler"
	"github.com/awsl-project/appforge/internal/repository"
	"github.com/awsl-project/appforge/internal/repository/cached"
	"github.com/awsl-project/appforge/internal/repository/sqlite"
	"github.com/awsl-project/appforge/internal/router"
	"github.com/awsl-project/appforge/internal/sandbox"
	"github.com/awsl-project/appforge/internal/service"
	"github.com/awsl-project/appforge/internal/snapshot"
)

// DatabaseRepos 包含所有数据库仓库
type DatabaseRepos struct {
	DB                *sqlite.DB
	GenerationRepo    repository.GenerationRepository
	AttemptRepo       repository.GenerationAttemptRepository
	ProjectRepo       repository.ProjectRepository
	SnapshotRepo      repository.SnapshotRepository
	CooldownRepo      repository.CooldownRepository
	CachedProjectRepo *cached.ProjectRepository
}

// ServerComponents 包含服务器运行所需的所有组件
type ServerComponents struct {
	Router          *router.Router
	Cooldowns       *cooldown.Manager
	WebSocketHub    *handler.WebSocketHub
	LogWriter       *handler.WebSocketLogWriter
	Executor        *executor.Executor
	Sandboxes       *sandbox.Manager
	Archiver        *snapshot.Archiver
	GenerateService *service.GenerateService
	AdminService    *service.AdminService
	GenerateHandler *handler.GenerateHandler
	AdminHandler    *handler.AdminHandler
	TokenAuth       *handler.TokenAuthMiddleware
}

// InitializeDatabase 初始化数据库和所有仓库
func InitializeDatabase(cfg *config.Config) (*DatabaseRepos, error) {
	if cfg.DSN == "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	log.Printf("[Core] Initializing database")

	db, err := sqlite.NewDBWithDSN(cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	projectRepo := sqlite.NewProjectRepository(db)

	log.Printf("[Core] Creating cached repositories")
	cachedProjectRepo := cached.NewProjectRepository(projectRepo)

	repos := &DatabaseRepos{
		DB:                db,
		GenerationRepo:    sqlite.NewGenerationRepository(db),
		AttemptRepo:       sqlite.NewGenerationAttemptRepository(db),
		ProjectRepo:       projectRepo,
		SnapshotRepo:      sqlite.NewSnapshotRepository(db),
		CooldownRepo:      sqlite.NewCooldownRepository(db),
		CachedProjectRepo: cachedProjectRepo,
	}

	log.Printf("[Core] Database initialized successfully")
	return repos, nil
}

// InitializeServerComponents 初始化服务器运行所需的所有组件
// logOutput 是日志的终端输出（serve 用 stdout，CLI 生成用 stderr）
func InitializeServerComponents(
	repos *DatabaseRepos,
	cfg *config.Config,
	instanceID string,
	logOutput io.Writer,
) (*ServerComponents, error) {
	log.Printf("[Core] Creating WebSocket hub")
	wsHub := handler.NewWebSocketHub()

	log.Printf("[Core] Setting up log output to broadcast via WebSocket")
	logWriter := handler.NewWebSocketLogWriter(wsHub, logOutput, cfg.LogPath())
	log.SetOutput(logWriter)

	log.Printf("[Core] Initializing server components")

	log.Printf("[Core] Initializing cooldown manager with database persistence")
	cm := cooldown.Default()
	cm.SetRepository(repos.CooldownRepo)
	if err := cm.LoadFromDatabase(); err != nil {
		log.Printf("[Core] Warning: Failed to load cooldowns from database: %v", err)
	}

	log.Printf("[Core] Marking stale generations as failed")
	if count, err := repos.GenerationRepo.MarkStaleAsFailed(instanceID); err != nil {
		log.Printf("[Core] Warning: Failed to mark stale generations: %v", err)
	} else if count > 0 {
		log.Printf("[Core] Marked %d stale generations as failed", count)
	}

	log.Printf("[Core] Loading cached data")
	if err := repos.CachedProjectRepo.Load(); err != nil {
		log.Printf("[Core] Warning: Failed to load projects cache: %v", err)
	}

	log.Printf("[Core] Creating router")
	r := router.NewRouter(cm)

	log.Printf("[Core] Initializing provider adapters")
	if err := r.InitAdapters(cfg.Providers); err != nil {
		log.Printf("[Core] Warning: Failed to initialize adapters: %v", err)
	}
	if len(cfg.ConfiguredProviders()) == 0 {
		log.Printf("[Core] Warning: No provider API key configured, generation requests will fail")
	}

	log.Printf("[Core] Creating executor")
	exec := executor.NewExecutor(r, nil, repos.GenerationRepo, repos.AttemptRepo, cm, wsHub, instanceID)

	log.Printf("[Core] Creating sandbox manager (runtime: %s)", cfg.Sandbox.Runtime)
	sandboxes := sandbox.NewManager(newSandboxRuntime(cfg), sandbox.Options{
		SessionTimeout: cfg.Sandbox.Timeout,
		InstallTimeout: cfg.Sandbox.InstallTimeout,
		SettleDelay:    sandbox.DefaultOptions().SettleDelay,
		DevPort:        cfg.Sandbox.DevPort,
	}, wsHub)

	log.Printf("[Core] Creating snapshot archiver (backend: %s)", cfg.Snapshot.Backend)
	store, err := newSnapshotStore(cfg)
	if err != nil {
		log.Printf("[Core] Warning: Snapshots disabled: %v", err)
	}
	archiver := snapshot.NewArchiver(store, repos.SnapshotRepo)

	log.Printf("[Core] Creating services")
	generateService := service.NewGenerateService(
		exec,
		repos.CachedProjectRepo,
		repos.GenerationRepo,
		archiver,
		sandboxes,
		wsHub,
		cfg.PromptEnhance,
	)
	adminService := service.NewAdminService(
		r,
		cm,
		repos.GenerationRepo,
		repos.AttemptRepo,
		repos.CachedProjectRepo,
		archiver,
		sandboxes,
	)

	log.Printf("[Core] Creating handlers")
	components := &ServerComponents{
		Router:          r,
		Cooldowns:       cm,
		WebSocketHub:    wsHub,
		LogWriter:       logWriter,
		Executor:        exec,
		Sandboxes:       sandboxes,
		Archiver:        archiver,
		GenerateService: generateService,
		AdminService:    adminService,
		GenerateHandler: handler.NewGenerateHandler(generateService, cfg.GenerateTimeout),
		AdminHandler:    handler.NewAdminHandler(adminService, cfg.LogPath()),
		TokenAuth:       handler.NewTokenAuthMiddleware(cfg.AdminToken),
	}

	log.Printf("[Core] Server components initialized successfully")
	return components, nil
}

func newSandboxRuntime(cfg *config.Config) sandbox.Runtime {
	switch cfg.Sandbox.Runtime {
	case config.SandboxRuntimeLocal:
		return sandbox.NewLocalRuntime(cfg.Sandbox.Dir, cfg.Sandbox.Host, cfg.Sandbox.DevPort)
	case config.SandboxRuntimeNone, "":
		return nil
	default:
		log.Printf("[Core] Warning: Unknown sandbox runtime %q, previews disabled", cfg.Sandbox.Runtime)
		return nil
	}
}

func newSnapshotStore(cfg *config.Config) (snapshot.Store, error) {
	switch cfg.Snapshot.Backend {
	case config.SnapshotBackendDisk:
		store, err := snapshot.NewDiskStore(cfg.Snapshot.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SnapshotBackendS3:
		store, err := snapshot.NewS3Store(snapshot.S3Config{
			Endpoint:  cfg.Snapshot.Endpoint,
			Region:    cfg.Snapshot.Region,
			AccessKey: cfg.Snapshot.AccessKey,
			SecretKey: cfg.Snapshot.SecretKey,
			Bucket:    cfg.Snapshot.Bucket,
			UseSSL:    cfg.Snapshot.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SnapshotBackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

// Shutdown 关闭沙箱和日志文件
func (c *ServerComponents) Shutdown(ctx context.Context) {
	c.Sandboxes.Close(ctx)
	if err := c.LogWriter.Close(); err != nil {
		log.Printf("[Core] Failed to close log file: %v", err)
	}
}

// CloseDatabase 关闭数据库连接
func CloseDatabase(repos *DatabaseRepos) error {
	if repos != nil && repos.DB != nil {
		return repos.DB.Close()
	}
	return nil
}
