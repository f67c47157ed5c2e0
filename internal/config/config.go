// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/domain"
)

const (
	SandboxRuntimeNone  = "none"
	SandboxRuntimeLocal = "local"

	SnapshotBackendNone = "none"
	SnapshotBackendDisk = "disk"
	SnapshotBackendS3   = "s3"
)

type Config struct {
	Addr    string
	DataDir string

	// 为空时使用数据目录下的 SQLite 文件
	DSN string

	Providers map[domain.ProviderType]provider.Config

	Sandbox  SandboxConfig
	Snapshot SnapshotConfig

	GenerationRetentionDays int
	GenerateTimeout         time.Duration
	PromptEnhance           bool

	// 管理接口令牌，为空时不校验
	AdminToken string
	// 构建好的前端目录，为空时不提供静态文件
	WebDir string
}

type SandboxConfig struct {
	Runtime        string
	Dir            string
	Host           string
	Timeout        time.Duration
	InstallTimeout time.Duration
	DevPort        int
}

type SnapshotConfig struct {
	Backend   string
	Dir       string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(), nil
}

// FromEnv builds the configuration from the current environment only
func FromEnv() *Config {
	dataDir := firstNonEmpty(env("APPFORGE_DATA_DIR"), defaultDataDir())

	cfg := &Config{
		Addr:    firstNonEmpty(env("APPFORGE_ADDR"), ":9880"),
		DataDir: dataDir,
		DSN:     env("APPFORGE_DSN"),
		Providers: map[domain.ProviderType]provider.Config{
			domain.ProviderAnthropic: {
				APIKey:  env("ANTHROPIC_API_KEY"),
				BaseURL: env("ANTHROPIC_BASE_URL"),
			},
			domain.ProviderGoogle: {
				APIKey: firstNonEmpty(env("GOOGLE_AI_API_KEY"), env("GEMINI_API_KEY")),
			},
			domain.ProviderOpenAI: {
				APIKey:  env("OPENAI_API_KEY"),
				BaseURL: env("OPENAI_BASE_URL"),
			},
		},
		Sandbox: SandboxConfig{
			Runtime:        strings.ToLower(firstNonEmpty(env("SANDBOX_RUNTIME"), SandboxRuntimeNone)),
			Dir:            env("SANDBOX_DIR"),
			Host:           firstNonEmpty(env("SANDBOX_HOST"), "localhost"),
			Timeout:        envDuration("SANDBOX_TIMEOUT", 30*time.Minute),
			InstallTimeout: envDuration("SANDBOX_INSTALL_TIMEOUT", 2*time.Minute),
			DevPort:        envInt("SANDBOX_DEV_PORT", 5173),
		},
		Snapshot: SnapshotConfig{
			Backend:   strings.ToLower(firstNonEmpty(env("SNAPSHOT_BACKEND"), SnapshotBackendNone)),
			Dir:       env("SNAPSHOT_DIR"),
			Endpoint:  env("SNAPSHOT_S3_ENDPOINT"),
			Region:    firstNonEmpty(env("SNAPSHOT_S3_REGION"), "us-east-1"),
			AccessKey: env("SNAPSHOT_S3_ACCESS_KEY"),
			SecretKey: env("SNAPSHOT_S3_SECRET_KEY"),
			Bucket:    firstNonEmpty(env("SNAPSHOT_S3_BUCKET"), "appforge-snapshots"),
			UseSSL:    envBool("SNAPSHOT_S3_USE_SSL", true),
		},
		GenerationRetentionDays: envInt("GENERATION_RETENTION_DAYS", 7),
		GenerateTimeout:         envDuration("GENERATE_TIMEOUT", 10*time.Minute),
		PromptEnhance:           envBool("PROMPT_ENHANCE", true),
		AdminToken:              env("APPFORGE_ADMIN_TOKEN"),
		WebDir:                  env("APPFORGE_WEB_DIR"),
	}
	cfg.SetDataDir(dataDir)
	return cfg
}

// SetDataDir moves every path that was derived from the data directory
func (c *Config) SetDataDir(dir string) {
	c.DataDir = dir
	if env("SANDBOX_DIR") == "" {
		c.Sandbox.Dir = filepath.Join(dir, "sandboxes")
	}
	if env("SNAPSHOT_DIR") == "" {
		c.Snapshot.Dir = filepath.Join(dir, "snapshots")
	}
}

// DatabaseDSN returns the configured DSN or the default SQLite file
func (c *Config) DatabaseDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return "sqlite://" + c.DBPath()
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "appforge.db")
}

func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "appforge.log")
}

// ConfiguredProviders lists providers with a credential, in fallback order
func (c *Config) ConfiguredProviders() []domain.ProviderType {
	var out []domain.ProviderType
	for _, pt := range []domain.ProviderType{domain.ProviderAnthropic, domain.ProviderGoogle, domain.ProviderOpenAI} {
		if c.Providers[pt].Configured() {
			out = append(out, pt)
		}
	}
	return out
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".appforge"
	}
	return filepath.Join(home, ".config", "appforge")
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env(key)); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(env(key)); err == nil {
		return v
	}
	return def
}

// envDuration accepts Go durations ("90s") and plain seconds ("90")
func envDuration(key string, def time.Duration) time.Duration {
	raw := env(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
