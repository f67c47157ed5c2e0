package sandbox

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/event"
)

// ProjectDir is the project root inside every instance
const ProjectDir = "project"

// DefaultKey is used when a request carries no conversation ID
const DefaultKey = "default"

const (
	stopDevServerCmd = `pkill -f "npm run dev" || pkill -f vite || true`
	maxSessions      = 64
)

// Options 沙箱会话参数
type Options struct {
	// 会话寿命（墙钟时间，不随使用续期）
	SessionTimeout time.Duration
	InstallTimeout time.Duration
	KillTimeout    time.Duration
	SettleDelay    time.Duration
	DevPort        int
}

func DefaultOptions() Options {
	return Options{
		SessionTimeout: 30 * time.Minute,
		InstallTimeout: 2 * time.Minute,
		KillTimeout:    10 * time.Second,
		SettleDelay:    3 * time.Second,
		DevPort:        5173,
	}
}

type session struct {
	mu       sync.Mutex
	info     domain.SandboxSession
	instance Instance

	// 实例被 Kill 之后关闭
	closed chan struct{}
}

func (s *session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Expired(now)
}

func (s *session) snapshot() *domain.SandboxSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.info
	return &cp
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Manager owns sandbox sessions keyed by an opaque session key. Sessions
// expire a fixed time after creation and are killed on eviction.
type Manager struct {
	runtime     Runtime
	opts        Options
	broadcaster event.Broadcaster

	sessions *expirable.LRU[string, *session]
	group    singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*keyLock

	// 已驱逐、尚未 Kill 完的会话
	killMu  sync.Mutex
	killing map[*session]struct{}
}

// NewManager creates a session manager. A nil runtime yields a disabled
// manager whose operations return domain.ErrSandboxDisabled.
func NewManager(rt Runtime, opts Options, bc event.Broadcaster) *Manager {
	def := DefaultOptions()
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = def.SessionTimeout
	}
	if opts.InstallTimeout <= 0 {
		opts.InstallTimeout = def.InstallTimeout
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = def.KillTimeout
	}
	if opts.DevPort <= 0 {
		opts.DevPort = def.DevPort
	}
	if bc == nil {
		bc = &event.NopBroadcaster{}
	}

	m := &Manager{
		runtime:     rt,
		opts:        opts,
		broadcaster: bc,
		locks:       make(map[string]*keyLock),
		killing:     make(map[*session]struct{}),
	}
	m.sessions = expirable.NewLRU[string, *session](maxSessions, m.onEvict, opts.SessionTimeout)
	return m
}

func (m *Manager) Enabled() bool {
	return m != nil && m.runtime != nil
}

func (m *Manager) Options() Options {
	return m.opts
}

// onEvict runs under the LRU lock for expiry, Remove and Purge alike, so
// the kill itself happens on its own goroutine
func (m *Manager) onEvict(key string, s *session) {
	m.killMu.Lock()
	m.killing[s] = struct{}{}
	m.killMu.Unlock()

	go func() {
		defer func() {
			m.killMu.Lock()
			delete(m.killing, s)
			m.killMu.Unlock()
			close(s.closed)
		}()
		m.kill(key, s)
	}()
}

func (m *Manager) kill(key string, s *session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.KillTimeout)
	defer cancel()

	if err := s.instance.Kill(ctx); err != nil {
		log.Printf("[Sandbox] Failed to kill instance %s for %s: %v", s.instance.ID(), key, err)
	} else {
		log.Printf("[Sandbox] Session %s closed (instance %s)", key, s.instance.ID())
	}
	m.broadcaster.BroadcastMessage("sandbox_closed", map[string]string{
		"key":       key,
		"sandboxId": s.instance.ID(),
	})
}

// EnsureSession returns the live session for key, creating it on first use.
// Concurrent callers for one key share a single creation.
func (m *Manager) EnsureSession(ctx context.Context, key string) (*domain.SandboxSession, error) {
	s, err := m.ensure(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (m *Manager) ensure(ctx context.Context, key string) (*session, error) {
	if !m.Enabled() {
		return nil, domain.ErrSandboxDisabled
	}
	if key == "" {
		key = DefaultKey
	}
	if s, ok := m.live(key); ok {
		return s, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if s, ok := m.live(key); ok {
			return s, nil
		}
		// 过期条目可能还留在 LRU 里，Add 覆盖时不会触发驱逐回调
		if m.sessions.Remove(key) {
			log.Printf("[Sandbox] Session %s expired, replacing", key)
		}
		inst, err := m.runtime.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create sandbox: %w", err)
		}
		now := time.Now()
		s := &session{
			instance: inst,
			closed:   make(chan struct{}),
			info: domain.SandboxSession{
				ID:               inst.ID(),
				Key:              key,
				ProjectDirectory: ProjectDir,
				CreatedAt:        now,
				ExpiresAt:        now.Add(m.opts.SessionTimeout),
			},
		}
		m.sessions.Add(key, s)
		log.Printf("[Sandbox] Session %s created (instance %s, runtime %s)", key, inst.ID(), m.runtime.Name())
		m.broadcaster.BroadcastMessage("sandbox_created", s.snapshot())
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

// live returns the session of key unless it is past its hard expiry
func (m *Manager) live(key string) (*session, bool) {
	s, ok := m.sessions.Get(key)
	if !ok || s.expired(time.Now()) {
		return nil, false
	}
	return s, true
}

// lockKey serializes deploys of one key
func (m *Manager) lockKey(key string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.locksMu.Unlock()
	}
}

// Deploy writes files into the session of key and (re)starts the dev server.
// Any failure tears the session down before returning the error.
func (m *Manager) Deploy(ctx context.Context, key string, files *domain.FileMap) (*domain.Deployment, error) {
	if !m.Enabled() {
		return nil, domain.ErrSandboxDisabled
	}
	if key == "" {
		key = DefaultKey
	}

	unlock := m.lockKey(key)
	defer unlock()

	s, err := m.ensure(ctx, key)
	if err != nil {
		return nil, err
	}

	dep, err := m.deploy(ctx, s, files)
	if err != nil {
		log.Printf("[Sandbox] Deploy to %s failed: %v", key, err)
		if cur, ok := m.sessions.Peek(key); !ok || cur == s {
			m.sessions.Remove(key)
		}
		<-s.closed
		return nil, err
	}

	log.Printf("[Sandbox] Deployed %d files to %s: %s", files.Len(), key, dep.URL)
	m.broadcaster.BroadcastMessage("sandbox_deployed", s.snapshot())
	return dep, nil
}

func (m *Manager) deploy(ctx context.Context, s *session, files *domain.FileMap) (*domain.Deployment, error) {
	inst := s.instance

	if err := inst.MakeDir(ctx, ProjectDir); err != nil {
		return nil, fmt.Errorf("create project directory: %w", err)
	}

	var writeErr error
	files.Range(func(p, content string) bool {
		rel, err := projectPath(p)
		if err != nil {
			writeErr = err
			return false
		}
		if err := inst.WriteFile(ctx, rel, []byte(content)); err != nil {
			writeErr = fmt.Errorf("write %s: %w", p, err)
			return false
		}
		return true
	})
	if writeErr != nil {
		return nil, writeErr
	}

	s.mu.Lock()
	installed := s.info.DependenciesInstalled
	s.mu.Unlock()

	if !installed {
		res, err := inst.Run(ctx, "cd "+ProjectDir+" && npm install", m.opts.InstallTimeout)
		if err != nil {
			return nil, fmt.Errorf("npm install: %w", err)
		}
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("npm install exited with %d: %s", res.ExitCode, lastLine(res.Stderr))
		}
		s.mu.Lock()
		s.info.DependenciesInstalled = true
		s.mu.Unlock()
	}

	if err := m.stopDevServer(ctx, inst); err != nil {
		log.Printf("[Sandbox] Failed to stop previous dev server in %s: %v", inst.ID(), err)
	}

	port := m.opts.DevPort
	if pa, ok := inst.(portAllocator); ok {
		port = pa.DevPort()
	}
	startCmd := fmt.Sprintf("cd %s && npm run dev -- --host 0.0.0.0 --port %d", ProjectDir, port)
	if err := inst.Start(ctx, startCmd); err != nil {
		return nil, fmt.Errorf("start dev server: %w", err)
	}

	if m.opts.SettleDelay > 0 {
		timer := time.NewTimer(m.opts.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	url := inst.PreviewURL(port)

	s.mu.Lock()
	s.info.DevServerRunning = true
	s.info.PreviewURL = url
	expires := s.info.ExpiresAt
	s.mu.Unlock()

	return &domain.Deployment{
		URL:       url,
		SandboxID: inst.ID(),
		ExpiresAt: expires,
	}, nil
}

func (m *Manager) stopDevServer(ctx context.Context, inst Instance) error {
	stopCtx, cancel := context.WithTimeout(ctx, m.opts.KillTimeout)
	defer cancel()

	if bs, ok := inst.(backgroundStopper); ok {
		return bs.StopBackground(stopCtx)
	}
	_, err := inst.Run(stopCtx, stopDevServerCmd, m.opts.KillTimeout)
	return err
}

// Teardown kills the session of key if there is one
func (m *Manager) Teardown(ctx context.Context, key string) bool {
	if !m.Enabled() {
		return false
	}
	if key == "" {
		key = DefaultKey
	}
	s, ok := m.sessions.Peek(key)
	if !m.sessions.Remove(key) {
		return false
	}
	if ok {
		select {
		case <-s.closed:
		case <-ctx.Done():
		}
	}
	return true
}

// Sessions lists live sessions, oldest first
func (m *Manager) Sessions() []*domain.SandboxSession {
	if !m.Enabled() {
		return nil
	}
	values := m.sessions.Values()
	now := time.Now()
	out := make([]*domain.SandboxSession, 0, len(values))
	for _, s := range values {
		if snap := s.snapshot(); !snap.Expired(now) {
			out = append(out, snap)
		}
	}
	return out
}

// Close kills every session
func (m *Manager) Close(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	n := m.sessions.Len()
	m.sessions.Purge()

	m.killMu.Lock()
	pending := make([]*session, 0, len(m.killing))
	for s := range m.killing {
		pending = append(pending, s)
	}
	m.killMu.Unlock()

	for _, s := range pending {
		select {
		case <-s.closed:
		case <-ctx.Done():
			return
		}
	}
	if n > 0 {
		log.Printf("[Sandbox] Closed %d sessions", n)
	}
}

// projectPath validates a FileMap key and places it under the project root
func projectPath(p string) (string, error) {
	np := domain.NormalizePath(p)
	if np == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathEscape)
	}
	clean := path.Clean(np)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	return path.Join(ProjectDir, clean), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
