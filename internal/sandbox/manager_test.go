package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/event"
)

type fakeRuntime struct {
	mu        sync.Mutex
	instances []*fakeInstance
	delay     time.Duration

	// 命令包含该子串时返回非零退出码
	failOn string
	// 并发 Run 计数
	running    atomic.Int32
	maxRunning atomic.Int32
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) Create(ctx context.Context) (Instance, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inst := &fakeInstance{rt: r, id: fmt.Sprintf("inst-%d", len(r.instances)+1), files: map[string]string{}}
	r.instances = append(r.instances, inst)
	return inst, nil
}

func (r *fakeRuntime) created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

func (r *fakeRuntime) instance(i int) *fakeInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[i]
}

type fakeInstance struct {
	rt *fakeRuntime
	id string

	mu       sync.Mutex
	dirs     []string
	files    map[string]string
	commands []string
	started  []string
	killed   bool

	killDelay time.Duration
}

func (i *fakeInstance) ID() string { return i.id }

func (i *fakeInstance) MakeDir(ctx context.Context, p string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.dirs = append(i.dirs, p)
	return nil
}

func (i *fakeInstance) WriteFile(ctx context.Context, p string, content []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.files[p] = string(content)
	return nil
}

func (i *fakeInstance) Run(ctx context.Context, cmd string, timeout time.Duration) (*CommandResult, error) {
	n := i.rt.running.Add(1)
	defer i.rt.running.Add(-1)
	for {
		cur := i.rt.maxRunning.Load()
		if n <= cur || i.rt.maxRunning.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	i.mu.Lock()
	i.commands = append(i.commands, cmd)
	i.mu.Unlock()

	if i.rt.failOn != "" && strings.Contains(cmd, i.rt.failOn) {
		return &CommandResult{ExitCode: 1, Stderr: "npm ERR! boom"}, nil
	}
	return &CommandResult{}, nil
}

func (i *fakeInstance) Start(ctx context.Context, cmd string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.started = append(i.started, cmd)
	return nil
}

func (i *fakeInstance) PreviewURL(port int) string {
	return fmt.Sprintf("https://%d-%s.sandbox.test", port, i.id)
}

func (i *fakeInstance) Kill(ctx context.Context) error {
	i.mu.Lock()
	delay := i.killDelay
	i.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.killed = true
	return nil
}

func (i *fakeInstance) isKilled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.killed
}

func (i *fakeInstance) countCommands(substr string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, c := range i.commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.SettleDelay = time.Millisecond
	return opts
}

func TestEnsureSessionCollapsesConcurrentCreates(t *testing.T) {
	rt := &fakeRuntime{delay: 50 * time.Millisecond}
	m := NewManager(rt, testOptions(), nil)
	defer m.Close(context.Background())

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.EnsureSession(context.Background(), "conv-1")
			require.NoError(t, err)
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, rt.created())
	for _, id := range ids {
		assert.Equal(t, "inst-1", id)
	}

	s, err := m.EnsureSession(context.Background(), "conv-2")
	require.NoError(t, err)
	assert.Equal(t, "inst-2", s.ID)
	assert.Equal(t, 2, rt.created())
}

func TestDeploy(t *testing.T) {
	rt := &fakeRuntime{}
	bc := &event.Recorder{}
	m := NewManager(rt, testOptions(), bc)
	defer m.Close(context.Background())

	files := domain.FileMapOf(
		"package.json", `{"name":"app"}`,
		"/src/App.tsx", "export default 1",
	)
	dep, err := m.Deploy(context.Background(), "conv-1", files)
	require.NoError(t, err)
	assert.Equal(t, "https://5173-inst-1.sandbox.test", dep.URL)
	assert.Equal(t, "inst-1", dep.SandboxID)
	assert.False(t, dep.ExpiresAt.IsZero())

	inst := rt.instance(0)
	assert.Equal(t, []string{ProjectDir}, inst.dirs)
	assert.Equal(t, `{"name":"app"}`, inst.files["project/package.json"])
	assert.Equal(t, "export default 1", inst.files["project/src/App.tsx"])
	require.Len(t, inst.started, 1)
	assert.Equal(t, "cd project && npm run dev -- --host 0.0.0.0 --port 5173", inst.started[0])

	// 第二次部署不再安装依赖
	_, err = m.Deploy(context.Background(), "conv-1", files)
	require.NoError(t, err)
	assert.Equal(t, 1, rt.created())
	assert.Equal(t, 1, inst.countCommands("npm install"))
	assert.Equal(t, 2, inst.countCommands("pkill"))

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].DependenciesInstalled)
	assert.True(t, sessions[0].DevServerRunning)
	assert.Equal(t, dep.URL, sessions[0].PreviewURL)

	assert.Contains(t, bc.Types(), "sandbox_created")
	assert.Contains(t, bc.Types(), "sandbox_deployed")
}

func TestDeployFailureTearsDown(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
		files  *domain.FileMap
	}{
		{"install fails", "npm install", domain.FileMapOf("package.json", "{}")},
		{"path escapes project", "", domain.FileMapOf("../../etc/passwd", "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &fakeRuntime{failOn: tt.failOn}
			m := NewManager(rt, testOptions(), nil)

			_, err := m.Deploy(context.Background(), "conv-1", tt.files)
			require.Error(t, err)
			assert.True(t, rt.instance(0).isKilled())
			assert.Empty(t, m.Sessions())
		})
	}
}

func TestDeploySerializedPerKey(t *testing.T) {
	rt := &fakeRuntime{}
	m := NewManager(rt, testOptions(), nil)
	defer m.Close(context.Background())

	files := domain.FileMapOf("package.json", "{}")
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Deploy(context.Background(), "same", files)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), rt.maxRunning.Load())
	assert.Equal(t, 1, rt.created())
	assert.Equal(t, 1, rt.instance(0).countCommands("npm install"))
}

func TestDeployCancelledDuringSettle(t *testing.T) {
	rt := &fakeRuntime{}
	opts := testOptions()
	opts.SettleDelay = time.Hour
	m := NewManager(rt, opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Deploy(ctx, "conv-1", domain.FileMapOf("a.js", "1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, rt.instance(0).isKilled())
}

func TestTeardownAndClose(t *testing.T) {
	rt := &fakeRuntime{}
	m := NewManager(rt, testOptions(), nil)

	for _, key := range []string{"a", "b", ""} {
		_, err := m.EnsureSession(context.Background(), key)
		require.NoError(t, err)
	}
	assert.Len(t, m.Sessions(), 3)

	assert.True(t, m.Teardown(context.Background(), "a"))
	assert.False(t, m.Teardown(context.Background(), "a"))
	assert.True(t, rt.instance(0).isKilled())
	assert.Len(t, m.Sessions(), 2)

	m.Close(context.Background())
	assert.Empty(t, m.Sessions())
	assert.True(t, rt.instance(1).isKilled())
	assert.True(t, rt.instance(2).isKilled())
}

func TestSessionHardExpiry(t *testing.T) {
	rt := &fakeRuntime{}
	opts := testOptions()
	opts.SessionTimeout = 300 * time.Millisecond
	m := NewManager(rt, opts, nil)
	defer m.Close(context.Background())

	first, err := m.EnsureSession(context.Background(), "conv-1")
	require.NoError(t, err)

	// 使用不会续期
	time.Sleep(opts.SessionTimeout / 3)
	again, err := m.EnsureSession(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ExpiresAt, again.ExpiresAt)

	time.Sleep(time.Until(first.ExpiresAt) + 10*time.Millisecond)
	next, err := m.EnsureSession(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "inst-2", next.ID)
	assert.Equal(t, 2, rt.created())

	assert.Eventually(t, rt.instance(0).isKilled, time.Second, 5*time.Millisecond)
	assert.False(t, rt.instance(1).isKilled())

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "inst-2", sessions[0].ID)
}

func TestEvictionDoesNotBlockOtherKeys(t *testing.T) {
	rt := &fakeRuntime{}
	m := NewManager(rt, testOptions(), nil)
	defer m.Close(context.Background())

	_, err := m.EnsureSession(context.Background(), "slow")
	require.NoError(t, err)
	slow := rt.instance(0)
	slow.killDelay = 200 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Teardown(context.Background(), "slow")
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	_, err = m.EnsureSession(context.Background(), "other")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	<-done
	assert.True(t, slow.isKilled())
}

func TestDisabledManager(t *testing.T) {
	m := NewManager(nil, Options{}, nil)
	assert.False(t, m.Enabled())

	_, err := m.EnsureSession(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrSandboxDisabled)
	_, err = m.Deploy(context.Background(), "x", domain.FileMapOf("a", "b"))
	assert.ErrorIs(t, err, domain.ErrSandboxDisabled)
	assert.Nil(t, m.Sessions())
	assert.False(t, m.Teardown(context.Background(), "x"))
}

func TestProjectPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"src/App.tsx", "project/src/App.tsx", false},
		{"/index.html", "project/index.html", false},
		{`src\\main.ts`, "project/src/main.ts", false},
		{"src/../vite.config.ts", "project/vite.config.ts", false},
		{"../escape.js", "", true},
		{"src/../../escape.js", "", true},
		{"  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := projectPath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathEscape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
