package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrPathEscape is returned for paths that leave the instance root
var ErrPathEscape = errors.New("sandbox: path escapes instance root")

// LocalRuntime runs instances as directories on this host. Each instance
// gets its own dev port so several sessions can preview at once.
type LocalRuntime struct {
	Root     string
	Host     string
	BasePort int

	next atomic.Int32
}

func NewLocalRuntime(root, host string, basePort int) *LocalRuntime {
	if host == "" {
		host = "localhost"
	}
	return &LocalRuntime{Root: root, Host: host, BasePort: basePort}
}

func (r *LocalRuntime) Name() string {
	return "local"
}

func (r *LocalRuntime) Create(ctx context.Context) (Instance, error) {
	id := uuid.NewString()
	dir := filepath.Join(r.Root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create instance directory: %w", err)
	}
	port := r.BasePort + int(r.next.Add(1)-1)
	log.Printf("[Sandbox] Created local instance %s at %s (port %d)", id, dir, port)
	return &localInstance{id: id, dir: dir, host: r.Host, port: port}, nil
}

type localInstance struct {
	id   string
	dir  string
	host string
	port int

	mu    sync.Mutex
	procs []*exec.Cmd
}

func (i *localInstance) ID() string {
	return i.id
}

func (i *localInstance) DevPort() int {
	return i.port
}

// resolve maps a relative path into the instance directory
func (i *localInstance) resolve(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	return filepath.Join(i.dir, clean), nil
}

func (i *localInstance) MakeDir(ctx context.Context, p string) error {
	full, err := i.resolve(p)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}

func (i *localInstance) WriteFile(ctx context.Context, p string, content []byte) error {
	full, err := i.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

func (i *localInstance) Run(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = i.dir
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("command %q: %w", command, ctx.Err())
		}
		return result, err
	}
	return result, nil
}

func (i *localInstance) Start(ctx context.Context, command string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = i.dir
	setProcessGroup(cmd)

	logFile, err := os.OpenFile(filepath.Join(i.dir, "background.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return err
	}

	i.mu.Lock()
	i.procs = append(i.procs, cmd)
	i.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		logFile.Close()
	}()
	return nil
}

// StopBackground kills every process started with Start
func (i *localInstance) StopBackground(ctx context.Context) error {
	i.mu.Lock()
	procs := i.procs
	i.procs = nil
	i.mu.Unlock()

	var errs []error
	for _, cmd := range procs {
		if err := killProcessGroup(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (i *localInstance) PreviewURL(port int) string {
	return fmt.Sprintf("http://%s:%d", i.host, port)
}

func (i *localInstance) Kill(ctx context.Context) error {
	stopErr := i.StopBackground(ctx)
	if err := os.RemoveAll(i.dir); err != nil {
		return errors.Join(stopErr, err)
	}
	log.Printf("[Sandbox] Killed local instance %s", i.id)
	return stopErr
}
