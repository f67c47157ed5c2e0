// Package sandbox deploys generated projects into isolated instances that
// serve a live preview.
package sandbox

import (
	"context"
	"time"
)

// CommandResult 命令执行结果
type CommandResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Runtime creates sandbox instances
type Runtime interface {
	Name() string
	Create(ctx context.Context) (Instance, error)
}

// Instance is one isolated environment. Paths are relative to the
// instance root and may not escape it.
type Instance interface {
	ID() string
	MakeDir(ctx context.Context, path string) error
	WriteFile(ctx context.Context, path string, content []byte) error

	// Run executes a shell command and waits for it, at most timeout
	Run(ctx context.Context, cmd string, timeout time.Duration) (*CommandResult, error)

	// Start launches a shell command in the background
	Start(ctx context.Context, cmd string) error

	PreviewURL(port int) string
	Kill(ctx context.Context) error
}

// backgroundStopper is implemented by instances that track their own
// background processes and can stop them without a shell command
type backgroundStopper interface {
	StopBackground(ctx context.Context) error
}

// portAllocator is implemented by instances that pick their own dev port
type portAllocator interface {
	DevPort() int
}
