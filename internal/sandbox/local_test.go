package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalInstance(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	ctx := context.Background()
	root := t.TempDir()
	rt := NewLocalRuntime(root, "", 6100)

	inst, err := rt.Create(ctx)
	require.NoError(t, err)
	dir := filepath.Join(root, inst.ID())
	assert.DirExists(t, dir)

	require.NoError(t, inst.WriteFile(ctx, "project/src/a.txt", []byte("hello")))
	res, err := inst.Run(ctx, "cat project/src/a.txt", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", res.Stdout)

	res, err = inst.Run(ctx, "echo oops >&2; exit 3", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)

	_, err = inst.Run(ctx, "sleep 5", 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = inst.WriteFile(ctx, "../outside.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrPathEscape)

	assert.Equal(t, "http://localhost:6100", inst.PreviewURL(inst.(portAllocator).DevPort()))

	require.NoError(t, inst.Start(ctx, "sleep 30"))
	require.NoError(t, inst.Kill(ctx))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalRuntimeAllocatesPorts(t *testing.T) {
	rt := NewLocalRuntime(t.TempDir(), "127.0.0.1", 7000)
	a, err := rt.Create(context.Background())
	require.NoError(t, err)
	b, err := rt.Create(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 7000, a.(portAllocator).DevPort())
	assert.Equal(t, 7001, b.(portAllocator).DevPort())
}
