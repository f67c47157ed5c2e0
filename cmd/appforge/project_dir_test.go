package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/merge"
	"github.com/awsl-project/appforge/internal/service"
)

func TestProjectDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "react"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "App.tsx"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Old.tsx"), []byte("gone"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "react", "index.js"), []byte("x"), 0o644))

	files, err := loadProjectDir(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/App.tsx", "src/Old.tsx"}, files.Paths())

	merged := domain.FileMapOf("src/App.tsx", "new", "src/components/Button.tsx", "btn")
	changes := []merge.FileChange{{Path: "src/Old.tsx", Kind: merge.ChangeDeleted}}
	require.NoError(t, writeProjectDir(dir, merged, changes))

	got, err := os.ReadFile(filepath.Join(dir, "src", "App.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "src", "components", "Button.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "btn", string(got))
	assert.NoFileExists(t, filepath.Join(dir, "src", "Old.tsx"))
}

func TestProjectFilePath(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"src/App.tsx", false},
		{"/index.html", false},
		{"../escape.js", true},
		{"src/../../escape.js", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := projectFilePath("/tmp/project", tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf}

	require.NoError(t, p.Emit(service.EventModel, map[string]string{"id": "claude-sonnet-4-5", "name": "Claude Sonnet 4.5"}))
	require.NoError(t, p.Emit(service.EventStage, map[string]string{"stage": "designing"}))
	require.NoError(t, p.Emit(service.EventCodeStream, map[string]string{"chunk": "{\"message\""}))
	require.NoError(t, p.Emit(service.EventFiles, domain.FileMapOf("index.html", "x", "src/App.tsx", "y")))
	require.NoError(t, p.Emit(service.EventDeployment, map[string]any{"url": "http://localhost:6000", "expiresIn": "30 minutes"}))
	require.NoError(t, p.Emit(service.EventDone, map[string]string{"message": "Built it"}))

	assert.Equal(t, "Model: Claude Sonnet 4.5\n"+
		"designing...\n"+
		"Files (2): index.html, src/App.tsx\n"+
		"Preview: http://localhost:6000 (expires in 30 minutes)\n"+
		"\nBuilt it\n", buf.String())
}
