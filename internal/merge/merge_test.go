package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/domain"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		prior     *domain.FileMap
		generated *domain.FileMap
		want      []string // path, content pairs in expected order
	}{
		{
			name:      "unchanged keeps prior and new file is added",
			prior:     domain.FileMapOf("a.js", "old"),
			generated: domain.FileMapOf("a.js", domain.MarkerUnchanged, "b.js", "new"),
			want:      []string{"a.js", "old", "b.js", "new"},
		},
		{
			name:      "delete removes key",
			prior:     domain.FileMapOf("a.js", "1", "b.js", "2"),
			generated: domain.FileMapOf("b.js", domain.MarkerDelete),
			want:      []string{"a.js", "1"},
		},
		{
			name:      "delete of absent key is a no-op",
			prior:     domain.FileMapOf("a.js", "1"),
			generated: domain.FileMapOf("ghost.js", domain.MarkerDelete),
			want:      []string{"a.js", "1"},
		},
		{
			name:      "unchanged for absent key stays absent",
			prior:     domain.FileMapOf("a.js", "1"),
			generated: domain.FileMapOf("ghost.js", domain.MarkerUnchanged),
			want:      []string{"a.js", "1"},
		},
		{
			name:      "overwrite keeps position",
			prior:     domain.FileMapOf("a.js", "1", "b.js", "2"),
			generated: domain.FileMapOf("c.js", "3", "a.js", "one"),
			want:      []string{"a.js", "one", "b.js", "2", "c.js", "3"},
		},
		{
			name:      "fresh project",
			prior:     domain.NewFileMap(),
			generated: domain.FileMapOf("index.html", "<html/>"),
			want:      []string{"index.html", "<html/>"},
		},
		{
			name:      "nil prior",
			prior:     nil,
			generated: domain.FileMapOf("a.js", "1"),
			want:      []string{"a.js", "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := Apply(tt.prior, tt.generated)

			var got []string
			merged.Range(func(path, content string) bool {
				got = append(got, path, content)
				return true
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	prior := domain.FileMapOf("a.js", "1")
	generated := domain.FileMapOf("a.js", domain.MarkerDelete, "b.js", "2")

	Apply(prior, generated)

	assert.Equal(t, map[string]string{"a.js": "1"}, prior.ToMap())
	assert.Equal(t, 2, generated.Len())
}

func TestApplyUnchangedIsIdempotent(t *testing.T) {
	prior := domain.FileMapOf("x.js", "value", "y.js", "other")
	generated := domain.FileMapOf("x.js", domain.MarkerUnchanged)

	once := Apply(prior, generated)
	twice := Apply(once, generated)

	assert.Equal(t, prior.ToMap(), once.ToMap())
	assert.Equal(t, once.ToMap(), twice.ToMap())
}

func TestSummarize(t *testing.T) {
	prior := domain.FileMapOf(
		"keep.js", "same\n",
		"edit.js", "line1\nline2\nline3\n",
		"gone.js", "a\nb\n",
	)
	merged := domain.FileMapOf(
		"keep.js", "same\n",
		"edit.js", "line1\nchanged\nline3\nline4\n",
		"new.js", "x\ny\nz",
	)

	changes := Summarize(prior, merged)
	require.Len(t, changes, 3)

	assert.Equal(t, FileChange{Path: "edit.js", Kind: ChangeModified, Additions: 2, Deletions: 1}, changes[0])
	assert.Equal(t, FileChange{Path: "new.js", Kind: ChangeAdded, Additions: 3}, changes[1])
	assert.Equal(t, FileChange{Path: "gone.js", Kind: ChangeDeleted, Deletions: 2}, changes[2])
}

func TestSummarizeNoChanges(t *testing.T) {
	files := domain.FileMapOf("a.js", "1")
	assert.Empty(t, Summarize(files, files.Clone()))
}
