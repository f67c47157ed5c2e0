package domain

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// File markers may appear as values in generated output when editing an
// existing project. They are never literal file content.
const (
	MarkerUnchanged = "@@UNCHANGED@@"
	MarkerDelete    = "@@DELETE@@"
)

func IsMarker(v string) bool {
	return v == MarkerUnchanged || v == MarkerDelete
}

// NormalizePath converts a generated path to the project-relative form used as
// a FileMap key: forward slashes, no leading slash, no surrounding spaces.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimLeft(p, "/")
}

// FileMap is an insertion-ordered path -> content mapping describing the
// full file set of a generated project.
type FileMap struct {
	om *orderedmap.OrderedMap[string, string]
}

func NewFileMap() *FileMap {
	return &FileMap{om: orderedmap.New[string, string]()}
}

// FileMapOf builds a FileMap from alternating path/content pairs.
func FileMapOf(pairs ...string) *FileMap {
	fm := NewFileMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		fm.Set(pairs[i], pairs[i+1])
	}
	return fm
}

func (f *FileMap) lazy() *orderedmap.OrderedMap[string, string] {
	if f.om == nil {
		f.om = orderedmap.New[string, string]()
	}
	return f.om
}

// Set creates or overwrites an entry. Existing keys keep their position.
func (f *FileMap) Set(path, content string) {
	f.lazy().Set(path, content)
}

func (f *FileMap) Get(path string) (string, bool) {
	if f == nil || f.om == nil {
		return "", false
	}
	return f.om.Get(path)
}

func (f *FileMap) Has(path string) bool {
	_, ok := f.Get(path)
	return ok
}

func (f *FileMap) Delete(path string) {
	if f == nil || f.om == nil {
		return
	}
	f.om.Delete(path)
}

func (f *FileMap) Len() int {
	if f == nil || f.om == nil {
		return 0
	}
	return f.om.Len()
}

// Paths returns keys in insertion order.
func (f *FileMap) Paths() []string {
	paths := make([]string, 0, f.Len())
	f.Range(func(path, _ string) bool {
		paths = append(paths, path)
		return true
	})
	return paths
}

// Range iterates entries in insertion order until fn returns false.
func (f *FileMap) Range(fn func(path, content string) bool) {
	if f == nil || f.om == nil {
		return
	}
	for pair := f.om.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

func (f *FileMap) Clone() *FileMap {
	out := NewFileMap()
	f.Range(func(path, content string) bool {
		out.Set(path, content)
		return true
	})
	return out
}

// ToMap returns an unordered copy, mostly useful for assertions.
func (f *FileMap) ToMap() map[string]string {
	m := make(map[string]string, f.Len())
	f.Range(func(path, content string) bool {
		m[path] = content
		return true
	})
	return m
}

func (f *FileMap) MarshalJSON() ([]byte, error) {
	if f == nil || f.om == nil {
		return []byte("{}"), nil
	}
	return f.om.MarshalJSON()
}

func (f *FileMap) UnmarshalJSON(data []byte) error {
	om := orderedmap.New[string, string]()
	if err := om.UnmarshalJSON(data); err != nil {
		return err
	}
	f.om = om
	return nil
}
