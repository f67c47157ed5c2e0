package handler

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

const uiNotBuilt = "Web UI not built. POST /api/generate to use the API directly."

// NewStaticHandler serves the built web UI from dir. Unknown paths fall back
// to index.html so client-side routes survive a reload.
func NewStaticHandler(dir string) http.Handler {
	return &staticHandler{fsys: os.DirFS(dir)}
}

type staticHandler struct {
	fsys fs.FS
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}

	f, stat, err := h.open(name)
	if err != nil {
		name = "index.html"
		f, stat, err = h.open(name)
	}
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(uiNotBuilt))
		return
	}
	defer f.Close()

	// vite 产物带 hash，可长期缓存；index.html 每次校验
	if strings.HasPrefix(name, "assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		rs = bytes.NewReader(data)
	}
	http.ServeContent(w, r, path.Base(name), stat.ModTime(), rs)
}

// open returns a regular file; directories count as missing
func (h *staticHandler) open(name string) (fs.File, fs.FileInfo, error) {
	f, err := h.fsys.Open(name)
	if err != nil {
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err == nil && stat.IsDir() {
		err = errors.New("is a directory")
	}
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, stat, nil
}
