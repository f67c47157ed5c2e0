package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/merge"
)

// 读取项目目录时跳过的目录
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
}

// 单个文件上限，避免把构建产物或二进制发给模型
const maxProjectFileSize = 512 << 10

func loadProjectDir(dir string) (*domain.FileMap, error) {
	files := domain.NewFileMap()
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Size() > maxProjectFileSize {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files.Set(filepath.ToSlash(rel), string(content))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", dir, err)
	}
	return files, nil
}

// writeProjectDir writes files under dir and removes deleted paths
func writeProjectDir(dir string, files *domain.FileMap, changes []merge.FileChange) error {
	var writeErr error
	files.Range(func(p, content string) bool {
		target, err := projectFilePath(dir, p)
		if err != nil {
			writeErr = err
			return false
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			writeErr = err
			return false
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}

	for _, c := range changes {
		if c.Kind != merge.ChangeDeleted {
			continue
		}
		target, err := projectFilePath(dir, c.Path)
		if err != nil {
			return err
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func projectFilePath(dir, p string) (string, error) {
	rel := filepath.FromSlash(domain.NormalizePath(p))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("refusing to write outside project: %s", p)
	}
	return filepath.Join(dir, rel), nil
}
