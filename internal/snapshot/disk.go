package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/awsl-project/appforge/internal/domain"
)

// DiskStore keeps snapshots as files under Dir
type DiskStore struct {
	Dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{Dir: dir}, nil
}

func (s *DiskStore) Name() string {
	return "disk"
}

func (s *DiskStore) Put(ctx context.Context, conversationID, snapshotID string, data []byte) error {
	p := filepath.Join(s.Dir, filepath.FromSlash(objectKey(conversationID, snapshotID)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *DiskStore) Get(ctx context.Context, conversationID, snapshotID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, filepath.FromSlash(objectKey(conversationID, snapshotID))))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	return data, err
}
