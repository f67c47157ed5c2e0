// Package snapshot archives the merged file set of every generation.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/repository"
)

var ErrInvalidKey = errors.New("snapshot: invalid key")

// Store keeps snapshot payloads, one object per snapshot
type Store interface {
	Name() string
	Put(ctx context.Context, conversationID, snapshotID string, data []byte) error
	Get(ctx context.Context, conversationID, snapshotID string) ([]byte, error)
}

// Archiver writes snapshot payloads to a Store and their metadata to the
// snapshot repository
type Archiver struct {
	store Store
	repo  repository.SnapshotRepository
}

func NewArchiver(store Store, repo repository.SnapshotRepository) *Archiver {
	return &Archiver{store: store, repo: repo}
}

func (a *Archiver) Enabled() bool {
	return a != nil && a.store != nil
}

// Save archives files for a conversation
func (a *Archiver) Save(ctx context.Context, conversationID string, generationID uint64, files *domain.FileMap) (*domain.Snapshot, error) {
	if !a.Enabled() {
		return nil, nil
	}
	if err := checkSegment(conversationID); err != nil {
		return nil, err
	}
	data, err := files.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	snap := &domain.Snapshot{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		GenerationID:   generationID,
		FileCount:      files.Len(),
		CreatedAt:      time.Now(),
	}
	if err := a.store.Put(ctx, conversationID, snap.ID, data); err != nil {
		return nil, fmt.Errorf("put snapshot to %s: %w", a.store.Name(), err)
	}
	if a.repo != nil {
		if err := a.repo.Create(snap); err != nil {
			return nil, fmt.Errorf("record snapshot: %w", err)
		}
	}
	log.Printf("[Snapshot] Saved %s for %s (%d files, %d bytes)", snap.ID, conversationID, snap.FileCount, len(data))
	return snap, nil
}

// Load reads back the files of a snapshot
func (a *Archiver) Load(ctx context.Context, conversationID, snapshotID string) (*domain.FileMap, error) {
	if !a.Enabled() {
		return nil, domain.ErrNotFound
	}
	if err := checkSegment(conversationID); err != nil {
		return nil, err
	}
	if err := checkSegment(snapshotID); err != nil {
		return nil, err
	}
	data, err := a.store.Get(ctx, conversationID, snapshotID)
	if err != nil {
		return nil, err
	}
	files := domain.NewFileMap()
	if err := files.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snapshotID, err)
	}
	return files, nil
}

func (a *Archiver) List(conversationID string) ([]*domain.Snapshot, error) {
	if a == nil || a.repo == nil {
		return nil, nil
	}
	return a.repo.ListByConversationID(conversationID)
}

// checkSegment rejects IDs that cannot be used as one path segment
func checkSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return nil
}

func objectKey(conversationID, snapshotID string) string {
	return conversationID + "/" + snapshotID + ".json"
}
