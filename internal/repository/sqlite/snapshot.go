package sqlite

import (
	"github.com/awsl-project/appforge/internal/domain"
)

type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Create(s *domain.Snapshot) error {
	return r.db.gorm.Create(&Snapshot{
		SnapshotID:     s.ID,
		ConversationID: s.ConversationID,
		GenerationID:   s.GenerationID,
		FileCount:      s.FileCount,
		CreatedAt:      toTimestamp(s.CreatedAt),
	}).Error
}

// ListByConversationID returns snapshots newest first
func (r *SnapshotRepository) ListByConversationID(conversationID string) ([]*domain.Snapshot, error) {
	var models []Snapshot
	if err := r.db.gorm.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	list := make([]*domain.Snapshot, len(models))
	for i, m := range models {
		list[i] = &domain.Snapshot{
			ID:             m.SnapshotID,
			ConversationID: m.ConversationID,
			GenerationID:   m.GenerationID,
			FileCount:      m.FileCount,
			CreatedAt:      fromTimestamp(m.CreatedAt),
		}
	}
	return list, nil
}
