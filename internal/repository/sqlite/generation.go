package sqlite

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/awsl-project/appforge/internal/domain"
)

type GenerationRepository struct {
	db *DB
}

func NewGenerationRepository(db *DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(g *domain.Generation) error {
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	model := r.toModel(g)
	if err := r.db.gorm.Create(model).Error; err != nil {
		return err
	}
	g.ID = model.ID
	return nil
}

func (r *GenerationRepository) Update(g *domain.Generation) error {
	g.UpdatedAt = time.Now()
	return r.db.gorm.Save(r.toModel(g)).Error
}

func (r *GenerationRepository) GetByID(id uint64) (*domain.Generation, error) {
	var model Generation
	if err := r.db.gorm.First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return r.toDomain(&model), nil
}

func (r *GenerationRepository) List(limit, offset int) ([]*domain.Generation, error) {
	var models []Generation
	if err := r.db.gorm.Order("id DESC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.toDomainList(models), nil
}

func (r *GenerationRepository) ListByConversationID(conversationID string, limit int) ([]*domain.Generation, error) {
	var models []Generation
	if err := r.db.gorm.Where("conversation_id = ?", conversationID).
		Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.toDomainList(models), nil
}

// Count 直接查表，多个仓库实例和保留清理都不会让总数失真
func (r *GenerationRepository) Count() (int64, error) {
	var count int64
	err := r.db.gorm.Model(&Generation{}).Count(&count).Error
	return count, err
}

// MarkStaleAsFailed marks PENDING/IN_PROGRESS rows from other instances as
// FAILED, plus rows of this instance that have been running for over 30 minutes
func (r *GenerationRepository) MarkStaleAsFailed(currentInstanceID string) (int64, error) {
	now := time.Now()
	threshold := toTimestamp(now.Add(-30 * time.Minute))

	result := r.db.gorm.Model(&Generation{}).
		Where("status IN ?", []string{domain.GenerationStatusPending, domain.GenerationStatusInProgress}).
		Where("(instance_id <> ? OR instance_id IS NULL) OR (start_time > 0 AND start_time < ?)", currentInstanceID, threshold).
		Updates(map[string]any{
			"status":     domain.GenerationStatusFailed,
			"error":      "Server restarted or generation stuck in progress",
			"updated_at": toTimestamp(now),
		})
	return result.RowsAffected, result.Error
}

func (r *GenerationRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.gorm.
		Where("end_time > 0 AND end_time < ?", toTimestamp(before)).
		Delete(&Generation{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GenerationRepository) toModel(g *domain.Generation) *Generation {
	return &Generation{
		BaseModel: BaseModel{
			ID:        g.ID,
			CreatedAt: toTimestamp(g.CreatedAt),
			UpdatedAt: toTimestamp(g.UpdatedAt),
		},
		InstanceID:     g.InstanceID,
		RequestID:      g.RequestID,
		ConversationID: g.ConversationID,
		RequestModel:   g.RequestModel,
		UsedModel:      g.UsedModel,
		Status:         g.Status,
		StartTime:      toTimestamp(g.StartTime),
		EndTime:        toTimestamp(g.EndTime),
		DurationMs:     g.Duration.Milliseconds(),
		AttemptCount:   g.AttemptCount,
		RecoveredFiles: LongText(toJSON(g.RecoveredFiles)),
		FileCount:      g.FileCount,
		ChangedFiles:   g.ChangedFiles,
		PromptTokens:   g.PromptTokens,
		OutputTokens:   g.OutputTokens,
		Cost:           g.Cost,
		PreviewURL:     g.PreviewURL,
		Error:          LongText(g.Error),
	}
}

func (r *GenerationRepository) toDomain(m *Generation) *domain.Generation {
	return &domain.Generation{
		ID:             m.ID,
		CreatedAt:      fromTimestamp(m.CreatedAt),
		UpdatedAt:      fromTimestamp(m.UpdatedAt),
		InstanceID:     m.InstanceID,
		RequestID:      m.RequestID,
		ConversationID: m.ConversationID,
		RequestModel:   m.RequestModel,
		UsedModel:      m.UsedModel,
		Status:         m.Status,
		StartTime:      fromTimestamp(m.StartTime),
		EndTime:        fromTimestamp(m.EndTime),
		Duration:       time.Duration(m.DurationMs) * time.Millisecond,
		AttemptCount:   m.AttemptCount,
		RecoveredFiles: fromJSON[[]string](string(m.RecoveredFiles)),
		FileCount:      m.FileCount,
		ChangedFiles:   m.ChangedFiles,
		PromptTokens:   m.PromptTokens,
		OutputTokens:   m.OutputTokens,
		Cost:           m.Cost,
		PreviewURL:     m.PreviewURL,
		Error:          string(m.Error),
	}
}

func (r *GenerationRepository) toDomainList(models []Generation) []*domain.Generation {
	list := make([]*domain.Generation, len(models))
	for i := range models {
		list[i] = r.toDomain(&models[i])
	}
	return list
}
