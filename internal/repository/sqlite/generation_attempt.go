package sqlite

import (
	"time"

	"github.com/awsl-project/appforge/internal/domain"
)

type GenerationAttemptRepository struct {
	db *DB
}

func NewGenerationAttemptRepository(db *DB) *GenerationAttemptRepository {
	return &GenerationAttemptRepository{db: db}
}

func (r *GenerationAttemptRepository) Create(a *domain.GenerationAttempt) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	model := r.toModel(a)
	if err := r.db.gorm.Create(model).Error; err != nil {
		return err
	}
	a.ID = model.ID
	return nil
}

func (r *GenerationAttemptRepository) Update(a *domain.GenerationAttempt) error {
	a.UpdatedAt = time.Now()
	return r.db.gorm.Save(r.toModel(a)).Error
}

func (r *GenerationAttemptRepository) ListByGenerationID(generationID uint64) ([]*domain.GenerationAttempt, error) {
	var models []GenerationAttempt
	if err := r.db.gorm.Where("generation_id = ?", generationID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	attempts := make([]*domain.GenerationAttempt, len(models))
	for i := range models {
		attempts[i] = r.toDomain(&models[i])
	}
	return attempts, nil
}

func (r *GenerationAttemptRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.gorm.
		Where("end_time > 0 AND end_time < ?", toTimestamp(before)).
		Delete(&GenerationAttempt{})
	return result.RowsAffected, result.Error
}

func (r *GenerationAttemptRepository) toModel(a *domain.GenerationAttempt) *GenerationAttempt {
	return &GenerationAttempt{
		BaseModel: BaseModel{
			ID:        a.ID,
			CreatedAt: toTimestamp(a.CreatedAt),
			UpdatedAt: toTimestamp(a.UpdatedAt),
		},
		GenerationID: a.GenerationID,
		ModelID:      a.ModelID,
		Provider:     string(a.Provider),
		Status:       a.Status,
		StartTime:    toTimestamp(a.StartTime),
		EndTime:      toTimestamp(a.EndTime),
		DurationMs:   a.Duration.Milliseconds(),
		OutputChars:  a.OutputChars,
		ParseStatus:  a.ParseStatus,
		ErrorKind:    a.ErrorKind,
		Error:        LongText(a.Error),
	}
}

func (r *GenerationAttemptRepository) toDomain(m *GenerationAttempt) *domain.GenerationAttempt {
	return &domain.GenerationAttempt{
		ID:           m.ID,
		CreatedAt:    fromTimestamp(m.CreatedAt),
		UpdatedAt:    fromTimestamp(m.UpdatedAt),
		GenerationID: m.GenerationID,
		ModelID:      m.ModelID,
		Provider:     domain.ProviderType(m.Provider),
		Status:       m.Status,
		StartTime:    fromTimestamp(m.StartTime),
		EndTime:      fromTimestamp(m.EndTime),
		Duration:     time.Duration(m.DurationMs) * time.Millisecond,
		OutputChars:  m.OutputChars,
		ParseStatus:  m.ParseStatus,
		ErrorKind:    m.ErrorKind,
		Error:        string(m.Error),
	}
}
