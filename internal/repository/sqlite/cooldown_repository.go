package sqlite

import (
	"time"

	"gorm.io/gorm/clause"

	"github.com/awsl-project/appforge/internal/domain"
)

type CooldownRepository struct {
	db *DB
}

func NewCooldownRepository(db *DB) *CooldownRepository {
	return &CooldownRepository{db: db}
}

func (r *CooldownRepository) GetAll() ([]*domain.Cooldown, error) {
	var models []Cooldown
	if err := r.db.gorm.Where("until_time > ?", time.Now().UnixMilli()).Find(&models).Error; err != nil {
		return nil, err
	}
	cooldowns := make([]*domain.Cooldown, len(models))
	for i, m := range models {
		cooldowns[i] = &domain.Cooldown{
			ID:           m.ID,
			CreatedAt:    fromTimestamp(m.CreatedAt),
			UpdatedAt:    fromTimestamp(m.UpdatedAt),
			Provider:     domain.ProviderType(m.Provider),
			UntilTime:    fromTimestamp(m.UntilTime),
			Reason:       m.Reason,
			FailureCount: m.FailureCount,
		}
	}
	return cooldowns, nil
}

func (r *CooldownRepository) Upsert(c *domain.Cooldown) error {
	now := time.Now()
	model := &Cooldown{
		BaseModel: BaseModel{
			CreatedAt: toTimestamp(now),
			UpdatedAt: toTimestamp(now),
		},
		Provider:     string(c.Provider),
		UntilTime:    toTimestamp(c.UntilTime),
		Reason:       c.Reason,
		FailureCount: c.FailureCount,
	}

	err := r.db.gorm.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}},
		DoUpdates: clause.Assignments(map[string]any{
			"until_time":    model.UntilTime,
			"reason":        model.Reason,
			"failure_count": model.FailureCount,
			"updated_at":    model.UpdatedAt,
		}),
	}).Create(model).Error
	if err != nil {
		return err
	}

	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (r *CooldownRepository) Delete(p domain.ProviderType) error {
	return r.db.gorm.Where("provider = ?", string(p)).Delete(&Cooldown{}).Error
}

func (r *CooldownRepository) DeleteExpired() error {
	return r.db.gorm.Where("until_time <= ?", time.Now().UnixMilli()).Delete(&Cooldown{}).Error
}
