package repository

import (
	"time"

	"github.com/awsl-project/appforge/internal/domain"
)

type GenerationRepository interface {
	Create(g *domain.Generation) error
	Update(g *domain.Generation) error
	GetByID(id uint64) (*domain.Generation, error)
	List(limit, offset int) ([]*domain.Generation, error)
	ListByConversationID(conversationID string, limit int) ([]*domain.Generation, error)
	Count() (int64, error)
	// MarkStaleAsFailed marks PENDING/IN_PROGRESS generations left by other
	// instances (or stuck for too long) as FAILED
	MarkStaleAsFailed(currentInstanceID string) (int64, error)
	// DeleteOlderThan 删除指定时间之前结束的记录
	DeleteOlderThan(before time.Time) (int64, error)
}

type GenerationAttemptRepository interface {
	Create(a *domain.GenerationAttempt) error
	Update(a *domain.GenerationAttempt) error
	ListByGenerationID(generationID uint64) ([]*domain.GenerationAttempt, error)
	DeleteOlderThan(before time.Time) (int64, error)
}

type ProjectRepository interface {
	// Save creates or updates the project of a conversation
	Save(p *domain.Project) error
	GetByConversationID(conversationID string) (*domain.Project, error)
	List() ([]*domain.Project, error)
	Delete(conversationID string) error
}

type SnapshotRepository interface {
	Create(s *domain.Snapshot) error
	ListByConversationID(conversationID string) ([]*domain.Snapshot, error)
}

type CooldownRepository interface {
	// GetAll returns cooldowns that have not expired
	GetAll() ([]*domain.Cooldown, error)
	Upsert(c *domain.Cooldown) error
	Delete(p domain.ProviderType) error
	DeleteExpired() error
}
