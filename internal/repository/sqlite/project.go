package sqlite

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/awsl-project/appforge/internal/domain"
)

type ProjectRepository struct {
	db *DB
}

func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Save inserts the project of a conversation or updates the existing row
func (r *ProjectRepository) Save(p *domain.Project) error {
	now := time.Now()
	p.UpdatedAt = now

	var existing Project
	err := r.db.gorm.Where("conversation_id = ?", p.ConversationID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p.CreatedAt = now
		model := r.toModel(p)
		if err := r.db.gorm.Create(model).Error; err != nil {
			return err
		}
		p.ID = model.ID
		return nil
	case err != nil:
		return err
	}

	p.ID = existing.ID
	p.CreatedAt = fromTimestamp(existing.CreatedAt)
	return r.db.gorm.Save(r.toModel(p)).Error
}

func (r *ProjectRepository) GetByConversationID(conversationID string) (*domain.Project, error) {
	var model Project
	if err := r.db.gorm.Where("conversation_id = ?", conversationID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return r.toDomain(&model), nil
}

func (r *ProjectRepository) List() ([]*domain.Project, error) {
	var models []Project
	if err := r.db.gorm.Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	projects := make([]*domain.Project, len(models))
	for i := range models {
		projects[i] = r.toDomain(&models[i])
	}
	return projects, nil
}

func (r *ProjectRepository) Delete(conversationID string) error {
	return r.db.gorm.Where("conversation_id = ?", conversationID).Delete(&Project{}).Error
}

func (r *ProjectRepository) toModel(p *domain.Project) *Project {
	return &Project{
		BaseModel: BaseModel{
			ID:        p.ID,
			CreatedAt: toTimestamp(p.CreatedAt),
			UpdatedAt: toTimestamp(p.UpdatedAt),
		},
		ConversationID:   p.ConversationID,
		Files:            LongText(fileMapJSON(p.Files)),
		LastGenerationID: p.LastGenerationID,
		PreviewURL:       p.PreviewURL,
		SandboxID:        p.SandboxID,
	}
}

func (r *ProjectRepository) toDomain(m *Project) *domain.Project {
	files := domain.NewFileMap()
	if m.Files != "" {
		_ = files.UnmarshalJSON([]byte(m.Files))
	}
	return &domain.Project{
		ID:               m.ID,
		CreatedAt:        fromTimestamp(m.CreatedAt),
		UpdatedAt:        fromTimestamp(m.UpdatedAt),
		ConversationID:   m.ConversationID,
		Files:            files,
		LastGenerationID: m.LastGenerationID,
		PreviewURL:       m.PreviewURL,
		SandboxID:        m.SandboxID,
	}
}

func fileMapJSON(f *domain.FileMap) string {
	b, err := f.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(b)
}
