package cached

import (
	"slices"
	"strings"
	"sync"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/repository"
)

// ProjectRepository keeps the latest file state of every conversation in
// memory. Writes go through to the underlying repository first.
type ProjectRepository struct {
	repo  repository.ProjectRepository
	cache map[string]*domain.Project
	mu    sync.RWMutex
}

func NewProjectRepository(repo repository.ProjectRepository) *ProjectRepository {
	return &ProjectRepository{
		repo:  repo,
		cache: make(map[string]*domain.Project),
	}
}

func (r *ProjectRepository) Load() error {
	list, err := r.repo.List()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range list {
		r.cache[p.ConversationID] = p
	}
	return nil
}

func (r *ProjectRepository) Save(p *domain.Project) error {
	if err := r.repo.Save(p); err != nil {
		return err
	}
	r.mu.Lock()
	r.cache[p.ConversationID] = p
	r.mu.Unlock()
	return nil
}

func (r *ProjectRepository) GetByConversationID(conversationID string) (*domain.Project, error) {
	r.mu.RLock()
	if p, ok := r.cache[conversationID]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	p, err := r.repo.GetByConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[conversationID] = p
	r.mu.Unlock()
	return p, nil
}

// List returns cached projects, most recently updated first
func (r *ProjectRepository) List() ([]*domain.Project, error) {
	r.mu.RLock()
	list := make([]*domain.Project, 0, len(r.cache))
	for _, p := range r.cache {
		list = append(list, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b *domain.Project) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ConversationID, b.ConversationID)
	})
	return list, nil
}

func (r *ProjectRepository) Delete(conversationID string) error {
	if err := r.repo.Delete(conversationID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, conversationID)
	r.mu.Unlock()
	return nil
}
