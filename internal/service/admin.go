package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/awsl-project/appforge/internal/cooldown"
	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/repository"
	"github.com/awsl-project/appforge/internal/sandbox"
	"github.com/awsl-project/appforge/internal/snapshot"
)

// ProviderStatusSource reports which providers have an adapter
// Implemented by Router
type ProviderStatusSource interface {
	Configured(pt domain.ProviderType) bool
}

// AdminService provides the read side of the admin API
// Both the HTTP handlers and the CLI call this service
type AdminService struct {
	providers   ProviderStatusSource
	cooldowns   *cooldown.Manager
	generations repository.GenerationRepository
	attempts    repository.GenerationAttemptRepository
	projects    repository.ProjectRepository
	archiver    *snapshot.Archiver
	sandboxes   *sandbox.Manager
}

// NewAdminService creates a new admin service
func NewAdminService(
	providers ProviderStatusSource,
	cooldowns *cooldown.Manager,
	generations repository.GenerationRepository,
	attempts repository.GenerationAttemptRepository,
	projects repository.ProjectRepository,
	archiver *snapshot.Archiver,
	sandboxes *sandbox.Manager,
) *AdminService {
	return &AdminService{
		providers:   providers,
		cooldowns:   cooldowns,
		generations: generations,
		attempts:    attempts,
		projects:    projects,
		archiver:    archiver,
		sandboxes:   sandboxes,
	}
}

// ===== Model API =====

// ModelStatus is a model with its provider's availability
type ModelStatus struct {
	domain.ModelDescriptor
	Configured bool                   `json:"configured"`
	IsDefault  bool                   `json:"isDefault"`
	Cooldown   *cooldown.CooldownInfo `json:"cooldown,omitempty"`
}

func (s *AdminService) GetModels() []ModelStatus {
	out := make([]ModelStatus, 0, len(domain.AvailableModels))
	for _, m := range domain.AvailableModels {
		st := ModelStatus{
			ModelDescriptor: m,
			Configured:      s.providers != nil && s.providers.Configured(m.Provider),
			IsDefault:       m.ID == domain.DefaultModelID,
		}
		if s.cooldowns != nil {
			st.Cooldown = s.cooldowns.GetCooldownInfo(m.Provider)
		}
		out = append(out, st)
	}
	return out
}

// ===== Cooldown API =====

func (s *AdminService) GetCooldowns() []*cooldown.CooldownInfo {
	if s.cooldowns == nil {
		return nil
	}
	var out []*cooldown.CooldownInfo
	for p := range s.cooldowns.GetAllCooldowns() {
		if info := s.cooldowns.GetCooldownInfo(p); info != nil {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (s *AdminService) ClearCooldown(p domain.ProviderType) {
	if s.cooldowns != nil {
		s.cooldowns.ClearCooldown(p)
	}
}

// ===== Generation API =====

// GenerationPage is one page of generation records
type GenerationPage struct {
	Items  []*domain.Generation `json:"items"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

func (s *AdminService) GetGenerations(limit, offset int) (*GenerationPage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.generations.List(limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.generations.Count()
	if err != nil {
		return nil, err
	}
	return &GenerationPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// GenerationDetail is a generation with all of its attempts
type GenerationDetail struct {
	*domain.Generation
	Attempts []*domain.GenerationAttempt `json:"attempts"`
}

func (s *AdminService) GetGeneration(id uint64) (*GenerationDetail, error) {
	g, err := s.generations.GetByID(id)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByGenerationID(id)
	if err != nil {
		return nil, err
	}
	return &GenerationDetail{Generation: g, Attempts: attempts}, nil
}

func (s *AdminService) GetConversationGenerations(conversationID string, limit int) ([]*domain.Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.generations.ListByConversationID(conversationID, limit)
}

// ===== Project API =====

func (s *AdminService) GetProjects() ([]*domain.Project, error) {
	return s.projects.List()
}

func (s *AdminService) GetProject(conversationID string) (*domain.Project, error) {
	return s.projects.GetByConversationID(conversationID)
}

// DeleteProject drops the stored state of a conversation and its sandbox
func (s *AdminService) DeleteProject(ctx context.Context, conversationID string) error {
	if _, err := s.projects.GetByConversationID(conversationID); err != nil {
		return err
	}
	s.sandboxes.Teardown(ctx, conversationID)
	return s.projects.Delete(conversationID)
}

func (s *AdminService) GetSnapshots(conversationID string) ([]*domain.Snapshot, error) {
	snaps, err := s.archiver.List(conversationID)
	if err != nil {
		return nil, err
	}
	if snaps == nil {
		snaps = []*domain.Snapshot{}
	}
	return snaps, nil
}

func (s *AdminService) GetSnapshotFiles(ctx context.Context, conversationID, snapshotID string) (*domain.FileMap, error) {
	return s.archiver.Load(ctx, conversationID, snapshotID)
}

// ===== Sandbox API =====

func (s *AdminService) GetSandboxes() []*domain.SandboxSession {
	sessions := s.sandboxes.Sessions()
	if sessions == nil {
		return []*domain.SandboxSession{}
	}
	return sessions
}

func (s *AdminService) TeardownSandbox(ctx context.Context, key string) error {
	if !s.sandboxes.Enabled() {
		return domain.ErrSandboxDisabled
	}
	if !s.sandboxes.Teardown(ctx, key) {
		return fmt.Errorf("sandbox %s: %w", key, domain.ErrNotFound)
	}
	return nil
}
