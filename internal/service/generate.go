package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/event"
	"github.com/awsl-project/appforge/internal/executor"
	"github.com/awsl-project/appforge/internal/merge"
	"github.com/awsl-project/appforge/internal/repository"
	"github.com/awsl-project/appforge/internal/sandbox"
	"github.com/awsl-project/appforge/internal/snapshot"
)

// SSE event names
const (
	EventModel      = "model"
	EventStage      = "stage"
	EventCodeStream = "code_stream"
	EventModelUsed  = "model_used"
	EventFiles      = "files"
	EventDeployment = "deployment"
	EventDone       = "done"
	EventError      = "error"
)

const (
	msgUserMessageRequired = "User message is required"
	msgPreviewUnavailable  = "Preview not available. Set SANDBOX_RUNTIME=local to enable sandbox deployments."
)

// Emitter receives pipeline events in order
type Emitter interface {
	Emit(event string, data any) error
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(event string, data any) error

func (f EmitterFunc) Emit(event string, data any) error {
	return f(event, data)
}

type modelPayload struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Provider domain.ProviderType `json:"provider,omitempty"`
	Message  string              `json:"message,omitempty"`
}

type stagePayload struct {
	Stage    string              `json:"stage"`
	Provider domain.ProviderType `json:"provider,omitempty"`
	Message  string              `json:"message,omitempty"`
	File     string              `json:"file,omitempty"`
	Attempt  int                 `json:"attempt,omitempty"`
	Total    int                 `json:"total,omitempty"`
}

type chunkPayload struct {
	Chunk string `json:"chunk"`
}

type deploymentPayload struct {
	URL       *string `json:"url"`
	SandboxID *string `json:"sandboxId"`
	ExpiresIn string  `json:"expiresIn,omitempty"`
	LocalMode bool    `json:"localMode,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// GenerateOutcome is what a finished pipeline run produced
type GenerateOutcome struct {
	Result     *domain.GenerationResult
	Files      *domain.FileMap
	Changes    []merge.FileChange
	Deployment *domain.Deployment

	// 部署失败不影响生成结果
	DeployError error
}

// GenerateService runs the whole request pipeline: prompt enhancement,
// generation with fallback, merge, persistence and deployment
type GenerateService struct {
	executor    *executor.Executor
	projects    repository.ProjectRepository
	generations repository.GenerationRepository
	archiver    *snapshot.Archiver
	sandboxes   *sandbox.Manager
	broadcaster event.Broadcaster

	enhancePrompts bool
}

// NewGenerateService creates the pipeline. Everything except the executor
// may be nil.
func NewGenerateService(
	exec *executor.Executor,
	projects repository.ProjectRepository,
	generations repository.GenerationRepository,
	archiver *snapshot.Archiver,
	sandboxes *sandbox.Manager,
	bc event.Broadcaster,
	enhancePrompts bool,
) *GenerateService {
	if bc == nil {
		bc = &event.NopBroadcaster{}
	}
	return &GenerateService{
		executor:       exec,
		projects:       projects,
		generations:    generations,
		archiver:       archiver,
		sandboxes:      sandboxes,
		broadcaster:    bc,
		enhancePrompts: enhancePrompts,
	}
}

// Generate runs req and reports progress through out. A terminal error
// event is emitted for every failure except cancellation of ctx.
func (s *GenerateService) Generate(ctx context.Context, req *domain.GenerationRequest, out Emitter) (*GenerateOutcome, error) {
	emit := func(ev string, data any) {
		if err := out.Emit(ev, data); err != nil {
			log.Printf("[Generate] Failed to emit %s: %v", ev, err)
		}
	}
	fail := func(err error) (*GenerateOutcome, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		emit(EventError, messagePayload{Message: err.Error()})
		return nil, err
	}

	if strings.TrimSpace(req.UserMessage) == "" {
		emit(EventError, messagePayload{Message: msgUserMessageRequired})
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, msgUserMessageRequired)
	}
	if req.ModelID == "" {
		req.ModelID = domain.DefaultModelID
	}
	requested, ok := domain.LookupModel(req.ModelID)
	if !ok {
		return fail(fmt.Errorf("%w: %s", domain.ErrUnknownModel, req.ModelID))
	}
	prior := req.ExistingFiles
	if prior == nil {
		prior = domain.NewFileMap()
	}

	emit(EventModel, modelPayload{ID: requested.ID, Name: requested.DisplayName, Provider: requested.Provider})
	emit(EventStage, stagePayload{Stage: "analyzing"})

	genReq := *req
	if req.IsNewProject() && s.enhancePrompts {
		genReq.UserMessage = s.executor.EnhancePrompt(ctx, req.UserMessage, req.ModelID)
	}

	emit(EventStage, stagePayload{Stage: "designing"})

	result, err := s.executor.Execute(ctx, &genReq, executor.SinkFuncs{
		OnProgress: func(ev domain.ProgressEvent) { emit(EventStage, progressPayload(ev)) },
		OnChunk:    func(text string) { emit(EventCodeStream, chunkPayload{Chunk: text}) },
	})
	if err != nil {
		return fail(err)
	}

	if result.UsedModel.ID != requested.ID {
		emit(EventModelUsed, modelPayload{
			ID:      result.UsedModel.ID,
			Name:    result.UsedModel.DisplayName,
			Message: fmt.Sprintf("Generated with %s (fallback)", result.UsedModel.DisplayName),
		})
	}

	if result.Files == nil || result.Files.Len() == 0 {
		return fail(domain.ErrNoFiles)
	}

	// 客户端已断开：不再合并、保存或部署
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	merged := merge.Apply(prior, result.Files)
	changes := merge.Summarize(prior, merged)
	logChanges(result.GenerationID, changes)
	emit(EventFiles, merged)

	outcome := &GenerateOutcome{Result: result, Files: merged, Changes: changes}
	project := s.saveProject(ctx, req.ConversationID, result.GenerationID, merged)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	emit(EventStage, stagePayload{Stage: "deploying"})
	dep, err := s.deploy(ctx, req.ConversationID, merged)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, domain.ErrSandboxDisabled):
		emit(EventDeployment, deploymentPayload{LocalMode: true, Message: msgPreviewUnavailable})
	case err != nil:
		outcome.DeployError = err
		emit(EventDeployment, deploymentPayload{LocalMode: true, Message: err.Error()})
	default:
		outcome.Deployment = dep
		emit(EventDeployment, deploymentPayload{
			URL:       &dep.URL,
			SandboxID: &dep.SandboxID,
			ExpiresIn: expiresIn(time.Until(dep.ExpiresAt)),
		})
		if project != nil {
			project.PreviewURL = dep.URL
			project.SandboxID = dep.SandboxID
			if err := s.projects.Save(project); err != nil {
				log.Printf("[Generate] Failed to update project %s: %v", project.ConversationID, err)
			}
		}
	}

	s.annotateGeneration(result.GenerationID, len(changes), outcome.Deployment)

	emit(EventDone, messagePayload{Message: result.Message})
	return outcome, nil
}

func (s *GenerateService) deploy(ctx context.Context, conversationID string, files *domain.FileMap) (*domain.Deployment, error) {
	if !s.sandboxes.Enabled() {
		return nil, domain.ErrSandboxDisabled
	}
	key := conversationID
	if key == "" {
		key = sandbox.DefaultKey
	}
	return s.sandboxes.Deploy(ctx, key, files)
}

// saveProject stores the merged state and archives a snapshot. Failures are
// logged only.
func (s *GenerateService) saveProject(ctx context.Context, conversationID string, generationID uint64, files *domain.FileMap) *domain.Project {
	if conversationID == "" {
		return nil
	}

	if s.archiver.Enabled() {
		if _, err := s.archiver.Save(ctx, conversationID, generationID, files); err != nil {
			log.Printf("[Generate] Failed to archive snapshot for %s: %v", conversationID, err)
		}
	}

	if s.projects == nil {
		return nil
	}
	project := &domain.Project{
		ConversationID:   conversationID,
		Files:            files,
		LastGenerationID: generationID,
	}
	if err := s.projects.Save(project); err != nil {
		log.Printf("[Generate] Failed to save project %s: %v", conversationID, err)
		return nil
	}
	return project
}

func (s *GenerateService) annotateGeneration(id uint64, changed int, dep *domain.Deployment) {
	if s.generations == nil || id == 0 {
		return
	}
	g, err := s.generations.GetByID(id)
	if err != nil {
		log.Printf("[Generate] Failed to load generation %d: %v", id, err)
		return
	}
	g.ChangedFiles = changed
	if dep != nil {
		g.PreviewURL = dep.URL
	}
	if err := s.generations.Update(g); err != nil {
		log.Printf("[Generate] Failed to update generation %d: %v", id, err)
		return
	}
	s.broadcaster.BroadcastGeneration(g)
}

func progressPayload(ev domain.ProgressEvent) stagePayload {
	name := ev.ModelName
	if name == "" {
		name = string(ev.Provider)
	}
	switch ev.Stage {
	case domain.StageProviderSwitch:
		return stagePayload{Stage: "designing", Provider: ev.Provider, Message: fmt.Sprintf("Using %s...", name)}
	case domain.StageFallback:
		return stagePayload{Stage: "fallback", Provider: ev.Provider, Message: fmt.Sprintf("Falling back to %s...", name)}
	case domain.StageRecoveringFile:
		return stagePayload{
			Stage:   "recovering",
			File:    ev.File,
			Attempt: ev.Attempt,
			Total:   ev.Total,
			Message: fmt.Sprintf("Regenerating %s (%d/%d)", ev.File, ev.Attempt, ev.Total),
		}
	default:
		file := ev.File
		if file == "" {
			file = "unknown"
		}
		return stagePayload{Stage: "recovering", File: ev.File, Message: "Recovering truncated file: " + file}
	}
}

func expiresIn(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func logChanges(generationID uint64, changes []merge.FileChange) {
	var added, modified, deleted int
	for _, c := range changes {
		switch c.Kind {
		case merge.ChangeAdded:
			added++
		case merge.ChangeModified:
			modified++
		case merge.ChangeDeleted:
			deleted++
		}
	}
	log.Printf("[Generate] Generation %d merged: %d added, %d modified, %d deleted", generationID, added, modified, deleted)
}
