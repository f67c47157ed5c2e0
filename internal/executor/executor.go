package executor

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	ctxutil "github.com/awsl-project/appforge/internal/context"
	"github.com/awsl-project/appforge/internal/cooldown"
	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/event"
	"github.com/awsl-project/appforge/internal/parser"
	"github.com/awsl-project/appforge/internal/pricing"
	"github.com/awsl-project/appforge/internal/prompt"
	"github.com/awsl-project/appforge/internal/regen"
	"github.com/awsl-project/appforge/internal/repository"
	"github.com/awsl-project/appforge/internal/router"
	"github.com/awsl-project/appforge/internal/tokens"
)

// MaxRegenerations bounds single-file regenerations per request
const MaxRegenerations = 5

// Sink receives progress and streamed text while a request runs
type Sink interface {
	Progress(ev domain.ProgressEvent)
	Chunk(text string)
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are ignored.
type SinkFuncs struct {
	OnProgress func(ev domain.ProgressEvent)
	OnChunk    func(text string)
}

func (s SinkFuncs) Progress(ev domain.ProgressEvent) {
	if s.OnProgress != nil {
		s.OnProgress(ev)
	}
}

func (s SinkFuncs) Chunk(text string) {
	if s.OnChunk != nil {
		s.OnChunk(text)
	}
}

// Executor runs one generation request across the model plan
type Executor struct {
	router         *router.Router
	regenerator    *regen.Regenerator
	generationRepo repository.GenerationRepository
	attemptRepo    repository.GenerationAttemptRepository
	cooldown       *cooldown.Manager
	broadcaster    event.Broadcaster
	instanceID     string
}

// NewExecutor creates a new executor. Repositories, cooldown manager and
// broadcaster may be nil.
func NewExecutor(
	r *router.Router,
	g *regen.Regenerator,
	gr repository.GenerationRepository,
	ar repository.GenerationAttemptRepository,
	cm *cooldown.Manager,
	bc event.Broadcaster,
	instanceID string,
) *Executor {
	if g == nil {
		g = regen.New()
	}
	return &Executor{
		router:         r,
		regenerator:    g,
		generationRepo: gr,
		attemptRepo:    ar,
		cooldown:       cm,
		broadcaster:    bc,
		instanceID:     instanceID,
	}
}

// Execute streams a generation from the first model of the plan that
// succeeds, falling back on provider errors, and heals a truncated response
// by regenerating the first incomplete file. Cancellation of ctx stops the
// request and returns ctx.Err().
func (e *Executor) Execute(ctx context.Context, req *domain.GenerationRequest, sink Sink) (*domain.GenerationResult, error) {
	if sink == nil {
		sink = SinkFuncs{}
	}

	requestID := ctxutil.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	userPrompt := prompt.BuildUserPrompt(req.UserMessage, req.ExistingFiles)

	gen := &domain.Generation{
		InstanceID:     e.instanceID,
		RequestID:      requestID,
		ConversationID: req.ConversationID,
		RequestModel:   req.ModelID,
		Status:         domain.GenerationStatusPending,
		StartTime:      time.Now(),
		PromptTokens:   tokens.Estimate(prompt.SystemPrompt, userPrompt),
	}
	e.createGeneration(gen)

	plan, err := e.router.Plan(req.ModelID)
	if err != nil {
		log.Printf("[Executor] Plan error for model %q: %v", req.ModelID, err)
		e.finishGeneration(gen, domain.GenerationStatusFailed, err)
		return nil, err
	}
	if len(plan) == 0 {
		log.Printf("[Executor] No configured provider for request %s", requestID)
		err := &domain.ExhaustionError{Last: domain.ErrProviderNotConfigured}
		e.finishGeneration(gen, domain.GenerationStatusFailed, err)
		return nil, err
	}

	gen.Status = domain.GenerationStatusInProgress
	e.updateGeneration(gen)

	var currentAttempt *domain.GenerationAttempt

	// 确保最终状态总会写入
	defer func() {
		if gen.Status == domain.GenerationStatusInProgress {
			if ctx.Err() != nil {
				e.finishGeneration(gen, domain.GenerationStatusCancelled, errors.New("client disconnected"))
			} else {
				e.finishGeneration(gen, domain.GenerationStatusFailed, nil)
			}
		}
		if currentAttempt != nil && currentAttempt.Status == domain.GenerationStatusInProgress {
			status := domain.GenerationStatusFailed
			if ctx.Err() != nil {
				status = domain.GenerationStatusCancelled
			}
			e.finishAttempt(currentAttempt, status, nil)
		}
	}()

	var lastErr error
	var attempted []string
	for idx, cand := range plan {
		if ctx.Err() != nil {
			log.Printf("[Executor] Context cancelled before model %d", idx+1)
			return nil, ctx.Err()
		}

		log.Printf("[Executor] Trying model %d/%d: %s (%s)", idx+1, len(plan), cand.Model.ID, cand.Model.Provider)
		sink.Progress(domain.ProgressEvent{
			Stage:     domain.StageProviderSwitch,
			Provider:  cand.Model.Provider,
			ModelID:   cand.Model.ID,
			ModelName: cand.Model.DisplayName,
		})

		attempt := &domain.GenerationAttempt{
			GenerationID: gen.ID,
			ModelID:      cand.Model.ID,
			Provider:     cand.Model.Provider,
			Status:       domain.GenerationStatusInProgress,
			StartTime:    time.Now(),
		}
		e.createAttempt(attempt)
		currentAttempt = attempt
		attempted = append(attempted, cand.Model.ID)
		gen.AttemptCount++
		e.updateGeneration(gen)

		text, err := e.stream(ctx, cand, userPrompt, sink)
		attempt.OutputChars = len(text)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[Executor] Context cancelled while streaming from %s", cand.Model.ID)
				e.finishAttempt(attempt, domain.GenerationStatusCancelled, ctx.Err())
				currentAttempt = nil
				return nil, ctx.Err()
			}

			log.Printf("[Executor] Model %s FAILED: %v", cand.Model.ID, err)
			lastErr = err
			e.finishAttempt(attempt, domain.GenerationStatusFailed, err)
			currentAttempt = nil
			e.handleCooldown(cand.Model.Provider, err)

			if idx+1 < len(plan) {
				next := plan[idx+1]
				sink.Progress(domain.ProgressEvent{
					Stage:     domain.StageFallback,
					Provider:  next.Model.Provider,
					ModelID:   next.Model.ID,
					ModelName: next.Model.DisplayName,
				})
			}
			continue
		}

		if e.cooldown != nil {
			e.cooldown.RecordSuccess(cand.Model.Provider)
		}

		parsed := parser.Parse(text)
		attempt.ParseStatus = parsed.Status.String()
		e.finishAttempt(attempt, domain.GenerationStatusCompleted, nil)
		currentAttempt = nil

		result := &domain.GenerationResult{
			Message:   parsed.Message,
			Files:     parsed.Files,
			UsedModel: cand.Model,
			Attempts:  idx + 1,
		}

		if !parsed.IsComplete() {
			log.Printf("[Executor] Response from %s truncated (incomplete file: %q)", cand.Model.ID, parsed.IncompleteFile)
			if err := e.recoverTruncated(ctx, cand, req, &parsed, result, sink); err != nil {
				return nil, err
			}
		}
		if result.Files == nil {
			result.Files = domain.NewFileMap()
		}

		gen.UsedModel = cand.Model.ID
		gen.FileCount = result.Files.Len()
		gen.RecoveredFiles = result.RecoveredFiles
		gen.OutputTokens = tokens.Estimate(text)
		gen.Cost = pricing.DefaultPriceTable().Calculate(cand.Model.UpstreamModel, gen.PromptTokens, gen.OutputTokens)
		e.finishGeneration(gen, domain.GenerationStatusCompleted, nil)
		result.GenerationID = gen.ID

		log.Printf("[Executor] Request %s completed with %s: %d files, %d recovered",
			requestID, cand.Model.ID, result.Files.Len(), len(result.RecoveredFiles))
		return result, nil
	}

	log.Printf("[Executor] All %d models exhausted, request failed", len(plan))
	err = &domain.ExhaustionError{Attempted: attempted, Last: lastErr}
	e.finishGeneration(gen, domain.GenerationStatusFailed, err)
	return nil, err
}

// stream relays deltas to the sink and returns the accumulated text
func (e *Executor) stream(ctx context.Context, cand *router.Candidate, userPrompt string, sink Sink) (string, error) {
	var sb strings.Builder
	for delta, err := range cand.Provider.Stream(ctx, provider.Request{
		Model:        cand.Model.UpstreamModel,
		SystemPrompt: prompt.SystemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    cand.Model.MaxOutputTokens,
	}) {
		if err != nil {
			return sb.String(), err
		}
		if ctx.Err() != nil {
			return sb.String(), ctx.Err()
		}
		sb.WriteString(delta)
		sink.Chunk(delta)
	}
	if ctx.Err() != nil {
		return sb.String(), ctx.Err()
	}
	return sb.String(), nil
}

// recoverTruncated regenerates the first incomplete file of a truncated
// response with the same model. Only one file is healed per response; a
// failed regeneration is logged and the file left out. The only error
// returned is ctx's.
func (e *Executor) recoverTruncated(
	ctx context.Context,
	cand *router.Candidate,
	req *domain.GenerationRequest,
	parsed *domain.ParseResult,
	result *domain.GenerationResult,
	sink Sink,
) error {
	sink.Progress(domain.ProgressEvent{
		Stage: domain.StageRecovering,
		File:  parsed.IncompleteFile,
	})

	path := parsed.IncompleteFile
	if path == "" {
		return nil
	}

	files := result.Files
	if files == nil {
		files = domain.NewFileMap()
		result.Files = files
	}

	sink.Progress(domain.ProgressEvent{
		Stage:   domain.StageRecoveringFile,
		File:    path,
		Attempt: 1,
		Total:   MaxRegenerations,
	})

	content, err := e.regenerator.Regenerate(ctx, cand.Provider, cand.Model, path, files, req.UserMessage)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[Executor] Failed to regenerate %s: %v", path, err)
		result.UnrecoveredFile = path
		return nil
	}

	files.Set(path, content)
	result.RecoveredFiles = append(result.RecoveredFiles, path)
	log.Printf("[Executor] Recovered %s", path)
	return nil
}

func (e *Executor) handleCooldown(p domain.ProviderType, err error) {
	if e.cooldown == nil {
		return
	}
	kind := domain.ErrorKindUnknown
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	reason, ok := cooldown.ReasonForKind(kind)
	if !ok {
		return
	}
	e.cooldown.RecordFailure(p, reason, nil)
}

// ==================== 记录与广播 ====================

func (e *Executor) createGeneration(g *domain.Generation) {
	if e.generationRepo != nil {
		if err := e.generationRepo.Create(g); err != nil {
			log.Printf("[Executor] Failed to create generation record: %v", err)
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastGeneration(g)
	}
}

func (e *Executor) updateGeneration(g *domain.Generation) {
	if e.generationRepo != nil {
		if err := e.generationRepo.Update(g); err != nil {
			log.Printf("[Executor] Failed to update generation record: %v", err)
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastGeneration(g)
	}
}

func (e *Executor) finishGeneration(g *domain.Generation, status string, err error) {
	g.Status = status
	g.EndTime = time.Now()
	g.Duration = g.EndTime.Sub(g.StartTime)
	if err != nil {
		g.Error = err.Error()
	}
	e.updateGeneration(g)
}

func (e *Executor) createAttempt(a *domain.GenerationAttempt) {
	if e.attemptRepo != nil {
		if err := e.attemptRepo.Create(a); err != nil {
			log.Printf("[Executor] Failed to create attempt record: %v", err)
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastGenerationAttempt(a)
	}
}

func (e *Executor) finishAttempt(a *domain.GenerationAttempt, status string, err error) {
	a.Status = status
	a.EndTime = time.Now()
	a.Duration = a.EndTime.Sub(a.StartTime)
	if err != nil {
		a.Error = err.Error()
		a.ErrorKind = string(domain.ErrorKindUnknown)
		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			a.ErrorKind = string(pe.Kind)
		}
	}
	if e.attemptRepo != nil {
		if err := e.attemptRepo.Update(a); err != nil {
			log.Printf("[Executor] Failed to update attempt record: %v", err)
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastGenerationAttempt(a)
	}
}
