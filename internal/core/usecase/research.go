package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
	"github.com/dmakhnev/deep-research-core/internal/core/ports"
)

// PhaseMetrics counts run phase transitions.
type PhaseMetrics interface {
	RunTransition(service, phase string)
}

// ResearchOrchestrator drives a run through clarify -> rewrite -> research
// -> report. Phase transitions are persisted before any long call so a
// crashed worker can resume by polling; the background job itself lives in
// the reasoning service.
type ResearchOrchestrator struct {
	runs        ports.ResearchRepository
	reasoner    ports.ReasoningService
	audit       ports.AuditLog
	broadcaster ports.ProgressBroadcaster
	metrics     PhaseMetrics
	tools       []string
	logger      *slog.Logger
}

func NewResearchOrchestrator(
	runs ports.ResearchRepository,
	reasoner ports.ReasoningService,
	audit ports.AuditLog,
	broadcaster ports.ProgressBroadcaster,
	metrics PhaseMetrics,
	tools []string,
	logger *slog.Logger,
) *ResearchOrchestrator {
	return &ResearchOrchestrator{
		runs:        runs,
		reasoner:    reasoner,
		audit:       audit,
		broadcaster: broadcaster,
		metrics:     metrics,
		tools:       tools,
		logger:      logger.With(slog.String("usecase", "research_orchestrator")),
	}
}

func (o *ResearchOrchestrator) transition(phase domain.RunPhase) {
	if o.metrics != nil {
		o.metrics.RunTransition("research-orchestrator", string(phase))
	}
}

func (o *ResearchOrchestrator) CreateRun(ctx context.Context, title, brief string) (*domain.ResearchRun, error) {
	if strings.TrimSpace(brief) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create run", fmt.Errorf("empty brief"))
	}
	if strings.TrimSpace(title) == "" {
		title = firstLine(brief)
	}

	now := time.Now().UTC()
	run := &domain.ResearchRun{
		ID:        uuid.NewString(),
		Title:     title,
		Brief:     brief,
		Status:    domain.RunClarifying,
		Phase:     domain.PhaseClarify,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create research run: %w", err)
	}

	o.transition(run.Phase)
	o.methodology(ctx, run.ID, "run created", nil)
	o.logger.Info("research run created", slog.String("run_id", run.ID), slog.String("title", run.Title))
	return run, nil
}

// Clarify asks the reasoning service for clarifying questions about the
// brief and appends them to the run's transcript.
func (o *ResearchOrchestrator) Clarify(ctx context.Context, runID string) (*domain.ConversationTurn, error) {
	run, err := o.activeRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	questions, err := o.reasoner.Clarify(ctx, domain.ClarifyRequest{Title: run.Title, Brief: run.Brief})
	if err != nil {
		return nil, fmt.Errorf("clarify run %s: %w", runID, err)
	}

	turn := &domain.ConversationTurn{
		ID:        uuid.NewString(),
		RunID:     runID,
		Role:      domain.RoleAssistant,
		Content:   questions,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.runs.AppendTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("append clarify turn: %w", err)
	}

	payload := domain.ClarifyPayload{
		TurnID:        turn.ID,
		PromptChars:   len(run.Brief),
		ResponseChars: len(questions),
	}
	o.progress(ctx, run, 30, "clarifying questions ready", payload)
	o.methodology(ctx, runID, "clarifying questions generated", payload)
	return turn, nil
}

// RecordAnswer appends the user's reply to the clarification transcript.
func (o *ResearchOrchestrator) RecordAnswer(ctx context.Context, runID, answer string) (*domain.ConversationTurn, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record answer", fmt.Errorf("empty answer"))
	}
	run, err := o.activeRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	turn := &domain.ConversationTurn{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		Role:      domain.RoleUser,
		Content:   answer,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.runs.AppendTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("append answer turn: %w", err)
	}
	return turn, nil
}

// Rewrite condenses the brief and the clarification transcript into the
// prompt the background research job will receive.
func (o *ResearchOrchestrator) Rewrite(ctx context.Context, runID string) (*domain.ResearchRun, error) {
	run, err := o.activeRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	turns, err := o.runs.ListTurns(ctx, runID, "")
	if err != nil {
		return nil, fmt.Errorf("list clarification turns: %w", err)
	}
	clarifications := make([]string, 0, len(turns))
	for _, turn := range turns {
		clarifications = append(clarifications, fmt.Sprintf("%s: %s", turn.Role, turn.Content))
	}

	rewritten, err := o.reasoner.Rewrite(ctx, domain.RewriteRequest{
		Title:          run.Title,
		Brief:          run.Brief,
		Clarifications: clarifications,
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite run %s: %w", runID, err)
	}

	run.RewrittenPrompt = rewritten
	run.Status = domain.RunRunning
	if err := o.advancePhase(run, domain.PhaseRewrite); err != nil {
		return nil, err
	}
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist rewritten prompt: %w", err)
	}

	payload := domain.RewritePayload{
		ClarificationCount: len(clarifications),
		RewrittenChars:     len(rewritten),
	}
	o.progress(ctx, run, 50, "research prompt rewritten", payload)
	o.methodology(ctx, runID, "prompt rewritten from clarifications", payload)
	return run, nil
}

// LaunchResearch starts the background job. A run whose job id is already
// set is refused: launching twice would charge for two jobs and leave one
// unobserved.
func (o *ResearchOrchestrator) LaunchResearch(ctx context.Context, runID string) (*domain.ResearchRun, error) {
	run, err := o.activeRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(run.RewrittenPrompt) == "" {
		return nil, domain.WrapError(domain.ErrInvalidState, "launch research", fmt.Errorf("run %s has no rewritten prompt", runID))
	}
	if run.BackgroundJobID != "" {
		return nil, domain.WrapError(domain.ErrInvalidState, "launch research", fmt.Errorf("run %s already launched job %s", runID, run.BackgroundJobID))
	}

	jobID, err := o.reasoner.LaunchResearch(ctx, domain.ResearchRequest{Title: run.Title, Prompt: run.RewrittenPrompt})
	if err != nil {
		return nil, fmt.Errorf("launch research for run %s: %w", runID, err)
	}

	run.BackgroundJobID = jobID
	run.Status = domain.RunRunning
	if err := o.advancePhase(run, domain.PhaseResearch); err != nil {
		return nil, err
	}
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist background job id: %w", err)
	}

	payload := domain.ResearchLaunchPayload{JobID: jobID, Tools: o.tools}
	o.progress(ctx, run, 60, "background research started", payload)
	o.methodology(ctx, runID, "background research launched", payload)
	o.logger.Info("background research launched", slog.String("run_id", runID), slog.String("job_id", jobID))
	return run, nil
}

// PollResearch inspects the background job once and advances the run if it
// finished. Completed runs are returned as-is; polling is idempotent.
func (o *ResearchOrchestrator) PollResearch(ctx context.Context, runID string) (*domain.ResearchRun, error) {
	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}
	if run.BackgroundJobID == "" {
		return nil, domain.WrapError(domain.ErrInvalidState, "poll research", fmt.Errorf("run %s has no background job", runID))
	}

	result, err := o.reasoner.PollResearch(ctx, run.BackgroundJobID)
	if err != nil {
		return nil, fmt.Errorf("poll job %s: %w", run.BackgroundJobID, err)
	}

	switch result.State {
	case domain.JobRunning:
		return run, nil
	case domain.JobFailed:
		return o.failRun(ctx, run, result.Error)
	case domain.JobCompleted:
		return o.completeRun(ctx, run, result)
	default:
		return nil, domain.WrapError(domain.ErrExternal, "poll research", fmt.Errorf("unknown job state %q", result.State))
	}
}

func (o *ResearchOrchestrator) completeRun(ctx context.Context, run *domain.ResearchRun, result *domain.BackgroundResult) (*domain.ResearchRun, error) {
	section := &domain.ReportSection{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		SectionType: domain.SectionReport,
		Content:     result.Output,
		Citations:   result.Citations,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := o.runs.CreateSectionIfAbsent(ctx, section)
	if err != nil {
		return nil, fmt.Errorf("persist report section: %w", err)
	}
	if !created {
		// A concurrent poll already materialized the report.
		section.ID = ""
	}

	run.Status = domain.RunCompleted
	if err := o.advancePhase(run, domain.PhaseReport); err != nil {
		return nil, err
	}
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}

	payload := domain.ResearchCompletePayload{
		JobID:         run.BackgroundJobID,
		SectionID:     section.ID,
		OutputChars:   len(result.Output),
		CitationCount: len(result.Citations),
	}
	o.progress(ctx, run, 100, "research report ready", payload)
	o.methodology(ctx, run.ID, "research completed", payload)
	o.logger.Info("research run completed",
		slog.String("run_id", run.ID),
		slog.Int("citations", len(result.Citations)),
	)
	return run, nil
}

func (o *ResearchOrchestrator) failRun(ctx context.Context, run *domain.ResearchRun, cause string) (*domain.ResearchRun, error) {
	run.Status = domain.RunFailed
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("fail run: %w", err)
	}

	payload := domain.ResearchFailurePayload{JobID: run.BackgroundJobID, Error: cause}
	o.progress(ctx, run, 100, "background research failed", payload)
	o.methodology(ctx, run.ID, "research failed", payload)
	o.logger.Error("research run failed", slog.String("run_id", run.ID), slog.String("cause", cause))
	return run, nil
}

// advancePhase moves the run forward through the phase order; moving
// backwards is a programming error surfaced as invalid state.
func (o *ResearchOrchestrator) advancePhase(run *domain.ResearchRun, phase domain.RunPhase) error {
	if phase.Before(run.Phase) {
		return domain.WrapError(domain.ErrInvalidState, "advance phase",
			fmt.Errorf("run %s cannot move from %s back to %s", run.ID, run.Phase, phase))
	}
	run.Phase = phase
	o.transition(phase)
	return nil
}

// activeRun loads the run and refuses phase operations on terminal runs.
func (o *ResearchOrchestrator) activeRun(ctx context.Context, runID string) (*domain.ResearchRun, error) {
	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, domain.WrapError(domain.ErrInvalidState, "advance run", fmt.Errorf("run %s is %s", runID, run.Status))
	}
	return run, nil
}

func (o *ResearchOrchestrator) progress(ctx context.Context, run *domain.ResearchRun, percent int, message string, payload domain.EventPayload) {
	event := &domain.ProgressEvent{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		Phase:     phaseProgress(run.Phase),
		Message:   message,
		Progress:  percent,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.audit.AppendProgress(ctx, event); err != nil {
		o.logger.Error("append progress", slog.String("run_id", run.ID), slog.Any("error", err))
	}
	if o.broadcaster != nil {
		if err := o.broadcaster.Broadcast(ctx, event); err != nil {
			o.logger.Warn("broadcast progress", slog.String("run_id", run.ID), slog.Any("error", err))
		}
	}
}

func (o *ResearchOrchestrator) methodology(ctx context.Context, runID, action string, details domain.EventPayload) {
	entry := &domain.MethodologyEntry{
		ID:        uuid.NewString(),
		RunID:     runID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.audit.AppendMethodology(ctx, entry); err != nil {
		o.logger.Error("append methodology", slog.String("run_id", runID), slog.Any("error", err))
	}
}

func phaseProgress(phase domain.RunPhase) domain.ProgressPhase {
	switch phase {
	case domain.PhaseRewrite:
		return domain.ProgressRewrite
	case domain.PhaseResearch:
		return domain.ProgressResearch
	case domain.PhaseVerify:
		return domain.ProgressVerify
	case domain.PhaseReport:
		return domain.ProgressReport
	default:
		return domain.ProgressClarify
	}
}

func firstLine(s string) string {
	line := strings.TrimSpace(s)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	const maxTitle = 120
	if len(line) > maxTitle {
		line = line[:maxTitle]
	}
	return line
}
