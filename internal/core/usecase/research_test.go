package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/repository/inmemory"
)

func newOrchestrator(store *inmemory.Store, reasoner *fakeReasoner) *ResearchOrchestrator {
	return NewResearchOrchestrator(store, reasoner, store, nil, nil, []string{"web_search_preview"}, discardLogger())
}

func createdRun(t *testing.T, o *ResearchOrchestrator) *domain.ResearchRun {
	t.Helper()
	run, err := o.CreateRun(context.Background(), "Grid storage", "How do flow batteries compare to lithium for grid storage?")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return run
}

func TestCreateRunRequiresBrief(t *testing.T) {
	o := newOrchestrator(inmemory.NewStore(), &fakeReasoner{})
	_, err := o.CreateRun(context.Background(), "Title", "   ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateRunDerivesTitleFromBrief(t *testing.T) {
	o := newOrchestrator(inmemory.NewStore(), &fakeReasoner{})
	run, err := o.CreateRun(context.Background(), "", "First line of the brief\nrest of it")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.Title != "First line of the brief" {
		t.Fatalf("derived title = %q", run.Title)
	}
	if run.Status != domain.RunClarifying || run.Phase != domain.PhaseClarify {
		t.Fatalf("new run must start clarifying, got %s/%s", run.Status, run.Phase)
	}
}

func TestClarifyAppendsAssistantTurn(t *testing.T) {
	store := inmemory.NewStore()
	reasoner := &fakeReasoner{clarifyFn: func(req domain.ClarifyRequest) (string, error) {
		if req.Brief == "" {
			t.Errorf("clarify request missing brief")
		}
		return "1. What time horizon?\n2. Which regions?", nil
	}}
	o := newOrchestrator(store, reasoner)
	run := createdRun(t, o)

	turn, err := o.Clarify(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Clarify() error = %v", err)
	}
	if turn.Role != domain.RoleAssistant || !strings.Contains(turn.Content, "time horizon") {
		t.Fatalf("unexpected turn: %+v", turn)
	}

	turns, err := store.ListTurns(context.Background(), run.ID, domain.RoleAssistant)
	if err != nil || len(turns) != 1 {
		t.Fatalf("ListTurns() = %d turns, %v", len(turns), err)
	}

	events, err := store.ListProgress(context.Background(), run.ID, true)
	if err != nil || len(events) == 0 {
		t.Fatalf("clarify must leave a progress event, got %d (%v)", len(events), err)
	}
	if _, ok := events[len(events)-1].Payload.(domain.ClarifyPayload); !ok {
		t.Fatalf("payload type %T", events[len(events)-1].Payload)
	}
}

func TestRewritePersistsPromptAndTranscriptContext(t *testing.T) {
	store := inmemory.NewStore()
	var sawClarifications int
	reasoner := &fakeReasoner{
		clarifyFn: func(domain.ClarifyRequest) (string, error) { return "Which chemistry?", nil },
		rewriteFn: func(req domain.RewriteRequest) (string, error) {
			sawClarifications = len(req.Clarifications)
			return "Compare vanadium flow batteries with LFP for 4h+ grid storage.", nil
		},
	}
	o := newOrchestrator(store, reasoner)
	run := createdRun(t, o)

	if _, err := o.Clarify(context.Background(), run.ID); err != nil {
		t.Fatalf("Clarify() error = %v", err)
	}
	if _, err := o.RecordAnswer(context.Background(), run.ID, "Vanadium, please."); err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}

	updated, err := o.Rewrite(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if sawClarifications != 2 {
		t.Fatalf("rewrite should see both transcript turns, saw %d", sawClarifications)
	}
	if updated.RewrittenPrompt == "" || updated.Phase != domain.PhaseRewrite || updated.Status != domain.RunRunning {
		t.Fatalf("unexpected run after rewrite: %+v", updated)
	}

	persisted, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if persisted.RewrittenPrompt != updated.RewrittenPrompt {
		t.Fatalf("rewritten prompt not persisted")
	}
}

func TestLaunchResearchRequiresRewrittenPrompt(t *testing.T) {
	store := inmemory.NewStore()
	o := newOrchestrator(store, &fakeReasoner{})
	run := createdRun(t, o)

	_, err := o.LaunchResearch(context.Background(), run.ID)
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("launch without prompt: want ErrInvalidState, got %v", err)
	}
}

func TestLaunchResearchRefusesDoubleLaunch(t *testing.T) {
	store := inmemory.NewStore()
	launches := 0
	reasoner := &fakeReasoner{
		rewriteFn: func(domain.RewriteRequest) (string, error) { return "prompt", nil },
		launchFn: func(domain.ResearchRequest) (string, error) {
			launches++
			return "job-1", nil
		},
	}
	o := newOrchestrator(store, reasoner)
	run := createdRun(t, o)

	if _, err := o.Rewrite(context.Background(), run.ID); err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	launched, err := o.LaunchResearch(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("LaunchResearch() error = %v", err)
	}
	if launched.BackgroundJobID != "job-1" || launched.Phase != domain.PhaseResearch {
		t.Fatalf("unexpected run after launch: %+v", launched)
	}

	_, err = o.LaunchResearch(context.Background(), run.ID)
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("second launch: want ErrInvalidState, got %v", err)
	}
	if launches != 1 {
		t.Fatalf("reasoner launched %d times, want 1", launches)
	}
}

func TestPollResearchWhileRunningLeavesRunUntouched(t *testing.T) {
	store := inmemory.NewStore()
	reasoner := &fakeReasoner{
		rewriteFn: func(domain.RewriteRequest) (string, error) { return "prompt", nil },
		launchFn:  func(domain.ResearchRequest) (string, error) { return "job-1", nil },
		pollFn: func(string) (*domain.BackgroundResult, error) {
			return &domain.BackgroundResult{State: domain.JobRunning}, nil
		},
	}
	o := newOrchestrator(store, reasoner)
	run := createdRun(t, o)
	mustAdvanceToResearch(t, o, run.ID)

	polled, err := o.PollResearch(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("PollResearch() error = %v", err)
	}
	if polled.Status != domain.RunRunning || polled.Phase != domain.PhaseResearch {
		t.Fatalf("running job must not advance the run: %+v", polled)
	}
}

func TestPollResearchCompletionMaterializesReportOnce(t *testing.T) {
	store := inmemory.NewStore()
	reasoner := &fakeReasoner{
		rewriteFn: func(domain.RewriteRequest) (string, error) { return "prompt", nil },
		launchFn:  func(domain.ResearchRequest) (string, error) { return "job-1", nil },
		pollFn: func(string) (*domain.BackgroundResult, error) {
			return &domain.BackgroundResult{
				State:  domain.JobCompleted,
				Output: "## Findings\nFlow batteries win past 6 hours. [DOC-a-0]",
				Citations: []domain.Citation{
					{Title: "NREL study", URL: "https://example.org/nrel", StartIndex: 12, EndIndex: 40},
				},
			}, nil
		},
	}
	o := newOrchestrator(store, reasoner)
	run := createdRun(t, o)
	mustAdvanceToResearch(t, o, run.ID)

	completed, err := o.PollResearch(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("PollResearch() error = %v", err)
	}
	if completed.Status != domain.RunCompleted || completed.Phase != domain.PhaseReport {
		t.Fatalf("unexpected run after completion: %+v", completed)
	}

	// Polling a terminal run is a no-op, not a second section.
	again, err := o.PollResearch(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("second poll error = %v", err)
	}
	if again.Status != domain.RunCompleted {
		t.Fatalf("second poll changed the run: %+v", again)
	}

	events, err := store.ListProgress(context.Background(), run.ID, true)
	if err != nil {
		t.Fatalf("ListProgress() error = %v", err)
	}
	final := events[len(events)-1]
	if final.Progress != 100 {
		t.Fatalf("completion must record progress 100, got %d", final.Progress)
	}
	payload, ok := final.Payload.(domain.ResearchCompletePayload)
	if !ok {
		t.Fatalf("payload type %T", final.Payload)
	}
	if payload.CitationCount != 1 || payload.JobID != "job-1" {
		t.Fatalf("unexpected completion payload: %+v", payload)
	}
}

func TestPollResearchFailureMarksRunFailed(t *testing.T) {
	store := inmemory.NewStore()
	reasoner := &fakeReasoner{
		rewriteFn: func(domain.RewriteRequest) (string, error) { return "prompt", nil },
		launchFn:  func(domain.ResearchRequest) (string, error) { return "job-1", nil },
		pollFn: func(string) (*domain.BackgroundResult, error) {
			return &domain.BackgroundResult{State: domain.JobFailed, Error: "model refused"}, nil
		},
	}
	o := newOrchestrator(store, reasoner)
	run := createdRun(t, o)
	mustAdvanceToResearch(t, o, run.ID)

	failed, err := o.PollResearch(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("PollResearch() error = %v", err)
	}
	if failed.Status != domain.RunFailed {
		t.Fatalf("expected failed run, got %s", failed.Status)
	}

	// Terminal runs refuse further phase operations.
	_, err = o.Clarify(context.Background(), run.ID)
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("clarify on failed run: want ErrInvalidState, got %v", err)
	}
}

func TestPollResearchWithoutJobIsInvalidState(t *testing.T) {
	store := inmemory.NewStore()
	o := newOrchestrator(store, &fakeReasoner{})
	run := createdRun(t, o)

	_, err := o.PollResearch(context.Background(), run.ID)
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("poll without job: want ErrInvalidState, got %v", err)
	}
}

func TestClarifyPropagatesReasonerError(t *testing.T) {
	store := inmemory.NewStore()
	reasoner := &fakeReasoner{clarifyFn: func(domain.ClarifyRequest) (string, error) {
		return "", domain.WrapError(domain.ErrExternal, "clarify", errors.New("upstream 500"))
	}}
	o := newOrchestrator(store, reasoner)
	run := createdRun(t, o)

	_, err := o.Clarify(context.Background(), run.ID)
	if !domain.IsKind(err, domain.ErrExternal) {
		t.Fatalf("want ErrExternal, got %v", err)
	}

	turns, _ := store.ListTurns(context.Background(), run.ID, "")
	if len(turns) != 0 {
		t.Fatalf("failed clarify must not append turns, got %d", len(turns))
	}
}

func mustAdvanceToResearch(t *testing.T, o *ResearchOrchestrator, runID string) {
	t.Helper()
	if _, err := o.Rewrite(context.Background(), runID); err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if _, err := o.LaunchResearch(context.Background(), runID); err != nil {
		t.Fatalf("LaunchResearch() error = %v", err)
	}
}
