package ports

import (
	"context"
	"io"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

// DocumentRepository persists document, source and chunk state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// ListPending returns up to limit pending documents ordered by creation
	// time.
	ListPending(ctx context.Context, limit int) ([]domain.Document, error)
	// Claim is the atomic conditional transition pending -> processing. It
	// returns false when another claimant already won; that is not an error.
	Claim(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id, errMessage string) error
	// Requeue resets a failed document to pending for resubmission.
	Requeue(ctx context.Context, id string) error
	// CompleteIngestion applies the source upsert, the chunk bulk insert and
	// the ready status in a single transaction.
	CompleteIngestion(ctx context.Context, doc *domain.Document, source *domain.Source, chunks []domain.Chunk) error
	CountChunks(ctx context.Context, documentID string) (int, error)
	ListSourcesByRun(ctx context.Context, runID string) ([]domain.Source, error)
	UpdateSourceReliability(ctx context.Context, sourceID string, score float64) error
}

// ResearchRepository persists research runs and their transcripts.
type ResearchRepository interface {
	CreateRun(ctx context.Context, run *domain.ResearchRun) error
	GetRun(ctx context.Context, id string) (*domain.ResearchRun, error)
	// UpdateRun persists status, phase, rewritten prompt and background job
	// id of an existing run.
	UpdateRun(ctx context.Context, run *domain.ResearchRun) error
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error
	ListTurns(ctx context.Context, runID string, role domain.TurnRole) ([]domain.ConversationTurn, error)
	// CreateSectionIfAbsent inserts the section unless one of the same type
	// already exists for the run. Returns whether a row was inserted.
	CreateSectionIfAbsent(ctx context.Context, section *domain.ReportSection) (bool, error)
}

// AuditLog is the append-only progress and methodology trail. No update or
// delete exists; corrections are new entries.
type AuditLog interface {
	AppendProgress(ctx context.Context, event *domain.ProgressEvent) error
	ListProgress(ctx context.Context, runID string, ascending bool) ([]domain.ProgressEvent, error)
	AppendMethodology(ctx context.Context, entry *domain.MethodologyEntry) error
	ListMethodology(ctx context.Context, runID string, ascending bool) ([]domain.MethodologyEntry, error)
}

// ObjectStorage stores uploaded bytes by opaque relative path.
type ObjectStorage interface {
	// Persist writes the data under a unique path derived from originalName
	// and returns that path.
	Persist(ctx context.Context, originalName string, data io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// PageExtractor extracts ordered page text from a binary document.
type PageExtractor interface {
	ExtractPages(ctx context.Context, data []byte) ([]domain.PageSlice, error)
}

// TranscriptParser splits raw transcript text into speaker turns.
type TranscriptParser interface {
	Parse(text string) []domain.TranscriptTurn
}

// ReasoningService is the external generation collaborator. Clarify and
// Rewrite are synchronous; LaunchResearch starts a background job that is
// observed through PollResearch.
type ReasoningService interface {
	Clarify(ctx context.Context, req domain.ClarifyRequest) (string, error)
	Rewrite(ctx context.Context, req domain.RewriteRequest) (string, error)
	LaunchResearch(ctx context.Context, req domain.ResearchRequest) (string, error)
	PollResearch(ctx context.Context, jobID string) (*domain.BackgroundResult, error)
}

// ProgressBroadcaster fans progress events out to live consumers. Best
// effort only; failures never affect the durable trail.
type ProgressBroadcaster interface {
	Broadcast(ctx context.Context, event *domain.ProgressEvent) error
}
