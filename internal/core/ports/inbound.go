package ports

import (
	"context"
	"io"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, kind domain.SourceKind, runID string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor processes a single claimed document to completion.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// ResearchService drives a run through its phase state machine.
type ResearchService interface {
	CreateRun(ctx context.Context, title, brief string) (*domain.ResearchRun, error)
	Clarify(ctx context.Context, runID string) (*domain.ConversationTurn, error)
	RecordAnswer(ctx context.Context, runID, answer string) (*domain.ConversationTurn, error)
	Rewrite(ctx context.Context, runID string) (*domain.ResearchRun, error)
	LaunchResearch(ctx context.Context, runID string) (*domain.ResearchRun, error)
	PollResearch(ctx context.Context, runID string) (*domain.ResearchRun, error)
}

// SourceVerifier recomputes source reliability from chunk density.
type SourceVerifier interface {
	VerifyRun(ctx context.Context, runID string) error
}
