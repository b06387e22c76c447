package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmakhnev/deep-research-core/internal/chunking"
	"github.com/dmakhnev/deep-research-core/internal/core/domain"
	"github.com/dmakhnev/deep-research-core/internal/core/ports"
)

// ProcessDocument runs the full ingestion pipeline for one claimed
// document: load bytes, extract page text, chunk, persist. The caller owns
// the claim; this usecase only ever sees documents in processing state.
type ProcessDocument struct {
	repo        ports.DocumentRepository
	storage     ports.ObjectStorage
	pages       ports.PageExtractor
	transcripts ports.TranscriptParser
	audit       ports.AuditLog
	broadcaster ports.ProgressBroadcaster
	chunkOpts   chunking.Options
	logger      *slog.Logger
}

func NewProcessDocument(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	pages ports.PageExtractor,
	transcripts ports.TranscriptParser,
	audit ports.AuditLog,
	broadcaster ports.ProgressBroadcaster,
	chunkOpts chunking.Options,
	logger *slog.Logger,
) *ProcessDocument {
	return &ProcessDocument{
		repo:        repo,
		storage:     storage,
		pages:       pages,
		transcripts: transcripts,
		audit:       audit,
		broadcaster: broadcaster,
		chunkOpts:   chunkOpts,
		logger:      logger.With(slog.String("usecase", "process_document")),
	}
}

func (p *ProcessDocument) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := p.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	p.progress(ctx, doc, 15, fmt.Sprintf("extracting %s", doc.Filename), nil)

	pages, err := p.extract(ctx, doc)
	if err != nil {
		return p.fail(ctx, doc, fmt.Errorf("extract pages: %w", err))
	}

	descriptors := chunking.Chunk(pages, chunking.SourceRef{Kind: doc.Kind, ID: doc.ID}, p.chunkOpts)

	now := time.Now().UTC()
	source := &domain.Source{
		ID:               uuid.NewString(),
		DocumentID:       doc.ID,
		RunID:            doc.RunID,
		Kind:             doc.Kind,
		Title:            doc.Filename,
		ReliabilityScore: domain.ReliabilityFromChunkCount(len(descriptors)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	chunks := make([]domain.Chunk, 0, len(descriptors))
	for _, d := range descriptors {
		chunks = append(chunks, domain.Chunk{
			ID:          uuid.NewString(),
			DocumentID:  doc.ID,
			OrderIndex:  d.Order,
			PageNumber:  d.PageNumber,
			Heading:     d.Heading,
			Text:        d.Text,
			CitationKey: d.CitationKey,
			CreatedAt:   now,
		})
	}

	doc.PageCount = len(pages)
	if err := p.repo.CompleteIngestion(ctx, doc, source, chunks); err != nil {
		return p.fail(ctx, doc, fmt.Errorf("complete ingestion: %w", err))
	}

	p.progress(ctx, doc, 100, fmt.Sprintf("ingested %s", doc.Filename), domain.IngestPayload{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		PageCount:  doc.PageCount,
		ChunkCount: len(chunks),
	})
	p.logger.Info("document ingested",
		slog.String("document_id", doc.ID),
		slog.Int("pages", doc.PageCount),
		slog.Int("chunks", len(chunks)),
	)
	return nil
}

func (p *ProcessDocument) extract(ctx context.Context, doc *domain.Document) ([]domain.PageSlice, error) {
	reader, err := p.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}

	if doc.Kind == domain.KindTranscript {
		turns := p.transcripts.Parse(string(data))
		if len(turns) == 0 {
			return nil, fmt.Errorf("transcript %s has no turns", doc.Filename)
		}
		return transcriptPages(turns), nil
	}
	return p.pages.ExtractPages(ctx, data)
}

// fail records the terminal state: failed status, the error on the row and a
// final progress entry so consumers see the document reached 100 either way.
func (p *ProcessDocument) fail(ctx context.Context, doc *domain.Document, cause error) error {
	if err := p.repo.MarkFailed(ctx, doc.ID, cause.Error()); err != nil {
		p.logger.Error("mark failed", slog.String("document_id", doc.ID), slog.Any("error", err))
	}
	p.progress(ctx, doc, 100, fmt.Sprintf("ingestion of %s failed", doc.Filename), domain.IngestFailurePayload{
		DocumentID: doc.ID,
		Error:      cause.Error(),
	})
	p.logger.Error("document ingestion failed",
		slog.String("document_id", doc.ID),
		slog.Any("error", cause),
	)
	return cause
}

func (p *ProcessDocument) progress(ctx context.Context, doc *domain.Document, percent int, message string, payload domain.EventPayload) {
	event := &domain.ProgressEvent{
		ID:         uuid.NewString(),
		RunID:      doc.RunID,
		DocumentID: doc.ID,
		Phase:      domain.ProgressIngest,
		Message:    message,
		Progress:   percent,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.audit.AppendProgress(ctx, event); err != nil {
		p.logger.Error("append progress", slog.String("document_id", doc.ID), slog.Any("error", err))
	}
	if p.broadcaster != nil {
		if err := p.broadcaster.Broadcast(ctx, event); err != nil {
			p.logger.Warn("broadcast progress", slog.String("document_id", doc.ID), slog.Any("error", err))
		}
	}
}

func transcriptPages(turns []domain.TranscriptTurn) []domain.PageSlice {
	pages := make([]domain.PageSlice, 0, len(turns))
	for _, turn := range turns {
		pages = append(pages, domain.PageSlice{
			PageNumber: turn.Order + 1,
			Heading:    turn.Speaker,
			Text:       turn.Text,
		})
	}
	return pages
}
