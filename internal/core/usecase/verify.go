package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
	"github.com/dmakhnev/deep-research-core/internal/core/ports"
)

// VerifySources recomputes each source's reliability from its stored chunk
// count and records the pass in the methodology trail.
type VerifySources struct {
	docs   ports.DocumentRepository
	audit  ports.AuditLog
	logger *slog.Logger
}

func NewVerifySources(docs ports.DocumentRepository, audit ports.AuditLog, logger *slog.Logger) *VerifySources {
	return &VerifySources{
		docs:   docs,
		audit:  audit,
		logger: logger.With(slog.String("usecase", "verify_sources")),
	}
}

func (v *VerifySources) VerifyRun(ctx context.Context, runID string) error {
	sources, err := v.docs.ListSourcesByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("list sources for run %s: %w", runID, err)
	}

	for _, src := range sources {
		count, err := v.docs.CountChunks(ctx, src.DocumentID)
		if err != nil {
			return fmt.Errorf("count chunks for source %s: %w", src.ID, err)
		}
		score := domain.ReliabilityFromChunkCount(count)
		if err := v.docs.UpdateSourceReliability(ctx, src.ID, score); err != nil {
			return fmt.Errorf("update reliability for source %s: %w", src.ID, err)
		}

		payload := domain.VerifyPayload{SourceID: src.ID, ChunkCount: count, ReliabilityScore: score}
		v.record(ctx, runID, payload)
		v.logger.Info("source verified",
			slog.String("source_id", src.ID),
			slog.Int("chunks", count),
			slog.Float64("reliability", score),
		)
	}
	return nil
}

func (v *VerifySources) record(ctx context.Context, runID string, payload domain.VerifyPayload) {
	now := time.Now().UTC()
	event := &domain.ProgressEvent{
		ID:        uuid.NewString(),
		RunID:     runID,
		Phase:     domain.ProgressVerify,
		Message:   fmt.Sprintf("verified source %s", payload.SourceID),
		Progress:  90,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := v.audit.AppendProgress(ctx, event); err != nil {
		v.logger.Error("append progress", slog.String("run_id", runID), slog.Any("error", err))
	}
	entry := &domain.MethodologyEntry{
		ID:        uuid.NewString(),
		RunID:     runID,
		Action:    "source reliability recomputed",
		Details:   payload,
		CreatedAt: now,
	}
	if err := v.audit.AppendMethodology(ctx, entry); err != nil {
		v.logger.Error("append methodology", slog.String("run_id", runID), slog.Any("error", err))
	}
}
