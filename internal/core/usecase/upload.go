package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
	"github.com/dmakhnev/deep-research-core/internal/core/ports"
)

// UploadDocument stores the raw bytes and registers a pending document row.
// Chunking happens later, when a worker claims the row.
type UploadDocument struct {
	storage ports.ObjectStorage
	repo    ports.DocumentRepository
	logger  *slog.Logger
}

func NewUploadDocument(storage ports.ObjectStorage, repo ports.DocumentRepository, logger *slog.Logger) *UploadDocument {
	return &UploadDocument{
		storage: storage,
		repo:    repo,
		logger:  logger.With(slog.String("usecase", "upload_document")),
	}
}

func (u *UploadDocument) Upload(ctx context.Context, filename, mimeType string, kind domain.SourceKind, runID string, body io.Reader) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("empty filename"))
	}
	if kind != domain.KindDocument && kind != domain.KindTranscript {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("unknown source kind %q", kind))
	}

	hasher := sha256.New()
	path, err := u.storage.Persist(ctx, filename, io.TeeReader(body, hasher))
	if err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          uuid.NewString(),
		RunID:       runID,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: path,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Kind:        kind,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}

	u.logger.Info("document uploaded",
		slog.String("document_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.String("kind", string(doc.Kind)),
	)
	return doc, nil
}
