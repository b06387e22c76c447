package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, run_id, filename, mime_type, storage_path, checksum, kind, status, page_count, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, nullable(doc.RunID), doc.Filename, doc.MimeType, doc.StoragePath, doc.Checksum,
		string(doc.Kind), string(doc.Status), doc.PageCount, doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, run_id, filename, mime_type, storage_path, checksum, kind, status, page_count, error_message, created_at, updated_at`

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "fetch document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListPending(ctx context.Context, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = $1
ORDER BY created_at ASC
LIMIT $2
`, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending documents: %w", err)
	}
	return docs, nil
}

// Claim is the single compare-and-set that grants exclusive processing
// rights: only the claimant whose UPDATE matched the pending row wins.
func (r *DocumentRepository) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.StatusProcessing), time.Now().UTC(), string(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.StatusFailed), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return requireRow(res, "mark document failed", id)
}

func (r *DocumentRepository) Requeue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = '', updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.StatusPending), time.Now().UTC(), string(domain.StatusFailed))
	if err != nil {
		return fmt.Errorf("requeue document: %w", err)
	}
	return requireRow(res, "requeue document", id)
}

// CompleteIngestion applies the whole ingestion result in one transaction
// so a crash mid-write cannot leave chunks behind a non-ready document.
func (r *DocumentRepository) CompleteIngestion(ctx context.Context, doc *domain.Document, source *domain.Source, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingestion tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sources (id, document_id, run_id, kind, title, reliability_score, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (document_id) DO UPDATE
SET title = EXCLUDED.title, reliability_score = EXCLUDED.reliability_score, updated_at = EXCLUDED.updated_at
`,
		source.ID, source.DocumentID, nullable(source.RunID), string(source.Kind),
		source.Title, source.ReliabilityScore, source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}

	for _, chunk := range chunks {
		_, err = tx.ExecContext(ctx, `
INSERT INTO chunks (id, document_id, order_index, page_number, heading, body, citation_key, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
			chunk.ID, chunk.DocumentID, chunk.OrderIndex, chunk.PageNumber,
			chunk.Heading, chunk.Text, chunk.CitationKey, chunk.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.OrderIndex, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, page_count = $3, error_message = '', updated_at = $4
WHERE id = $1
`, doc.ID, string(domain.StatusReady), doc.PageCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set document ready: %w", err)
	}
	if err := requireRow(res, "set document ready", doc.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingestion tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CountChunks(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

func (r *DocumentRepository) ListSourcesByRun(ctx context.Context, runID string) ([]domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, run_id, kind, title, reliability_score, created_at, updated_at
FROM sources
WHERE run_id = $1
ORDER BY created_at ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sources by run: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var src domain.Source
		var srcRunID sql.NullString
		var kind string
		if err := rows.Scan(&src.ID, &src.DocumentID, &srcRunID, &kind, &src.Title, &src.ReliabilityScore, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.RunID = srcRunID.String
		src.Kind = domain.SourceKind(kind)
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

func (r *DocumentRepository) UpdateSourceReliability(ctx context.Context, sourceID string, score float64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE sources
SET reliability_score = $2, updated_at = $3
WHERE id = $1
`, sourceID, score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update source reliability: %w", err)
	}
	return requireRow(res, "update source reliability", sourceID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var runID sql.NullString
	var errMessage sql.NullString
	var kind, status string

	err := row.Scan(
		&doc.ID, &runID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Checksum,
		&kind, &status, &doc.PageCount, &errMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.RunID = runID.String
	doc.Error = errMessage.String
	doc.Kind = domain.SourceKind(kind)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func requireRow(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id %s", id))
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
