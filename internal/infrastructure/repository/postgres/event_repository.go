package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

// EventRepository is the append-only progress/methodology trail. There is
// deliberately no update or delete here; corrections are new entries.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) AppendProgress(ctx context.Context, event *domain.ProgressEvent) error {
	payload, err := domain.EncodePayload(event.Payload)
	if err != nil {
		return fmt.Errorf("encode progress payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO progress_events (id, run_id, document_id, phase, message, progress, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		event.ID, nullable(event.RunID), nullable(event.DocumentID),
		string(event.Phase), event.Message, event.Progress, payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert progress event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListProgress(ctx context.Context, runID string, ascending bool) ([]domain.ProgressEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, run_id, document_id, phase, message, progress, payload, created_at
FROM progress_events
WHERE run_id = $1
ORDER BY created_at `+direction(ascending), runID)
	if err != nil {
		return nil, fmt.Errorf("query progress events: %w", err)
	}
	defer rows.Close()

	var events []domain.ProgressEvent
	for rows.Next() {
		var event domain.ProgressEvent
		var eventRunID, documentID sql.NullString
		var phase string
		var payload []byte
		if err := rows.Scan(&event.ID, &eventRunID, &documentID, &phase, &event.Message, &event.Progress, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan progress event: %w", err)
		}
		event.RunID = eventRunID.String
		event.DocumentID = documentID.String
		event.Phase = domain.ProgressPhase(phase)
		if event.Payload, err = domain.DecodePayload(payload); err != nil {
			return nil, fmt.Errorf("decode progress payload: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) AppendMethodology(ctx context.Context, entry *domain.MethodologyEntry) error {
	details, err := domain.EncodePayload(entry.Details)
	if err != nil {
		return fmt.Errorf("encode methodology details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO methodology_entries (id, run_id, action, details, created_at)
VALUES ($1,$2,$3,$4,$5)
`, entry.ID, entry.RunID, entry.Action, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert methodology entry: %w", err)
	}
	return nil
}

func (r *EventRepository) ListMethodology(ctx context.Context, runID string, ascending bool) ([]domain.MethodologyEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, run_id, action, details, created_at
FROM methodology_entries
WHERE run_id = $1
ORDER BY created_at `+direction(ascending), runID)
	if err != nil {
		return nil, fmt.Errorf("query methodology entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.MethodologyEntry
	for rows.Next() {
		var entry domain.MethodologyEntry
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Action, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan methodology entry: %w", err)
		}
		var err error
		if entry.Details, err = domain.DecodePayload(details); err != nil {
			return nil, fmt.Errorf("decode methodology details: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate methodology entries: %w", err)
	}
	return entries, nil
}

func direction(ascending bool) string {
	if ascending {
		return "ASC"
	}
	return "DESC"
}
