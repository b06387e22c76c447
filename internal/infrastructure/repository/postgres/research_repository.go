package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

type ResearchRepository struct {
	db *sql.DB
}

func NewResearchRepository(db *sql.DB) *ResearchRepository {
	return &ResearchRepository{db: db}
}

func (r *ResearchRepository) CreateRun(ctx context.Context, run *domain.ResearchRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO research_runs (id, title, brief, rewritten_prompt, status, phase, background_job_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		run.ID, run.Title, run.Brief, nullable(run.RewrittenPrompt),
		string(run.Status), string(run.Phase), nullable(run.BackgroundJobID),
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert research run: %w", err)
	}
	return nil
}

func (r *ResearchRepository) GetRun(ctx context.Context, id string) (*domain.ResearchRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, brief, rewritten_prompt, status, phase, background_job_id, created_at, updated_at
FROM research_runs
WHERE id = $1
`, id)

	var run domain.ResearchRun
	var rewritten, jobID sql.NullString
	var status, phase string
	err := row.Scan(&run.ID, &run.Title, &run.Brief, &rewritten, &status, &phase, &jobID, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "fetch research run", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan research run: %w", err)
	}
	run.RewrittenPrompt = rewritten.String
	run.BackgroundJobID = jobID.String
	run.Status = domain.RunStatus(status)
	run.Phase = domain.RunPhase(phase)
	return &run, nil
}

func (r *ResearchRepository) UpdateRun(ctx context.Context, run *domain.ResearchRun) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE research_runs
SET rewritten_prompt = $2, status = $3, phase = $4, background_job_id = $5, updated_at = $6
WHERE id = $1
`,
		run.ID, nullable(run.RewrittenPrompt), string(run.Status), string(run.Phase),
		nullable(run.BackgroundJobID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update research run: %w", err)
	}
	return requireRow(res, "update research run", run.ID)
}

func (r *ResearchRepository) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation_turns (id, run_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5)
`, turn.ID, turn.RunID, string(turn.Role), turn.Content, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation turn: %w", err)
	}
	return nil
}

func (r *ResearchRepository) ListTurns(ctx context.Context, runID string, role domain.TurnRole) ([]domain.ConversationTurn, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, run_id, role, content, created_at
FROM conversation_turns
WHERE run_id = $1 AND ($2 = '' OR role = $2)
ORDER BY created_at ASC
`, runID, string(role))
	if err != nil {
		return nil, fmt.Errorf("query conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var turn domain.ConversationTurn
		var turnRole string
		if err := rows.Scan(&turn.ID, &turn.RunID, &turnRole, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation turn: %w", err)
		}
		turn.Role = domain.TurnRole(turnRole)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation turns: %w", err)
	}
	return turns, nil
}

func (r *ResearchRepository) CreateSectionIfAbsent(ctx context.Context, section *domain.ReportSection) (bool, error) {
	citations, err := json.Marshal(section.Citations)
	if err != nil {
		return false, fmt.Errorf("marshal citations: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO report_sections (id, run_id, section_type, content, citations, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (run_id, section_type) DO NOTHING
`, section.ID, section.RunID, string(section.SectionType), section.Content, citations, section.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert report section: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("report section rows affected: %w", err)
	}
	return affected == 1, nil
}
