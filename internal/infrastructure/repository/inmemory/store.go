// Package inmemory backs the repository ports with process-local maps. It
// exists for tests and for running the worker without Postgres; the claim
// semantics mirror the SQL compare-and-set exactly.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

type Store struct {
	mu sync.Mutex

	documents map[string]*domain.Document
	sources   map[string]*domain.Source
	chunks    map[string][]domain.Chunk

	runs     map[string]*domain.ResearchRun
	turns    map[string][]domain.ConversationTurn
	sections map[string]map[domain.SectionType]*domain.ReportSection

	progress    map[string][]domain.ProgressEvent
	methodology map[string][]domain.MethodologyEntry
}

func NewStore() *Store {
	return &Store{
		documents:   make(map[string]*domain.Document),
		sources:     make(map[string]*domain.Source),
		chunks:      make(map[string][]domain.Chunk),
		runs:        make(map[string]*domain.ResearchRun),
		turns:       make(map[string][]domain.ConversationTurn),
		sections:    make(map[string]map[domain.SectionType]*domain.ReportSection),
		progress:    make(map[string][]domain.ProgressEvent),
		methodology: make(map[string][]domain.MethodologyEntry),
	}
}

func (s *Store) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id %s", doc.ID))
	}
	copied := *doc
	s.documents[doc.ID] = &copied
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch document", fmt.Errorf("id %s", id))
	}
	copied := *doc
	return &copied, nil
}

func (s *Store) ListPending(_ context.Context, limit int) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.Document
	for _, doc := range s.documents {
		if doc.Status == domain.StatusPending {
			pending = append(pending, *doc)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok || doc.Status != domain.StatusPending {
		return false, nil
	}
	doc.Status = domain.StatusProcessing
	doc.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) MarkFailed(_ context.Context, id, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "mark document failed", fmt.Errorf("id %s", id))
	}
	doc.Status = domain.StatusFailed
	doc.Error = errMessage
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Requeue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok || doc.Status != domain.StatusFailed {
		return domain.WrapError(domain.ErrNotFound, "requeue document", fmt.Errorf("id %s", id))
	}
	doc.Status = domain.StatusPending
	doc.Error = ""
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CompleteIngestion(_ context.Context, doc *domain.Document, source *domain.Source, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.documents[doc.ID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "set document ready", fmt.Errorf("id %s", doc.ID))
	}
	copiedSource := *source
	s.sources[source.ID] = &copiedSource
	s.chunks[doc.ID] = append([]domain.Chunk(nil), chunks...)
	stored.Status = domain.StatusReady
	stored.PageCount = doc.PageCount
	stored.Error = ""
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CountChunks(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks[documentID]), nil
}

func (s *Store) ListSourcesByRun(_ context.Context, runID string) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sources []domain.Source
	for _, src := range s.sources {
		if src.RunID == runID {
			sources = append(sources, *src)
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].CreatedAt.Before(sources[j].CreatedAt)
	})
	return sources, nil
}

func (s *Store) UpdateSourceReliability(_ context.Context, sourceID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update source reliability", fmt.Errorf("id %s", sourceID))
	}
	src.ReliabilityScore = score
	src.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateRun(_ context.Context, run *domain.ResearchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return domain.WrapError(domain.ErrInvalidInput, "create research run", fmt.Errorf("duplicate id %s", run.ID))
	}
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*domain.ResearchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch research run", fmt.Errorf("id %s", id))
	}
	copied := *run
	return &copied, nil
}

func (s *Store) UpdateRun(_ context.Context, run *domain.ResearchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update research run", fmt.Errorf("id %s", run.ID))
	}
	stored.RewrittenPrompt = run.RewrittenPrompt
	stored.Status = run.Status
	stored.Phase = run.Phase
	stored.BackgroundJobID = run.BackgroundJobID
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AppendTurn(_ context.Context, turn *domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.RunID] = append(s.turns[turn.RunID], *turn)
	return nil
}

func (s *Store) ListTurns(_ context.Context, runID string, role domain.TurnRole) ([]domain.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var turns []domain.ConversationTurn
	for _, turn := range s.turns[runID] {
		if role == "" || turn.Role == role {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}

func (s *Store) CreateSectionIfAbsent(_ context.Context, section *domain.ReportSection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType, ok := s.sections[section.RunID]
	if !ok {
		byType = make(map[domain.SectionType]*domain.ReportSection)
		s.sections[section.RunID] = byType
	}
	if _, exists := byType[section.SectionType]; exists {
		return false, nil
	}
	copied := *section
	byType[section.SectionType] = &copied
	return true, nil
}

func (s *Store) AppendProgress(_ context.Context, event *domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[event.RunID] = append(s.progress[event.RunID], *event)
	return nil
}

func (s *Store) ListProgress(_ context.Context, runID string, ascending bool) ([]domain.ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append([]domain.ProgressEvent(nil), s.progress[runID]...)
	if !ascending {
		reverse(events)
	}
	return events, nil
}

func (s *Store) AppendMethodology(_ context.Context, entry *domain.MethodologyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methodology[entry.RunID] = append(s.methodology[entry.RunID], *entry)
	return nil
}

func (s *Store) ListMethodology(_ context.Context, runID string, ascending bool) ([]domain.MethodologyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append([]domain.MethodologyEntry(nil), s.methodology[runID]...)
	if !ascending {
		reverse(entries)
	}
	return entries, nil
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
