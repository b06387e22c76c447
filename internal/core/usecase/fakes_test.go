package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStorage keeps uploaded bytes in a map, keyed by the path it returned.
type memStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
	next  int
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: make(map[string][]byte)}
}

func (s *memStorage) Persist(_ context.Context, originalName string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := fmt.Sprintf("%d_%s", s.next, originalName)
	s.next++
	s.blobs[path] = raw
	return path, nil
}

func (s *memStorage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.blobs[path]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", path)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fakeExtractor struct {
	pages []domain.PageSlice
	err   error
}

func (f *fakeExtractor) ExtractPages(_ context.Context, _ []byte) ([]domain.PageSlice, error) {
	return f.pages, f.err
}

type fakeReasoner struct {
	clarifyFn func(domain.ClarifyRequest) (string, error)
	rewriteFn func(domain.RewriteRequest) (string, error)
	launchFn  func(domain.ResearchRequest) (string, error)
	pollFn    func(jobID string) (*domain.BackgroundResult, error)
}

func (f *fakeReasoner) Clarify(_ context.Context, req domain.ClarifyRequest) (string, error) {
	return f.clarifyFn(req)
}

func (f *fakeReasoner) Rewrite(_ context.Context, req domain.RewriteRequest) (string, error) {
	return f.rewriteFn(req)
}

func (f *fakeReasoner) LaunchResearch(_ context.Context, req domain.ResearchRequest) (string, error) {
	return f.launchFn(req)
}

func (f *fakeReasoner) PollResearch(_ context.Context, jobID string) (*domain.BackgroundResult, error) {
	return f.pollFn(jobID)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, event *domain.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *event)
	return nil
}
