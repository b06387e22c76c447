package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/dmakhnev/deep-research-core/internal/chunking"
	"github.com/dmakhnev/deep-research-core/internal/core/domain"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/repository/inmemory"
)

func TestVerifyRunRecomputesReliability(t *testing.T) {
	store := inmemory.NewStore()
	storage := newMemStorage()
	doc := uploadFixture(t, store, storage, domain.KindDocument, "bytes")

	extractor := &fakeExtractor{pages: []domain.PageSlice{
		{PageNumber: 1, Text: strings.Repeat("one ", 100)},
		{PageNumber: 2, Text: strings.Repeat("two ", 100)},
	}}
	proc := NewProcessDocument(store, storage, extractor, fakeTranscriptParser{}, store, nil, chunking.Options{
		MaxCharsPerChunk: 150,
		OverlapRatio:     0.1,
		MinChunkChars:    40,
	}, discardLogger())
	if err := proc.ProcessByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	verifier := NewVerifySources(store, store, discardLogger())
	if err := verifier.VerifyRun(context.Background(), "run-1"); err != nil {
		t.Fatalf("VerifyRun() error = %v", err)
	}

	count, err := store.CountChunks(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	sources, err := store.ListSourcesByRun(context.Background(), "run-1")
	if err != nil || len(sources) != 1 {
		t.Fatalf("ListSourcesByRun() = %+v, %v", sources, err)
	}
	if want := domain.ReliabilityFromChunkCount(count); sources[0].ReliabilityScore != want {
		t.Fatalf("reliability = %v, want %v", sources[0].ReliabilityScore, want)
	}

	entries, err := store.ListMethodology(context.Background(), "run-1", true)
	if err != nil || len(entries) == 0 {
		t.Fatalf("verify must leave methodology entries, got %d (%v)", len(entries), err)
	}
	payload, ok := entries[len(entries)-1].Details.(domain.VerifyPayload)
	if !ok {
		t.Fatalf("details type %T", entries[len(entries)-1].Details)
	}
	if payload.ChunkCount != count {
		t.Fatalf("payload chunk count = %d, want %d", payload.ChunkCount, count)
	}
}

func TestVerifyRunWithNoSourcesIsNoOp(t *testing.T) {
	store := inmemory.NewStore()
	verifier := NewVerifySources(store, store, discardLogger())
	if err := verifier.VerifyRun(context.Background(), "run-absent"); err != nil {
		t.Fatalf("VerifyRun() error = %v", err)
	}
}
