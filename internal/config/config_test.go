package config

import (
	"testing"
	"time"
)

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("WORKER_POLL_PERIOD", "")
	t.Setenv("WORKER_CLAIM_BATCH", "")

	cfg := Load()
	if cfg.WorkerConcurrency != 3 {
		t.Fatalf("expected default concurrency 3, got %d", cfg.WorkerConcurrency)
	}
	if cfg.WorkerPollPeriod != 3*time.Second {
		t.Fatalf("expected default poll period 3s, got %v", cfg.WorkerPollPeriod)
	}
	if cfg.WorkerClaimBatch != 5 {
		t.Fatalf("expected default claim batch 5, got %d", cfg.WorkerClaimBatch)
	}
}

func TestLoadChunkerDefaults(t *testing.T) {
	t.Setenv("CHUNK_MAX_CHARS", "")
	t.Setenv("CHUNK_OVERLAP_RATIO", "")
	t.Setenv("CHUNK_MIN_CHARS", "")

	cfg := Load()
	if cfg.ChunkMaxChars != 1200 {
		t.Fatalf("expected default max chars 1200, got %d", cfg.ChunkMaxChars)
	}
	if cfg.ChunkOverlapRatio != 0.1 {
		t.Fatalf("expected default overlap ratio 0.1, got %v", cfg.ChunkOverlapRatio)
	}
	if cfg.ChunkMinChars != 250 {
		t.Fatalf("expected default min chars 250, got %d", cfg.ChunkMinChars)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("WORKER_POLL_PERIOD", "500ms")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("CHUNK_OVERLAP_RATIO", "0.25")

	cfg := Load()
	if cfg.WorkerPollPeriod != 500*time.Millisecond {
		t.Fatalf("expected poll period override, got %v", cfg.WorkerPollPeriod)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Fatalf("expected concurrency 8, got %d", cfg.WorkerConcurrency)
	}
	if cfg.ChunkOverlapRatio != 0.25 {
		t.Fatalf("expected overlap ratio 0.25, got %v", cfg.ChunkOverlapRatio)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("WORKER_POLL_PERIOD", "soon")
	t.Setenv("WORKER_CLAIM_BATCH", "many")

	cfg := Load()
	if cfg.WorkerPollPeriod != 3*time.Second {
		t.Fatalf("malformed duration should fall back, got %v", cfg.WorkerPollPeriod)
	}
	if cfg.WorkerClaimBatch != 5 {
		t.Fatalf("malformed int should fall back, got %d", cfg.WorkerClaimBatch)
	}
}
