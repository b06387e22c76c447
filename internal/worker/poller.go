// Package worker polls for pending documents, claims them and dispatches
// each claimed document to the ingestion pipeline on a bounded pool.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmakhnev/deep-research-core/internal/core/ports"
	"github.com/dmakhnev/deep-research-core/internal/observability/metrics"
)

const serviceName = "ingestion-worker"

type Config struct {
	PollPeriod  time.Duration
	ClaimBatch  int
	Concurrency int
}

func (c Config) normalize() Config {
	if c.PollPeriod <= 0 {
		c.PollPeriod = 3 * time.Second
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	return c
}

// Poller discovers pending documents by polling. The claim is what grants
// processing rights; listing is only a hint, so overlapping pollers stay
// correct and merely waste a few claim attempts.
type Poller struct {
	docs      ports.DocumentRepository
	processor ports.DocumentProcessor
	metrics   *metrics.WorkerMetrics
	cfg       Config
	logger    *slog.Logger
}

func NewPoller(
	docs ports.DocumentRepository,
	processor ports.DocumentProcessor,
	m *metrics.WorkerMetrics,
	cfg Config,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		docs:      docs,
		processor: processor,
		metrics:   m,
		cfg:       cfg.normalize(),
		logger:    logger.With(slog.String("component", "poller")),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight documents to
// drain before returning.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollPeriod)
	defer ticker.Stop()

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	p.logger.Info("poller started",
		slog.Duration("period", p.cfg.PollPeriod),
		slog.Int("batch", p.cfg.ClaimBatch),
		slog.Int("concurrency", p.cfg.Concurrency),
	)

	for {
		p.tick(ctx, sem, &wg)
		select {
		case <-ctx.Done():
			wg.Wait()
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	if ctx.Err() != nil {
		return
	}
	defer p.metrics.PollTick()

	pending, err := p.docs.ListPending(ctx, p.cfg.ClaimBatch)
	if err != nil {
		p.logger.Error("list pending documents", slog.Any("error", err))
		return
	}

	for _, doc := range pending {
		claimed, err := p.docs.Claim(ctx, doc.ID)
		if err != nil {
			p.logger.Error("claim document", slog.String("document_id", doc.ID), slog.Any("error", err))
			continue
		}
		if !claimed {
			p.metrics.ClaimMiss()
			continue
		}

		// A claimed document is always dispatched, even mid-shutdown:
		// abandoning it would strand the row in processing state.
		sem <- struct{}{}
		wg.Add(1)
		go func(documentID string) {
			defer wg.Done()
			defer func() { <-sem }()
			p.process(ctx, documentID)
		}(doc.ID)
	}
}

func (p *Poller) process(ctx context.Context, documentID string) {
	p.metrics.StartDocument()
	started := time.Now()

	err := p.processor.ProcessByID(ctx, documentID)
	p.metrics.FinishDocument(serviceName, time.Since(started), err)
	if err != nil {
		p.logger.Error("process document", slog.String("document_id", documentID), slog.Any("error", err))
	}
}
