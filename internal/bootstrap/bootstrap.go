// Package bootstrap assembles the application graph from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dmakhnev/deep-research-core/internal/chunking"
	"github.com/dmakhnev/deep-research-core/internal/config"
	"github.com/dmakhnev/deep-research-core/internal/core/ports"
	"github.com/dmakhnev/deep-research-core/internal/core/usecase"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/extractor/pdfpage"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/extractor/transcript"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/llm/openai"
	natsqueue "github.com/dmakhnev/deep-research-core/internal/infrastructure/queue/nats"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/repository/postgres"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/resilience"
	"github.com/dmakhnev/deep-research-core/internal/infrastructure/storage/localfs"
	"github.com/dmakhnev/deep-research-core/internal/observability/metrics"
	"github.com/dmakhnev/deep-research-core/internal/worker"
)

// App holds the wired application. Close releases external connections.
type App struct {
	Upload       *usecase.UploadDocument
	Processor    *usecase.ProcessDocument
	Orchestrator *usecase.ResearchOrchestrator
	Verifier     *usecase.VerifySources
	Poller       *worker.Poller
	Metrics      *metrics.WorkerMetrics

	db          *sql.DB
	broadcaster *natsqueue.Broadcaster
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	runs := postgres.NewResearchRepository(db)
	audit := postgres.NewEventRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	var broadcaster *natsqueue.Broadcaster
	var progress ports.ProgressBroadcaster
	if cfg.NATSURL != "" {
		broadcaster, err = natsqueue.New(cfg.NATSURL, cfg.NATSProgressSubject)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		progress = broadcaster
	}

	reasoner := openai.New(openai.Config{
		APIKey:            cfg.OpenAIAPIKey,
		Model:             cfg.OpenAIModel,
		ResearchModel:     cfg.OpenAIResearchModel,
		RequestsPerMinute: cfg.OpenAIRequestsPerMin,
	}, resilience.NewExecutor(resilience.DefaultConfig()))

	chunkOpts := chunking.Options{
		MaxCharsPerChunk: cfg.ChunkMaxChars,
		OverlapRatio:     cfg.ChunkOverlapRatio,
		MinChunkChars:    cfg.ChunkMinChars,
	}

	processor := usecase.NewProcessDocument(
		docs, storage, pdfpage.New(), transcript.New(), audit, progress, chunkOpts, logger,
	)
	workerMetrics := metrics.NewWorkerMetrics("ingestion-worker")

	return &App{
		Upload:       usecase.NewUploadDocument(storage, docs, logger),
		Processor:    processor,
		Orchestrator: usecase.NewResearchOrchestrator(runs, reasoner, audit, progress, workerMetrics, openai.ResearchTools, logger),
		Verifier:     usecase.NewVerifySources(docs, audit, logger),
		Poller: worker.NewPoller(docs, processor, workerMetrics, worker.Config{
			PollPeriod:  cfg.WorkerPollPeriod,
			ClaimBatch:  cfg.WorkerClaimBatch,
			Concurrency: cfg.WorkerConcurrency,
		}, logger),
		Metrics:     workerMetrics,
		db:          db,
		broadcaster: broadcaster,
	}, nil
}

func (a *App) Close() {
	if a.broadcaster != nil {
		a.broadcaster.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
