// Command worker runs the orchestrator's job consumer: it pulls queued
// transcription jobs, drives them through ASR, chunking, embedding, and
// publish (§4.2), and hands failures to the retry/quarantine manager.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ssotoa70/mediasearch/asrengine"
	"github.com/ssotoa70/mediasearch/embedder"
	"github.com/ssotoa70/mediasearch/engine/orchestrator"
	"github.com/ssotoa70/mediasearch/engine/publisher"
	"github.com/ssotoa70/mediasearch/engine/retry"
	"github.com/ssotoa70/mediasearch/pkg/config"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/pkg/resilience"
	"github.com/ssotoa70/mediasearch/ports"
	"github.com/ssotoa70/mediasearch/storage/objectstore"
	"github.com/ssotoa70/mediasearch/storage/postgres"
	"github.com/ssotoa70/mediasearch/storage/queue"
	"github.com/ssotoa70/mediasearch/storage/vectorindex"
)

const exitConfigError = 78

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		println("worker: config: " + err.Error())
		return exitConfigError
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.For("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Error().Err(err).Msg("worker: connect database")
		return exitConfigError
	}
	defer store.Close()

	objStore, err := objectstore.NewLocal(cfg.ObjectStore.RootDir)
	if err != nil {
		log.Error().Err(err).Msg("worker: open object store")
		return exitConfigError
	}

	q, err := newQueue(cfg)
	if err != nil {
		log.Error().Err(err).Msg("worker: connect queue")
		return exitConfigError
	}

	asrBreaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	embedBreaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)

	asr := asrengine.NewRemoteEngine(cfg.ASR.Endpoint, asrBreaker)
	embed := embedder.NewOllama(embedder.OllamaOpts{
		BaseURL:    cfg.Embedder.Endpoint,
		Model:      cfg.Embedder.ModelName,
		Dimension:  cfg.Embedder.Dimension,
		BatchLimit: cfg.Embedder.BatchSize,
	}, embedBreaker)

	var index vectorindex.Index
	if cfg.VectorIndex.Enabled {
		qdrant, err := vectorindex.New(cfg.VectorIndex.Endpoint, cfg.VectorIndex.Collection)
		if err != nil {
			log.Error().Err(err).Msg("worker: connect vector index")
			return exitConfigError
		}
		if err := qdrant.EnsureCollection(ctx, cfg.Embedder.Dimension); err != nil {
			log.Error().Err(err).Msg("worker: ensure vector index collection")
			return exitConfigError
		}
		index = qdrant
		log.Info().Str("collection", cfg.VectorIndex.Collection).Msg("worker: vector index accelerator enabled")
	}

	retryMgr := retry.NewManager(store, q, retry.Opts{
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxAttempts: cfg.Retry.MaxAttempts,
	})

	orch := orchestrator.New(orchestrator.Deps{
		Store:           store,
		ObjectStore:     objStore,
		ASR:             asr,
		Embedder:        embed,
		Queue:           q,
		Publisher:       publisher.New(store),
		RetryMgr:        retryMgr,
		ASRBreaker:      asrBreaker,
		EmbedderBreaker: embedBreaker,
		SemanticEnabled: cfg.VectorIndex.Enabled || cfg.Embedder.Endpoint != "",
		VectorIndex:     index,
		Concurrency:     cfg.Queue.Concurrency,
		JobTimeout:      cfg.Queue.JobTimeout,
		Logger:          log,
	})

	log.Info().Int("concurrency", cfg.Queue.Concurrency).Msg("worker: consuming jobs")
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("worker: consumer exited")
		return exitConfigError
	}
	log.Info().Msg("worker: shutting down")
	return 0
}

func newQueue(cfg *config.Config) (ports.Queue, error) {
	switch cfg.Queue.Backend {
	case "nats":
		return queue.NewNATS(cfg.Queue.NATSURL, queue.NATSOpts{
			StreamName: cfg.Queue.StreamName,
			Subject:    cfg.Queue.StreamName + ".jobs",
			Durable:    "mediasearch-worker",
		})
	default:
		return queue.NewMemory(256), nil
	}
}
