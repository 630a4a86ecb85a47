// Command ingestd watches configured object-store buckets for media
// uploads and removals and runs them through the ingest controller of
// §4.1, enqueueing transcription jobs for cmd/worker to pick up.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/ingest"
	"github.com/ssotoa70/mediasearch/pkg/config"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/ports"
	"github.com/ssotoa70/mediasearch/storage/objectstore"
	"github.com/ssotoa70/mediasearch/storage/postgres"
	"github.com/ssotoa70/mediasearch/storage/queue"
)

const exitConfigError = 78

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		println("ingestd: config: " + err.Error())
		return exitConfigError
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.For("ingestd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Error().Err(err).Msg("ingestd: connect database")
		return exitConfigError
	}
	defer store.Close()

	objStore, err := objectstore.NewLocal(cfg.ObjectStore.RootDir)
	if err != nil {
		log.Error().Err(err).Msg("ingestd: open object store")
		return exitConfigError
	}

	q, err := newQueue(cfg)
	if err != nil {
		log.Error().Err(err).Msg("ingestd: connect queue")
		return exitConfigError
	}

	controller, err := ingest.New(ingest.Deps{
		Store:         store,
		ObjectStore:   objStore,
		Queue:         q,
		DefaultEngine: cfg.ASR.DefaultEngine,
		Logger:        log,
	})
	if err != nil {
		log.Error().Err(err).Msg("ingestd: invalid engine policy")
		return exitConfigError
	}

	for _, bucket := range cfg.ObjectStore.Buckets {
		bucket := bucket
		go func() {
			if err := objStore.Subscribe(ctx, bucket, func(ctx context.Context, ev ports.ObjectEvent) {
				handleEvent(ctx, controller, ev, log)
			}); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("bucket", bucket).Msg("ingestd: subscription ended")
			}
		}()
	}

	log.Info().Strs("buckets", cfg.ObjectStore.Buckets).Msg("ingestd: watching for uploads")
	<-ctx.Done()
	log.Info().Msg("ingestd: shutting down")
	return 0
}

// handleEvent dispatches a single object-store notification to the ingest
// controller's matching contract.
func handleEvent(ctx context.Context, controller *ingest.Controller, ev ports.ObjectEvent, log zerolog.Logger) {
	var err error
	switch ev.EventType {
	case ports.ObjectRemoved:
		err = controller.ObjectRemoved(ctx, ev)
	default:
		err = controller.ObjectCreated(ctx, ev)
	}
	if err != nil {
		log.Error().Err(err).Str("bucket", ev.Bucket).Str("object_key", ev.ObjectKey).Msg("ingestd: event handling failed")
	}
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
