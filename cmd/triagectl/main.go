// Command triagectl is the operator-facing CLI for the triage listing and
// actions of §4.4: list quarantined assets, retry one back into the
// queue, or skip it to a terminal failed state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/engine/retry"
	"github.com/ssotoa70/mediasearch/pkg/config"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/pkg/repo"
	"github.com/ssotoa70/mediasearch/storage/postgres"
	"github.com/ssotoa70/mediasearch/storage/queue"
)

// dlqRow is a flat projection of a dlq_items row, scanned directly by
// pkg/repo.PostgresRepo rather than through domain.DLQItem (whose Job
// field is a nested JSONB snapshot, not a column repo's generic
// RowToStructByName scan can populate).
type dlqRow struct {
	DLQID     string    `db:"dlq_id"`
	AssetID   string    `db:"asset_id"`
	VersionID string    `db:"version_id"`
	ErrorKind string    `db:"error_kind"`
	ErrorMsg  string    `db:"error_message"`
	Retryable bool      `db:"retryable"`
	CreatedAt time.Time `db:"created_at"`
}

const (
	exitSuccess         = 0
	exitInvalidInput    = 64
	exitDependencyDown  = 69
	exitRetryableFail   = 75
	exitConfigError     = 78
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitInvalidInput
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: config: %v\n", err)
		return exitConfigError
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: connect database: %v\n", err)
		return exitDependencyDown
	}
	defer store.Close()

	switch args[0] {
	case "list":
		return cmdList(ctx, store)
	case "dlq":
		return cmdDLQ(ctx, store, args[1:])
	case "retry":
		return cmdRetry(ctx, store, cfg, args[1:])
	case "skip":
		return cmdSkip(ctx, store, args[1:])
	default:
		usage()
		return exitInvalidInput
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: triagectl <list|dlq|retry|skip> [asset-id] [--limit n]")
}

// cmdDLQ dumps the raw dlq_items table, newest first — a diagnostic view
// distinct from "list" (which joins through the current asset triage
// state). It exercises pkg/repo.PostgresRepo's generic List rather than
// the hand-written query ports.Database.ListQuarantined uses, since a
// flat single-table scan with no filter is exactly what that type is for.
func cmdDLQ(ctx context.Context, store *postgres.DB, args []string) int {
	fs := flag.NewFlagSet("dlq", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "max rows to show")
	fs.Parse(args)

	dlqRepo := repo.NewPostgresRepo[dlqRow, string](store.Pool(), "dlq_items", "dlq_id", nil, nil)
	rows, err := dlqRepo.List(ctx, repo.ListOpts{Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: dlq: %v\n", err)
		return exitDependencyDown
	}
	if len(rows) == 0 {
		fmt.Println("dead-letter queue is empty")
		return exitSuccess
	}
	for _, r := range rows {
		fmt.Printf("%s\tasset=%s\tversion=%s\tkind=%s\tretryable=%t\tcreated=%s\t%s\n",
			r.DLQID, r.AssetID, r.VersionID, r.ErrorKind, r.Retryable, r.CreatedAt.Format(time.RFC3339), r.ErrorMsg)
	}
	return exitSuccess
}

func cmdList(ctx context.Context, store *postgres.DB) int {
	assets, err := store.ListQuarantined(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: list: %v\n", err)
		return exitDependencyDown
	}
	if len(assets) == 0 {
		fmt.Println("no quarantined assets")
		return exitSuccess
	}
	for _, a := range assets {
		state := "UNKNOWN"
		if a.TriageState != nil {
			state = string(*a.TriageState)
		}
		action := ""
		if a.RecommendedAction != nil {
			action = *a.RecommendedAction
		}
		lastErr := ""
		if a.LastError != nil {
			lastErr = *a.LastError
		}
		fmt.Printf("%s\tbucket=%s\tkey=%s\ttriage=%s\taction=%s\terror=%s\n",
			a.AssetID, a.Bucket, a.ObjectKey, state, action, lastErr)
	}
	return exitSuccess
}

func cmdRetry(ctx context.Context, store *postgres.DB, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("retry", flag.ContinueOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		return exitInvalidInput
	}
	assetID := domain.AssetID(fs.Arg(0))

	q, err := newQueue(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: connect queue: %v\n", err)
		return exitDependencyDown
	}
	mgr := retry.NewManager(store, q, retry.Opts{
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxAttempts: cfg.Retry.MaxAttempts,
	})
	if err := mgr.Retry(ctx, assetID); err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: retry %s: %v\n", assetID, err)
		if domain.KindOf(err) == domain.KindNotFound {
			return exitInvalidInput
		}
		return exitRetryableFail
	}
	fmt.Printf("%s: re-enqueued\n", assetID)
	return exitSuccess
}

func cmdSkip(ctx context.Context, store *postgres.DB, args []string) int {
	fs := flag.NewFlagSet("skip", flag.ContinueOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		return exitInvalidInput
	}
	assetID := domain.AssetID(fs.Arg(0))

	mgr := retry.NewManager(store, nil, retry.DefaultOpts)
	if err := mgr.Skip(ctx, assetID); err != nil {
		fmt.Fprintf(os.Stderr, "triagectl: skip %s: %v\n", assetID, err)
		if domain.KindOf(err) == domain.KindNotFound {
			return exitInvalidInput
		}
		return exitRetryableFail
	}
	fmt.Printf("%s: marked failed\n", assetID)
	return exitSuccess
}

func newQueue(cfg *config.Config) (*queue.NATS, error) {
	if cfg.Queue.Backend != "nats" {
		return nil, fmt.Errorf("triagectl: retry requires a durable queue backend (queue.backend=nats), got %q", cfg.Queue.Backend)
	}
	return queue.NewNATS(cfg.Queue.NATSURL, queue.NATSOpts{
		StreamName: cfg.Queue.StreamName,
		Subject:    cfg.Queue.StreamName + ".jobs",
		Durable:    "mediasearch-worker",
	})
}
