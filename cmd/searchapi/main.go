// Command searchapi serves the HTTP search surface of §6: keyword,
// semantic, and hybrid queries over published transcript segments.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ssotoa70/mediasearch/embedder"
	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/engine/search"
	"github.com/ssotoa70/mediasearch/pkg/config"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/pkg/metrics"
	"github.com/ssotoa70/mediasearch/pkg/mid"
	"github.com/ssotoa70/mediasearch/pkg/resilience"
	"github.com/ssotoa70/mediasearch/ports"
	"github.com/ssotoa70/mediasearch/storage/postgres"
)

const exitConfigError = 78

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		println("searchapi: config: " + err.Error())
		return exitConfigError
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.For("searchapi")
	slogger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Error().Err(err).Msg("searchapi: connect database")
		return exitConfigError
	}
	defer store.Close()

	embedBreaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	embed := embedder.NewOllama(embedder.OllamaOpts{
		BaseURL:    cfg.Embedder.Endpoint,
		Model:      cfg.Embedder.ModelName,
		Dimension:  cfg.Embedder.Dimension,
		BatchLimit: cfg.Embedder.BatchSize,
	}, embedBreaker)

	h := &handler{searcher: search.New(store), embedder: embed}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mid.Logger(slogger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Get("/", h.search)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.Server.Port).Msg("searchapi: listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("searchapi: serve failed")
		return exitConfigError
	}
	log.Info().Msg("searchapi: shut down")
	return 0
}

type handler struct {
	searcher *search.Searcher
	embedder *embedder.Ollama
}

type searchResultDTO struct {
	AssetID   string  `json:"asset_id"`
	VersionID string  `json:"version_id"`
	SegmentID string  `json:"segment_id"`
	StartMs   int64   `json:"start_ms"`
	EndMs     int64   `json:"end_ms"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	MatchType string  `json:"match_type"`
	Speaker   *string `json:"speaker,omitempty"`
	Asset     struct {
		Bucket    string `json:"bucket"`
		ObjectKey string `json:"object_key"`
	} `json:"asset"`
}

type searchResponseDTO struct {
	Query   string            `json:"query"`
	Type    string            `json:"type"`
	Total   int               `json:"total"`
	Results []searchResultDTO `json:"results"`
}

// search implements §6's search request/response contract: q is
// required, type defaults to keyword, and a limit/offset outside its
// documented bounds is rejected by engine/search with an InvalidInput
// error, answered here with 400.
func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := params.Get("q")
	mode := params.Get("type")
	if mode == "" {
		mode = "keyword"
	}
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	query := ports.SearchQuery{
		Text:    q,
		Bucket:  params.Get("bucket"),
		Speaker: params.Get("speaker"),
		Limit:   atoiDefault(params.Get("limit"), search.DefaultLimit),
		Offset:  atoiDefault(params.Get("offset"), 0),
	}

	var hits []ports.SearchHit
	var err error
	switch mode {
	case "semantic":
		query.Vector, err = h.embedder.Embed(r.Context(), q)
		if err != nil {
			writeError(w, http.StatusBadGateway, "embedding backend unavailable")
			return
		}
		hits, err = h.searcher.Semantic(r.Context(), query)
	case "hybrid":
		query.Vector, err = h.embedder.Embed(r.Context(), q)
		if err != nil {
			writeError(w, http.StatusBadGateway, "embedding backend unavailable")
			return
		}
		hits, err = h.searcher.Hybrid(r.Context(), query, search.Weights{Keyword: 0.5, Semantic: 0.5})
	default:
		mode = "keyword"
		hits, err = h.searcher.Keyword(r.Context(), query)
	}

	if err != nil {
		if domain.KindOf(err) == domain.KindInvalidInput {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := searchResponseDTO{Query: q, Type: mode, Total: len(hits), Results: make([]searchResultDTO, len(hits))}
	for i, hit := range hits {
		dto := searchResultDTO{
			AssetID:   string(hit.AssetID),
			VersionID: string(hit.VersionID),
			SegmentID: string(hit.SegmentID),
			StartMs:   hit.StartMs,
			EndMs:     hit.EndMs,
			Snippet:   hit.Snippet,
			Score:     hit.Score,
			MatchType: hit.MatchType,
			Speaker:   hit.Speaker,
		}
		dto.Asset.Bucket = hit.Bucket
		dto.Asset.ObjectKey = hit.ObjectKey
		resp.Results[i] = dto
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
