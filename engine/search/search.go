// Package search implements the query layer of §4.5: keyword, semantic,
// and hybrid search over segments, all sharing the two hard visibility
// filters (ACTIVE + current-version-id) that the storage backend is
// required to enforce on every query it runs.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/metrics"
	"github.com/ssotoa70/mediasearch/ports"
)

// DefaultLimit and MaxLimit are the pagination defaults/ceiling of §4.5.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Weights carries the caller-supplied Wk/Ws hybrid fusion weights.
type Weights struct {
	Keyword  float64 `validate:"gte=0"`
	Semantic float64 `validate:"gte=0"`
}

// Searcher runs the three query modes against a ports.Database.
type Searcher struct {
	Store    ports.Database
	validate *validator.Validate
}

// New constructs a Searcher.
func New(store ports.Database) *Searcher {
	return &Searcher{Store: store, validate: validator.New()}
}

func normalizeQuery(q *ports.SearchQuery) error {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return domain.ValidateSearchLimit(q.Limit, q.Offset)
}

// Keyword runs §4.5's keyword search. The storage backend returns hits
// with a backend-specific raw text-match score; Keyword normalizes those
// scores to [0, 1] by scaling against the top hit in the result set, so a
// single match is never reported with the same score as an exact
// multi-term match (the behavior this spec explicitly does not carry
// over from a flat "any match scores 1.0" implementation).
func (s *Searcher) Keyword(ctx context.Context, q ports.SearchQuery) ([]ports.SearchHit, error) {
	if q.Text == "" {
		return nil, domain.NewError("search.Keyword", domain.KindInvalidInput, domain.ErrEmptyQuery)
	}
	if err := normalizeQuery(&q); err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := s.Store.SearchKeyword(ctx, q)
	recordSearch("keyword", start, err)
	if err != nil {
		return nil, fmt.Errorf("search: keyword: %w", err)
	}
	normalizeKeywordScores(hits)
	for i := range hits {
		hits[i].MatchType = "keyword"
	}
	return hits, nil
}

// recordSearch observes a single backend query's duration and outcome.
// Hybrid records nothing under a mode of its own; each of its
// Keyword/Semantic sub-calls is recorded under that sub-call's mode.
func recordSearch(mode string, start time.Time, err error) {
	metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode, outcome).Inc()
}

// normalizeKeywordScores rescales raw backend scores into [0, 1] by
// dividing by the maximum score present, preserving rank order.
func normalizeKeywordScores(hits []ports.SearchHit) {
	if len(hits) == 0 {
		return
	}
	max := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		return
	}
	for i := range hits {
		hits[i].Score = hits[i].Score / max
	}
}

// Semantic runs §4.5's semantic search. A query without a vector is an
// error (§4.5 requires a vector be present; there is no query-text fallback).
func (s *Searcher) Semantic(ctx context.Context, q ports.SearchQuery) ([]ports.SearchHit, error) {
	if len(q.Vector) == 0 {
		return nil, domain.NewError("search.Semantic", domain.KindInvalidInput, domain.ErrMissingVector)
	}
	if err := normalizeQuery(&q); err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := s.Store.SearchSemantic(ctx, q)
	recordSearch("semantic", start, err)
	if err != nil {
		return nil, fmt.Errorf("search: semantic: %w", err)
	}
	for i := range hits {
		hits[i].MatchType = "semantic"
	}
	return hits, nil
}

// fused accumulates both raw scores for one segment before the final
// weighted combination and tie-break are computed.
type fused struct {
	hit       ports.SearchHit
	rawK      float64
	rawS      float64
	hasK      bool
	hasS      bool
}

// Hybrid runs both keyword and semantic search and fuses per segment-id
// per §4.5: combined = Wk*K + Ws*S, with a segment present in only one
// source contributing only that term. Results are sorted by combined
// score descending, tie-broken by raw semantic score, then raw keyword
// score, then segment-id lexicographically.
func (s *Searcher) Hybrid(ctx context.Context, q ports.SearchQuery, w Weights) ([]ports.SearchHit, error) {
	if err := s.validate.Struct(w); err != nil {
		return nil, fmt.Errorf("search: invalid weights: %w", err)
	}
	if q.Text == "" && len(q.Vector) == 0 {
		return nil, domain.NewError("search.Hybrid", domain.KindInvalidInput, domain.ErrEmptyQuery)
	}
	if err := normalizeQuery(&q); err != nil {
		return nil, err
	}

	limit := q.Limit
	offset := q.Offset
	unpaginated := q
	unpaginated.Limit = MaxLimit
	unpaginated.Offset = 0

	var keywordHits, semanticHits []ports.SearchHit
	var err error
	if q.Text != "" {
		keywordHits, err = s.Keyword(ctx, unpaginated)
		if err != nil {
			return nil, err
		}
	}
	if len(q.Vector) > 0 {
		semanticHits, err = s.Semantic(ctx, unpaginated)
		if err != nil {
			return nil, err
		}
	}
	bySegment := make(map[domain.SegmentID]*fused)
	for _, h := range keywordHits {
		bySegment[h.SegmentID] = &fused{hit: h, rawK: h.Score, hasK: true}
	}
	for _, h := range semanticHits {
		if f, ok := bySegment[h.SegmentID]; ok {
			f.rawS = h.Score
			f.hasS = true
		} else {
			bySegment[h.SegmentID] = &fused{hit: h, rawS: h.Score, hasS: true}
		}
	}

	out := make([]ports.SearchHit, 0, len(bySegment))
	for _, f := range bySegment {
		hit := f.hit
		hit.Score = w.Keyword*f.rawK + w.Semantic*f.rawS
		switch {
		case f.hasK && f.hasS:
			hit.MatchType = "hybrid"
		case f.hasS:
			hit.MatchType = "semantic"
		default:
			hit.MatchType = "keyword"
		}
		out = append(out, hit)
		bySegment[hit.SegmentID].hit = hit
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		fa, fb := bySegment[a.SegmentID], bySegment[b.SegmentID]
		if fa.rawS != fb.rawS {
			return fa.rawS > fb.rawS
		}
		if fa.rawK != fb.rawK {
			return fa.rawK > fb.rawK
		}
		return a.SegmentID < b.SegmentID
	})

	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset > len(out) {
		offset = len(out)
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}
