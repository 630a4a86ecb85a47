package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ssotoa70/mediasearch/ports"
)

// hardVisibilityFilter is shared by both search modes: a segment is
// search-visible only if it is ACTIVE and its version is the asset's
// current version (§4.5's two hard filters), enforced here rather than
// trusted to the caller.
const hardVisibilityFilter = `
	segments.visibility = 'ACTIVE'
	AND segments.version_id = assets.current_version_id`

// SearchKeyword runs a full-text match over segment text using
// Postgres's built-in tsvector ranking (ts_rank), scoped to buckets and
// speakers when requested.
func (db *DB) SearchKeyword(ctx context.Context, q ports.SearchQuery) ([]ports.SearchHit, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT segments.asset_id, segments.version_id, segments.segment_id,
			segments.start_ms, segments.end_ms, segments.text,
			ts_rank(to_tsvector('english', segments.text), plainto_tsquery('english', $1)) AS score,
			segments.speaker, assets.bucket, assets.object_key, segments.created_at
		FROM segments
		JOIN assets ON assets.asset_id = segments.asset_id
		WHERE ` + hardVisibilityFilter + `
		  AND to_tsvector('english', segments.text) @@ plainto_tsquery('english', $1)`)

	args := []any{q.Text}
	appendOptionalFilters(&sb, &args, q)
	// Ties broken by descending creation time (§3): the most recently
	// ingested matching segment sorts first among equal-score hits.
	sb.WriteString(fmt.Sprintf(" ORDER BY score DESC, segments.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2))
	args = append(args, q.Limit, q.Offset)

	rows, err := db.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search keyword: %w", err)
	}
	defer rows.Close()
	return collectKeywordHits(rows)
}

// SearchSemantic ranks segments by cosine distance between their
// embedding vector and the query vector, using pgvector's `<=>` operator.
func (db *DB) SearchSemantic(ctx context.Context, q ports.SearchQuery) ([]ports.SearchHit, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT segments.asset_id, segments.version_id, segments.segment_id,
			segments.start_ms, segments.end_ms, segments.text,
			1 - (embeddings.vector <=> $1) AS score,
			segments.speaker, assets.bucket, assets.object_key
		FROM embeddings
		JOIN segments ON segments.segment_id = embeddings.segment_id
		JOIN assets ON assets.asset_id = segments.asset_id
		WHERE ` + hardVisibilityFilter + `
		  AND embeddings.visibility = 'ACTIVE'`)

	args := []any{pgvectorLiteral(q.Vector)}
	appendOptionalFilters(&sb, &args, q)
	sb.WriteString(fmt.Sprintf(" ORDER BY score DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2))
	args = append(args, q.Limit, q.Offset)

	rows, err := db.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search semantic: %w", err)
	}
	defer rows.Close()
	return collectHits(rows)
}

func appendOptionalFilters(sb *strings.Builder, args *[]any, q ports.SearchQuery) {
	if q.Bucket != "" {
		*args = append(*args, q.Bucket)
		fmt.Fprintf(sb, " AND assets.bucket = $%d", len(*args))
	}
	if q.Speaker != "" {
		*args = append(*args, q.Speaker)
		fmt.Fprintf(sb, " AND segments.speaker = $%d", len(*args))
	}
}

// collectKeywordHits scans SearchKeyword's result set, which carries a
// trailing created_at column (used only for the SQL-level tie-break,
// not part of ports.SearchHit) that collectHits' column count doesn't
// expect.
func collectKeywordHits(rows pgx.Rows) ([]ports.SearchHit, error) {
	var hits []ports.SearchHit
	for rows.Next() {
		var h ports.SearchHit
		var createdAt time.Time
		if err := rows.Scan(&h.AssetID, &h.VersionID, &h.SegmentID, &h.StartMs, &h.EndMs,
			&h.Snippet, &h.Score, &h.Speaker, &h.Bucket, &h.ObjectKey, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search hit rows: %w", err)
	}
	return hits, nil
}

func collectHits(rows pgx.Rows) ([]ports.SearchHit, error) {
	var hits []ports.SearchHit
	for rows.Next() {
		var h ports.SearchHit
		if err := rows.Scan(&h.AssetID, &h.VersionID, &h.SegmentID, &h.StartMs, &h.EndMs,
			&h.Snippet, &h.Score, &h.Speaker, &h.Bucket, &h.ObjectKey); err != nil {
			return nil, fmt.Errorf("postgres: scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search hit rows: %w", err)
	}
	return hits, nil
}

// pgvectorLiteral formats a float32 vector as pgvector's text input
// format, e.g. "[0.1,0.2,0.3]".
func pgvectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
