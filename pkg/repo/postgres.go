package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepo is a generic Postgres-backed repository, the same shape
// as Neo4jRepo: a label/table name plus a pair of mapping functions, with
// the session-per-call opened against a pool instead of a graph driver.
// It is meant for simple single-table lookups (DLQ items, quarantined
// asset listings) — anything involving the cross-table atomicity of
// §4.1/§4.3 goes through storage/postgres's direct ports.Tx instead.
type PostgresRepo[T any, ID any] struct {
	pool     *pgxpool.Pool
	table    string
	idColumn string
	columns  []string
	toArgs   func(T) []any
	newQuery func(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) (pgx.Rows, error) // for testing
}

// NewPostgresRepo creates a Postgres-backed repository over table,
// scanning rows into T via pgx.RowToStructByName (T's fields must carry
// `db` struct tags matching column names) and writing rows via toArgs in
// the same order as columns.
func NewPostgresRepo[T any, ID any](pool *pgxpool.Pool, table, idColumn string, columns []string, toArgs func(T) []any) *PostgresRepo[T, ID] {
	return &PostgresRepo[T, ID]{
		pool:     pool,
		table:    table,
		idColumn: idColumn,
		columns:  columns,
		toArgs:   toArgs,
		newQuery: func(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) (pgx.Rows, error) {
			return pool.Query(ctx, sql, args...)
		},
	}
}

var _ Repository[struct{}, string] = (*PostgresRepo[struct{}, string])(nil)

func (r *PostgresRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", r.table, r.idColumn)
	rows, err := r.newQuery(ctx, r.pool, sql, id)
	if err != nil {
		return zero, fmt.Errorf("repo.postgres: get %s: %w", r.table, err)
	}
	defer rows.Close()
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return zero, fmt.Errorf("repo.postgres: get %s: %w", r.table, err)
	}
	return v, nil
}

func (r *PostgresRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	sql := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT $1 OFFSET $2", r.table, r.idColumn)
	rows, err := r.newQuery(ctx, r.pool, sql, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("repo.postgres: list %s: %w", r.table, err)
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

func (r *PostgresRepo[T, ID]) Create(ctx context.Context, entity T) (T, error) {
	var zero T
	placeholders := make([]string, len(r.columns))
	for i := range r.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.table, joinColumns(r.columns), joinColumns(placeholders))
	if _, err := r.pool.Exec(ctx, sql, r.toArgs(entity)...); err != nil {
		return zero, fmt.Errorf("repo.postgres: create %s: %w", r.table, err)
	}
	return entity, nil
}

func (r *PostgresRepo[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	var zero T
	args := r.toArgs(entity)
	sets := make([]string, 0, len(r.columns))
	for i, col := range r.columns {
		if col == r.idColumn {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	idIdx := indexOf(r.columns, r.idColumn) + 1
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", r.table, joinColumns(sets), r.idColumn, idIdx)
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return zero, fmt.Errorf("repo.postgres: update %s: %w", r.table, err)
	}
	if tag.RowsAffected() == 0 {
		return zero, fmt.Errorf("repo.postgres: update %s: not found", r.table)
	}
	return entity, nil
}

func (r *PostgresRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.table, r.idColumn)
	tag, err := r.pool.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("repo.postgres: delete %s: %w", r.table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.postgres: delete %s: not found", r.table)
	}
	return nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func indexOf(cols []string, col string) int {
	for i, c := range cols {
		if c == col {
			return i
		}
	}
	return -1
}
