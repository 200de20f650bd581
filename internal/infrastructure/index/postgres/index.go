// Package postgres keeps chunks in a PostgreSQL table with a generated
// tsvector column and ranks them with ts_rank_cd.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/core/lexical"
)

type Index struct {
	db      *sql.DB
	session string
}

func NewIndex(db *sql.DB, session string) *Index {
	return &Index{db: db, session: session}
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (i *Index) EnsureSchema(ctx context.Context) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS policy_chunks (
	session_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
	PRIMARY KEY (session_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_policy_chunks_document ON policy_chunks(session_id, document_id);
CREATE INDEX IF NOT EXISTS idx_policy_chunks_tsv ON policy_chunks USING GIN (tsv);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO policy_chunks (session_id, chunk_id, document_id, chunk_index, content)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, chunk_id) DO UPDATE
SET document_id = EXCLUDED.document_id, chunk_index = EXCLUDED.chunk_index, content = EXCLUDED.content
`)
	if err != nil {
		return fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, i.session, c.ID, c.DocumentID, c.Index, c.Text); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := i.db.ExecContext(ctx, `
DELETE FROM policy_chunks
WHERE session_id = $1 AND document_id = $2
`, i.session, documentID)
	if err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	return nil
}

func (i *Index) Search(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.IndexHit, error) {
	tsQuery := buildTSQuery(queryText)
	if tsQuery == "" || limit <= 0 {
		return nil, nil
	}

	query := `
SELECT chunk_id, document_id, chunk_index, content, ts_rank_cd(tsv, q) AS score
FROM policy_chunks, to_tsquery('english', $2) AS q
WHERE session_id = $1 AND tsv @@ q`
	args := []any{i.session, tsQuery}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		query += fmt.Sprintf(" AND document_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf("\nORDER BY score DESC, document_id, chunk_index, chunk_id\nLIMIT $%d", len(args))

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.IndexHit
	for rows.Next() {
		var hit domain.IndexHit
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.ChunkIndex, &hit.Text, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk hits: %w", err)
	}
	return out, nil
}

func (i *Index) Count(ctx context.Context, filter domain.SearchFilter) (int, error) {
	query := `SELECT count(*) FROM policy_chunks WHERE session_id = $1`
	args := []any{i.session}
	if filter.DocumentID != "" {
		query += ` AND document_id = $2`
		args = append(args, filter.DocumentID)
	}

	var n int
	if err := i.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// buildTSQuery ORs the query terms. Terms are letters and digits only, so
// they need no tsquery escaping.
func buildTSQuery(queryText string) string {
	return strings.Join(lexical.QueryTerms(queryText), " | ")
}
