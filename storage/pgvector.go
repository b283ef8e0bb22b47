package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"videomoments/core"
)

// PgVectorIndex persists records and embeddings in Postgres with the
// pgvector extension. One table holds both modalities; each index
// instance scopes its queries to one. Backed by a connection pool so
// concurrent search requests never contend on a single connection.
type PgVectorIndex struct {
	pool     *pgxpool.Pool
	modality core.Modality
	dim      int
}

func NewPgVectorIndex(ctx context.Context, dbURL string, modality core.Modality, dim int) (*PgVectorIndex, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	idx := &PgVectorIndex{pool: pool, modality: modality, dim: dim}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PgVectorIndex) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	tableQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS moment_records (
			id SERIAL PRIMARY KEY,
			record_id VARCHAR(512) NOT NULL,
			modality VARCHAR(16) NOT NULL,
			source_id VARCHAR(255) NOT NULL,
			ts DOUBLE PRECISION NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(modality, record_id)
		);
	`, p.dim)
	if _, err := p.pool.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("create moment_records table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_moment_records_modality ON moment_records(modality);",
		"CREATE INDEX IF NOT EXISTS idx_moment_records_source ON moment_records(modality, source_id);",
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_moment_records_embedding ON moment_records USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);", 100),
	}
	for _, q := range indexes {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (p *PgVectorIndex) Upsert(ctx context.Context, records []core.Record, vectors [][]float32) error {
	for i, r := range records {
		vec := pgvector.NewVector(vectors[i])
		_, err := p.pool.Exec(ctx, `
			INSERT INTO moment_records (record_id, modality, source_id, ts, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (modality, record_id)
			DO UPDATE SET
				source_id = EXCLUDED.source_id,
				ts = EXCLUDED.ts,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, r.ID, string(p.modality), r.SourceID, r.Timestamp, r.Text, vec)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}
	return nil
}

func (p *PgVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]core.RawHit, error) {
	vec := pgvector.NewVector(vector)
	rows, err := p.pool.Query(ctx, `
		SELECT record_id, source_id, ts, text,
		       1 - (embedding <=> $1) AS similarity
		FROM moment_records
		WHERE modality = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, string(p.modality), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var hits []core.RawHit
	for rows.Next() {
		var h core.RawHit
		if err := rows.Scan(&h.ID, &h.SourceID, &h.Timestamp, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.Modality = p.modality
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *PgVectorIndex) IDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx, "SELECT record_id FROM moment_records WHERE modality = $1", string(p.modality))
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (p *PgVectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM moment_records WHERE modality = $1", string(p.modality)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (p *PgVectorIndex) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM moment_records WHERE modality = $1", string(p.modality))
	if err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

func (p *PgVectorIndex) Close() {
	p.pool.Close()
}
