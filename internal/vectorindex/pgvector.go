package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Index = (*PGVectorIndex)(nil)

// PGVectorIndex stores vectors in a pgvector column and delegates
// nearest-neighbor ordering to Postgres via the <=> cosine distance operator.
// The table is created by the store migrations.
type PGVectorIndex struct {
	pool  *pgxpool.Pool
	table string
	dim   int
}

// NewPGVectorIndex verifies that rows already in table match dim.
func NewPGVectorIndex(ctx context.Context, pool *pgxpool.Pool, table string, dim int) (*PGVectorIndex, error) {
	if !reTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	idx := &PGVectorIndex{pool: pool, table: table, dim: dim}

	var stored int
	q := fmt.Sprintf(`SELECT vector_dims(embedding) FROM %s WHERE vector_dims(embedding) <> $1 LIMIT 1`, table)
	err := pool.QueryRow(ctx, q, dim).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return idx, nil
	case err != nil:
		return nil, fmt.Errorf("check stored dimensions: %w", err)
	default:
		return nil, fmt.Errorf("%w: table %s holds %d-dimension vectors, configured %d", ErrDimensionMismatch, table, stored, dim)
	}
}

func (p *PGVectorIndex) Dimension() int { return p.dim }

func (p *PGVectorIndex) Upsert(ctx context.Context, ref string, vector []float32, metadata map[string]string) error {
	if err := checkDim(vector, p.dim); err != nil {
		return err
	}
	meta, err := json.Marshal(copyMeta(metadata))
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	q := fmt.Sprintf(`INSERT INTO %s (ref, embedding, metadata, updated_at)
		VALUES ($1, $2::vector, $3, NOW())
		ON CONFLICT (ref) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()`, p.table)
	if _, err := p.pool.Exec(ctx, q, ref, formatPGVector(vector), meta); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", ErrUnavailable, ref, err)
	}
	return nil
}

func (p *PGVectorIndex) Query(ctx context.Context, vector []float32, topK int) ([]Neighbor, error) {
	if err := checkDim(vector, p.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Neighbor{}, nil
	}

	q := fmt.Sprintf(`SELECT ref, embedding <=> $1::vector AS distance, metadata
		FROM %s
		ORDER BY distance ASC, (metadata->>'created_at')::timestamptz DESC NULLS LAST, ref ASC
		LIMIT $2`, p.table)
	rows, err := p.pool.Query(ctx, q, formatPGVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	results := []Neighbor{}
	for rows.Next() {
		var (
			n    Neighbor
			dist *float64
			meta []byte
		)
		if err := rows.Scan(&n.Ref, &dist, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
		}
		// pgvector yields NULL distance for zero vectors.
		n.Distance = 1
		if dist != nil {
			n.Distance = *dist
		}
		n.Metadata = map[string]string{}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata for %s: %w", ErrUnavailable, n.Ref, err)
			}
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return results, nil
}

func (p *PGVectorIndex) Get(ctx context.Context, ref string) ([]float32, bool, error) {
	var text string
	q := fmt.Sprintf(`SELECT embedding::text FROM %s WHERE ref = $1`, p.table)
	err := p.pool.QueryRow(ctx, q, ref).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	vec, err := parsePGVector(text)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrUnavailable, ref, err)
	}
	return vec, true, nil
}

func (p *PGVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, nil
}
