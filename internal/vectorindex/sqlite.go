package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
)

var _ Index = (*SQLiteIndex)(nil)

var reTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLiteIndex persists vectors as BLOBs in SQLite and scans them for each
// query. It shares the database handle with the record store.
type SQLiteIndex struct {
	db    *sqlx.DB
	table string
	dim   int
}

type sqliteVectorRow struct {
	Ref       string `db:"ref"`
	Dimension int    `db:"dimension"`
	Vector    []byte `db:"vector"`
	Metadata  string `db:"metadata"`
}

// NewSQLiteIndex creates the backing table if needed and verifies that any
// stored vectors match dim.
func NewSQLiteIndex(ctx context.Context, db *sqlx.DB, table string, dim int) (*SQLiteIndex, error) {
	if !reTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	idx := &SQLiteIndex{db: db, table: table, dim: dim}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ref        TEXT PRIMARY KEY,
    dimension  INTEGER NOT NULL,
    vector     BLOB NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}',
    updated_at DATETIME NOT NULL
)`, table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create vector table: %w", err)
	}

	var other []int
	q := fmt.Sprintf(`SELECT DISTINCT dimension FROM %s WHERE dimension <> ?`, table)
	if err := db.SelectContext(ctx, &other, q, dim); err != nil {
		return nil, fmt.Errorf("check stored dimensions: %w", err)
	}
	if len(other) > 0 {
		return nil, fmt.Errorf("%w: table %s holds %d-dimension vectors, configured %d", ErrDimensionMismatch, table, other[0], dim)
	}
	return idx, nil
}

func (s *SQLiteIndex) Dimension() int { return s.dim }

func (s *SQLiteIndex) Upsert(ctx context.Context, ref string, vector []float32, metadata map[string]string) error {
	if err := checkDim(vector, s.dim); err != nil {
		return err
	}
	meta, err := json.Marshal(copyMeta(metadata))
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	q := fmt.Sprintf(`INSERT INTO %s (ref, dimension, vector, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			dimension = excluded.dimension,
			vector = excluded.vector,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, q, ref, s.dim, EncodeVector(vector), string(meta), time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrUnavailable, ref, err)
	}
	return nil
}

func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, topK int) ([]Neighbor, error) {
	if err := checkDim(vector, s.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Neighbor{}, nil
	}

	q := fmt.Sprintf(`SELECT ref, dimension, vector, metadata FROM %s`, s.table)
	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	results := []Neighbor{}
	for rows.Next() {
		var row sqliteVectorRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		if row.Dimension != s.dim {
			return nil, fmt.Errorf("%w: stored vector %s has dimension %d", ErrDimensionMismatch, row.Ref, row.Dimension)
		}
		vec, err := DecodeVector(row.Vector)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, row.Ref, err)
		}
		meta := map[string]string{}
		if row.Metadata != "" {
			if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
				return nil, fmt.Errorf("%w: metadata for %s: %v", ErrUnavailable, row.Ref, err)
			}
		}
		results = append(results, Neighbor{Ref: row.Ref, Distance: CosineDistance(vector, vec), Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	sortNeighbors(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *SQLiteIndex) Get(ctx context.Context, ref string) ([]float32, bool, error) {
	var blob []byte
	q := fmt.Sprintf(`SELECT vector FROM %s WHERE ref = ?`, s.table)
	err := s.db.GetContext(ctx, &blob, q, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrUnavailable, ref, err)
	}
	return vec, true, nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, nil
}
