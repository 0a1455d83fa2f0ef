package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	scopes := key.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Log Records ---

const logRecordColumns = `id, service_name, error_level, error_message, raw_text, normalized_text, embedding_ref, metadata, created_at`

func scanLogRecord(row pgx.Row) (*models.LogRecord, error) {
	var r models.LogRecord
	err := row.Scan(&r.ID, &r.ServiceName, &r.ErrorLevel, &r.ErrorMessage, &r.RawText,
		&r.NormalizedText, &r.EmbeddingRef, &r.Metadata, &r.CreatedAt)
	return &r, err
}

func (s *PostgresStore) CreateLogRecord(ctx context.Context, rec *models.LogRecord) error {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO log_records (`+logRecordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ServiceName, rec.ErrorLevel, rec.ErrorMessage, rec.RawText,
		rec.NormalizedText, rec.EmbeddingRef, metadata, rec.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create log record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLogRecord(ctx context.Context, id uuid.UUID) (*models.LogRecord, error) {
	r, err := scanLogRecord(s.pool.QueryRow(ctx,
		`SELECT `+logRecordColumns+` FROM log_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListLogRecords(ctx context.Context, filter LogFilter) ([]*models.LogRecord, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Service != "" {
		conditions = append(conditions, fmt.Sprintf("service_name = $%d", argIdx))
		args = append(args, filter.Service)
		argIdx++
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("error_level = $%d", argIdx))
		args = append(args, filter.Level)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM log_records WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count log records: %w", err)
	}

	limit, offset := filter.pagination()
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM log_records WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		logRecordColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list log records: %w", err)
	}
	defer rows.Close()

	var records []*models.LogRecord
	for rows.Next() {
		r, err := scanLogRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan log record: %w", err)
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// --- Resolutions ---

func (s *PostgresStore) CreateResolution(ctx context.Context, res *models.Resolution) error {
	similar := res.SimilarLogIDs
	if similar == nil {
		similar = []uuid.UUID{}
	}
	ragContext := res.RAGContext
	if ragContext == nil {
		ragContext = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO resolutions (id, log_id, root_cause, recommended_fix, confidence_score, degraded, similar_log_ids, rag_context, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		res.ID, res.LogID, res.RootCause, res.RecommendedFix, res.ConfidenceScore,
		res.Degraded, similar, ragContext, res.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create resolution: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResolutions(ctx context.Context, logID uuid.UUID) ([]*models.Resolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, log_id, root_cause, recommended_fix, confidence_score, degraded, similar_log_ids, rag_context, created_at
		 FROM resolutions WHERE log_id = $1 ORDER BY created_at DESC`, logID)
	if err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}
	defer rows.Close()

	var out []*models.Resolution
	for rows.Next() {
		var r models.Resolution
		if err := rows.Scan(&r.ID, &r.LogID, &r.RootCause, &r.RecommendedFix, &r.ConfidenceScore,
			&r.Degraded, &r.SimilarLogIDs, &r.RAGContext, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
