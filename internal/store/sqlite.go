package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteMigrations is applied in order; applied versions are recorded in
// schema_versions.
var sqliteMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS log_records (
    id              TEXT PRIMARY KEY,
    service_name    TEXT NOT NULL,
    error_level     TEXT NOT NULL,
    error_message   TEXT NOT NULL,
    raw_text        TEXT NOT NULL,
    normalized_text TEXT NOT NULL,
    embedding_ref   TEXT NOT NULL UNIQUE,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_log_records_service ON log_records(service_name);
CREATE INDEX IF NOT EXISTS idx_log_records_created_at ON log_records(created_at DESC);

CREATE TABLE IF NOT EXISTS resolutions (
    id               TEXT PRIMARY KEY,
    log_id           TEXT NOT NULL REFERENCES log_records(id) ON DELETE CASCADE,
    root_cause       TEXT NOT NULL,
    recommended_fix  TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    degraded         INTEGER NOT NULL DEFAULT 0,
    similar_log_ids  TEXT NOT NULL DEFAULT '[]',
    rag_context      TEXT NOT NULL DEFAULT '{}',
    created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolutions_log_id ON resolutions(log_id, created_at DESC);

CREATE TABLE IF NOT EXISTS api_keys (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    key_hash     TEXT NOT NULL,
    key_prefix   TEXT NOT NULL,
    scopes       TEXT NOT NULL DEFAULT '[]',
    last_used_at DATETIME,
    deleted_at   DATETIME,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
`,
	},
}

// OpenSQLite opens (or creates) a SQLite database at path and applies all
// pending schema migrations. Pass ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrateSQLite(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SQLiteStore implements Store on a single SQLite file for local and
// single-node deployments.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps a database opened with OpenSQLite.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- API Keys ---

type apiKeyRow struct {
	ID         uuid.UUID  `db:"id"`
	Name       string     `db:"name"`
	KeyHash    string     `db:"key_hash"`
	KeyPrefix  string     `db:"key_prefix"`
	Scopes     string     `db:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at"`
	DeletedAt  *time.Time `db:"deleted_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (r apiKeyRow) model() (*models.APIKey, error) {
	k := &models.APIKey{
		ID:         r.ID,
		Name:       r.Name,
		KeyHash:    r.KeyHash,
		KeyPrefix:  r.KeyPrefix,
		LastUsedAt: r.LastUsedAt,
		DeletedAt:  r.DeletedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Scopes), &k.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	return k, nil
}

func apiKeyModels(rows []apiKeyRow) ([]*models.APIKey, error) {
	keys := make([]*models.APIKey, 0, len(rows))
	for _, r := range rows {
		k, err := r.model()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *SQLiteStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM api_keys WHERE key_prefix = ? AND deleted_at IS NULL`, prefix); err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return apiKeyModels(rows)
}

func (s *SQLiteStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ?, updated_at = ? WHERE id = ?`, now, now, id); err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	scopes, err := marshalJSON(key.Scopes, "[]")
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return apiKeyModels(rows)
}

func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Log Records ---

type logRecordRow struct {
	ID             uuid.UUID `db:"id"`
	ServiceName    string    `db:"service_name"`
	ErrorLevel     string    `db:"error_level"`
	ErrorMessage   string    `db:"error_message"`
	RawText        string    `db:"raw_text"`
	NormalizedText string    `db:"normalized_text"`
	EmbeddingRef   string    `db:"embedding_ref"`
	Metadata       string    `db:"metadata"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r logRecordRow) model() (*models.LogRecord, error) {
	rec := &models.LogRecord{
		ID:             r.ID,
		ServiceName:    r.ServiceName,
		ErrorLevel:     models.ErrorLevel(r.ErrorLevel),
		ErrorMessage:   r.ErrorMessage,
		RawText:        r.RawText,
		NormalizedText: r.NormalizedText,
		EmbeddingRef:   r.EmbeddingRef,
		CreatedAt:      r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Metadata), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) CreateLogRecord(ctx context.Context, rec *models.LogRecord) error {
	metadata, err := marshalJSON(rec.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO log_records (id, service_name, error_level, error_message, raw_text, normalized_text, embedding_ref, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ServiceName, string(rec.ErrorLevel), rec.ErrorMessage, rec.RawText,
		rec.NormalizedText, rec.EmbeddingRef, metadata, rec.CreatedAt.UTC())
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create log record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLogRecord(ctx context.Context, id uuid.UUID) (*models.LogRecord, error) {
	var row logRecordRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM log_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get log record: %w", err)
	}
	return row.model()
}

func (s *SQLiteStore) ListLogRecords(ctx context.Context, filter LogFilter) ([]*models.LogRecord, int, error) {
	conditions := []string{"1 = 1"}
	args := []any{}
	if filter.Service != "" {
		conditions = append(conditions, "service_name = ?")
		args = append(args, filter.Service)
	}
	if filter.Level != "" {
		conditions = append(conditions, "error_level = ?")
		args = append(args, string(filter.Level))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM log_records WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count log records: %w", err)
	}

	limit, offset := filter.pagination()
	var rows []logRecordRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM log_records WHERE "+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list log records: %w", err)
	}

	records := make([]*models.LogRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.model()
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// --- Resolutions ---

type resolutionRow struct {
	ID              uuid.UUID `db:"id"`
	LogID           uuid.UUID `db:"log_id"`
	RootCause       string    `db:"root_cause"`
	RecommendedFix  string    `db:"recommended_fix"`
	ConfidenceScore float64   `db:"confidence_score"`
	Degraded        bool      `db:"degraded"`
	SimilarLogIDs   string    `db:"similar_log_ids"`
	RAGContext      string    `db:"rag_context"`
	CreatedAt       time.Time `db:"created_at"`
}

func (s *SQLiteStore) CreateResolution(ctx context.Context, res *models.Resolution) error {
	similar, err := marshalJSON(res.SimilarLogIDs, "[]")
	if err != nil {
		return fmt.Errorf("encode similar log ids: %w", err)
	}
	ragContext, err := marshalJSON(res.RAGContext, "{}")
	if err != nil {
		return fmt.Errorf("encode rag context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resolutions (id, log_id, root_cause, recommended_fix, confidence_score, degraded, similar_log_ids, rag_context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.LogID, res.RootCause, res.RecommendedFix, res.ConfidenceScore,
		res.Degraded, similar, ragContext, res.CreatedAt.UTC())
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return ErrNotFound
		}
		return fmt.Errorf("create resolution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResolutions(ctx context.Context, logID uuid.UUID) ([]*models.Resolution, error) {
	var rows []resolutionRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM resolutions WHERE log_id = ? ORDER BY created_at DESC`, logID); err != nil {
		return nil, fmt.Errorf("list resolutions: %w", err)
	}

	out := make([]*models.Resolution, 0, len(rows))
	for _, r := range rows {
		res := &models.Resolution{
			ID:              r.ID,
			LogID:           r.LogID,
			RootCause:       r.RootCause,
			RecommendedFix:  r.RecommendedFix,
			ConfidenceScore: r.ConfidenceScore,
			Degraded:        r.Degraded,
			CreatedAt:       r.CreatedAt,
		}
		if err := json.Unmarshal([]byte(r.SimilarLogIDs), &res.SimilarLogIDs); err != nil {
			return nil, fmt.Errorf("decode similar log ids: %w", err)
		}
		if err := json.Unmarshal([]byte(r.RAGContext), &res.RAGContext); err != nil {
			return nil, fmt.Errorf("decode rag context: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}

// marshalJSON encodes v, substituting empty for nil maps and slices.
func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func isSQLiteConstraint(err error, codes ...int) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code() == c {
			return true
		}
	}
	return false
}
