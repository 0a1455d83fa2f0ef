package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateLogRecord(ctx context.Context, rec *models.LogRecord) error
	GetLogRecord(ctx context.Context, id uuid.UUID) (*models.LogRecord, error)
	ListLogRecords(ctx context.Context, filter LogFilter) ([]*models.LogRecord, int, error)

	CreateResolution(ctx context.Context, res *models.Resolution) error
	ListResolutions(ctx context.Context, logID uuid.UUID) ([]*models.Resolution, error)
}

// LogFilter narrows ListLogRecords. Zero values mean "no filter".
type LogFilter struct {
	Service string
	Level   models.ErrorLevel
	Since   time.Time
	Page    int
	Limit   int
}

// pagination normalizes Page and Limit and returns limit and offset.
func (f LogFilter) pagination() (int, int) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
