package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/cache"
	"github.com/kiranshivaraju/logresolver/internal/loki"
	"github.com/kiranshivaraju/logresolver/pkg/logql"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	defaultImportWindow = time.Hour
	defaultImportLimit  = 500
	maxImportLimit      = 5000
	importWorkers       = 4
)

// ImportRequest selects the Loki lines to import. A zero Start resumes from
// the service's stored cursor, or one hour before End; a zero End is now.
type ImportRequest struct {
	Service   string    `json:"service"`
	Namespace string    `json:"namespace,omitempty"`
	Levels    []string  `json:"levels,omitempty"`
	Contains  string    `json:"contains,omitempty"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Service  string    `json:"service"`
	Query    string    `json:"query"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Fetched  int       `json:"fetched"`
	Imported int       `json:"imported"`
	Skipped  int       `json:"skipped"`
}

// Importer pulls historical error lines from Loki and ingests them.
type Importer struct {
	source  loki.Source
	ingest  *Service
	cursors cache.Cache
	builder logql.QueryBuilder
	logger  *slog.Logger
	now     func() time.Time
}

// NewImporter creates an Importer. cursors may be nil, in which case every
// import without a Start covers the default window.
func NewImporter(source loki.Source, ingest *Service, cursors cache.Cache, logger *slog.Logger) *Importer {
	return &Importer{source: source, ingest: ingest, cursors: cursors, logger: logger, now: time.Now}
}

// Services lists the service label values known to Loki.
func (im *Importer) Services(ctx context.Context) ([]string, error) {
	return im.source.LabelValues(ctx, "service")
}

// Import fetches matching lines window by window and ingests them
// concurrently. Lines that fail validation are skipped; any other failure
// aborts the run and leaves the cursor at the end of the last completed
// window.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return nil, fmt.Errorf("%w: service is required", ErrValidation)
	}

	end := req.End
	if end.IsZero() {
		end = im.now()
	}
	start := req.Start
	if start.IsZero() {
		start = im.cursor(ctx, service, end)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start must be before end", ErrValidation)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultImportLimit
	}
	if limit > maxImportLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrValidation, maxImportLimit)
	}

	query := im.builder.BuildImportQuery(logql.ImportParams{
		Service:   service,
		Namespace: req.Namespace,
		Levels:    req.Levels,
		Contains:  req.Contains,
	})

	result := &ImportResult{Service: service, Query: query, Start: start, End: end}
	for windowStart := start; windowStart.Before(end); {
		windowEnd := windowStart.Add(defaultImportWindow)
		if windowEnd.After(end) {
			windowEnd = end
		}
		if err := im.importWindow(ctx, query, service, windowStart, windowEnd, limit, result); err != nil {
			return nil, err
		}
		im.saveCursor(ctx, service, windowEnd)
		windowStart = windowEnd
	}

	im.logger.InfoContext(ctx, "loki import complete",
		"service", service,
		"fetched", result.Fetched,
		"imported", result.Imported,
		"skipped", result.Skipped,
	)
	return result, nil
}

// importWindow pages forward through [from, to) until Loki returns a short
// page. A full page resumes at its newest timestamp; lines at that instant
// that were already ingested are not ingested again.
func (im *Importer) importWindow(ctx context.Context, query, service string, from, to time.Time, limit int, result *ImportResult) error {
	var seen map[string]struct{}
	for from.Before(to) {
		lines, err := im.source.QueryRange(ctx, loki.QueryRangeRequest{
			Query:     query,
			Start:     from,
			End:       to,
			Limit:     limit,
			Direction: "forward",
		})
		if err != nil {
			return fmt.Errorf("querying loki: %w", err)
		}

		var fresh []models.LogLine
		newest := from
		for _, line := range lines {
			if line.Timestamp.After(newest) {
				newest = line.Timestamp
			}
			if line.Timestamp.Equal(from) {
				if _, dup := seen[lineKey(line)]; dup {
					continue
				}
			}
			fresh = append(fresh, line)
		}

		if err := im.ingestLines(ctx, service, fresh, result); err != nil {
			return err
		}
		if len(lines) < limit {
			return nil
		}

		switch {
		case newest.After(from):
			seen = make(map[string]struct{})
		case len(fresh) == 0:
			// A full page of already ingested lines at one instant; any
			// further lines at that instant cannot be paged through.
			im.logger.WarnContext(ctx, "loki page holds a single timestamp, skipping ahead",
				"service", service, "timestamp", from)
			from = from.Add(time.Nanosecond)
			seen = nil
			continue
		case seen == nil:
			seen = make(map[string]struct{})
		}
		for _, line := range fresh {
			if line.Timestamp.Equal(newest) {
				seen[lineKey(line)] = struct{}{}
			}
		}
		from = newest
	}
	return nil
}

func (im *Importer) ingestLines(ctx context.Context, service string, lines []models.LogLine, result *ImportResult) error {
	var imported, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importWorkers)
	for _, line := range lines {
		line := line
		g.Go(func() error {
			meta := map[string]any{"source": SourceLoki}
			for k, v := range line.Labels {
				meta["label_"+k] = v
			}
			ts := line.Timestamp
			_, err := im.ingest.ingestText(gctx, line.Message, service, meta, &ts, SourceLoki)
			if errors.Is(err, ErrValidation) {
				skipped.Add(1)
				return nil
			}
			if err != nil {
				return err
			}
			imported.Add(1)
			return nil
		})
	}
	err := g.Wait()
	result.Fetched += len(lines)
	result.Imported += int(imported.Load())
	result.Skipped += int(skipped.Load())
	return err
}

// lineKey identifies a line within one timestamp.
func lineKey(line models.LogLine) string {
	return fmt.Sprint(line.Labels) + "\x00" + line.Message
}

func (im *Importer) cursor(ctx context.Context, service string, end time.Time) time.Time {
	fallback := end.Add(-defaultImportWindow)
	if im.cursors == nil {
		return fallback
	}
	raw, ok, err := im.cursors.Get(ctx, cache.ImportCursorKey(service))
	if err != nil {
		im.logger.WarnContext(ctx, "reading import cursor failed", "service", service, "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil || !t.Before(end) {
		return fallback
	}
	return t
}

func (im *Importer) saveCursor(ctx context.Context, service string, end time.Time) {
	if im.cursors == nil {
		return
	}
	value := []byte(end.UTC().Format(time.RFC3339Nano))
	if err := im.cursors.Set(ctx, cache.ImportCursorKey(service), value, 0); err != nil {
		im.logger.WarnContext(ctx, "saving import cursor failed", "service", service, "error", err)
	}
}
