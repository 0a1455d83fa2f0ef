package resolver_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/ai"
	"github.com/kiranshivaraju/logresolver/internal/ai/mock"
	"github.com/kiranshivaraju/logresolver/internal/analysis"
	"github.com/kiranshivaraju/logresolver/internal/embedding"
	"github.com/kiranshivaraju/logresolver/internal/metrics"
	"github.com/kiranshivaraju/logresolver/internal/rag"
	"github.com/kiranshivaraju/logresolver/internal/resolver"
	"github.com/kiranshivaraju/logresolver/internal/retrieval"
	"github.com/kiranshivaraju/logresolver/internal/store"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 64

// --- fakes ---

type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.LogRecord
	saved   []*models.Resolution
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[uuid.UUID]*models.LogRecord{}}
}

func (s *fakeStore) add(rec *models.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *fakeStore) GetLogRecord(_ context.Context, id uuid.UUID) (*models.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) CreateResolution(_ context.Context, res *models.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, res)
	return nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// cannedIndex returns fixed neighbors regardless of the query vector.
type cannedIndex struct {
	neighbors []vectorindex.Neighbor
	stored    map[string][]float32
	err       error
}

func (c *cannedIndex) Upsert(context.Context, string, []float32, map[string]string) error { return nil }
func (c *cannedIndex) Count(context.Context) (int, error)                                { return len(c.neighbors), nil }
func (c *cannedIndex) Dimension() int                                                    { return testDim }

func (c *cannedIndex) Get(_ context.Context, ref string) ([]float32, bool, error) {
	v, ok := c.stored[ref]
	return v, ok, nil
}

func (c *cannedIndex) Query(_ context.Context, _ []float32, topK int) ([]vectorindex.Neighbor, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.neighbors) > topK {
		return c.neighbors[:topK], nil
	}
	return c.neighbors, nil
}

type countingEmbedder struct {
	embedding.Embedder
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.Embed(ctx, text)
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store     *fakeStore
	embedder  *countingEmbedder
	completer *mock.MockProvider
	resolver  *resolver.Resolver
}

func newFixture(idx vectorindex.Index, completer *mock.MockProvider, timeout time.Duration) *fixture {
	f := &fixture{
		store:     newFakeStore(),
		embedder:  &countingEmbedder{Embedder: embedding.NewHashEmbedder(testDim)},
		completer: completer,
	}
	logger := testLogger()
	f.resolver = resolver.New(resolver.Dependencies{
		Embedder:  f.embedder,
		Index:     idx,
		Retriever: retrieval.New(idx, retrieval.DefaultPatternThreshold),
		Context:   rag.NewContextBuilder(4000),
		Generator: rag.NewGenerator(completer, rag.GeneratorOptions{Temperature: 0.3}, logger),
		Logs:      f.store,
		Saver:     f.store,
	}, resolver.Options{DefaultTopK: 5, MaxTopK: 20, StageTimeout: timeout}, logger)
	return f
}

func storedRecord(service, raw string) *models.LogRecord {
	id := uuid.New()
	return &models.LogRecord{
		ID:             id,
		ServiceName:    service,
		ErrorLevel:     analysis.ExtractLevel(raw),
		ErrorMessage:   analysis.ExtractMessage(raw),
		RawText:        raw,
		NormalizedText: analysis.Normalize(raw),
		EmbeddingRef:   models.EmbeddingRefFor(id),
		CreatedAt:      time.Now().UTC(),
	}
}

func neighborFor(id uuid.UUID, distance float64, msg string, created time.Time) vectorindex.Neighbor {
	return vectorindex.Neighbor{
		Ref:      models.EmbeddingRefFor(id),
		Distance: distance,
		Metadata: map[string]string{
			vectorindex.MetaLogID:        id.String(),
			vectorindex.MetaServiceName:  "payments",
			vectorindex.MetaErrorLevel:   "ERROR",
			vectorindex.MetaErrorMessage: msg,
			vectorindex.MetaCreatedAt:    created.Format(time.RFC3339Nano),
		},
	}
}

func requireStageError(t *testing.T, err error, stage string, state resolver.State) {
	t.Helper()
	var se *resolver.StageError
	require.True(t, errors.As(err, &se), "expected *StageError, got %T: %v", err, err)
	assert.Equal(t, stage, se.Stage)
	assert.Equal(t, state, se.State)
}

// --- scenarios ---

func TestResolve_ByReference_RecurringPattern(t *testing.T) {
	rec := storedRecord("payments", "2024-01-15 10:00:00 ERROR [payments] connection refused to db-primary:5432")
	now := time.Now()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	idx := &cannedIndex{neighbors: []vectorindex.Neighbor{
		{Ref: rec.EmbeddingRef, Distance: 0}, // the record itself
		neighborFor(ids[0], 0.10, "connection refused to db-primary:5432", now),
		neighborFor(ids[1], 0.15, "connection refused to db-replica:5432", now),
		neighborFor(ids[2], 0.22, "connection reset by db-primary", now),
		neighborFor(ids[3], 0.70, "disk quota exceeded", now),
	}}
	f := newFixture(idx, mock.NewMockProvider(), time.Second)
	f.store.add(rec)

	out, err := f.resolver.Resolve(context.Background(), resolver.Request{LogID: rec.ID, TopK: 5})
	require.NoError(t, err)

	assert.Equal(t, models.PatternSignal{Detected: true, Frequency: 3}, out.Pattern)
	require.Len(t, out.SimilarMatches, 4)
	wantScores := []float64{0.9, 0.85, 0.78, 0.3}
	for i, m := range out.SimilarMatches {
		assert.InDelta(t, wantScores[i], m.Score, 1e-9)
		assert.Equal(t, ids[i], m.LogID)
		assert.NotEqual(t, rec.EmbeddingRef, m.EmbeddingRef)
	}

	assert.Equal(t, resolver.StateDone, out.State)
	require.NotNil(t, out.LogID)
	assert.Equal(t, rec.ID, *out.LogID)
	require.NotNil(t, out.ResolutionID)

	require.Equal(t, 1, f.store.savedCount())
	saved := f.store.saved[0]
	assert.Equal(t, *out.ResolutionID, saved.ID)
	assert.Equal(t, rec.ID, saved.LogID)
	assert.Equal(t, ids, saved.SimilarLogIDs)
	assert.Equal(t, 3, saved.RAGContext["pattern_frequency"])
	assert.Equal(t, 5, saved.RAGContext["top_k"])

	reqs := f.completer.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "1. [Similarity: 0.90] [payments] [ERROR]: connection refused to db-primary:5432")
	assert.Contains(t, reqs[0].Prompt, "PATTERN: 3 historical errors")
	assert.Contains(t, reqs[0].Prompt, "Service: payments")
}

func TestResolve_AdHoc_NoHistory(t *testing.T) {
	idx := vectorindex.NewMemoryIndex(testDim)
	f := newFixture(idx, mock.NewResponseProvider(`{"root_cause": "Nil map write", "recommended_fix": "Initialise the map before use"}`), time.Second)

	out, err := f.resolver.Resolve(context.Background(), resolver.Request{
		LogText:     "panic: assignment to entry in nil map",
		ServiceName: "checkout",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PatternSignal{Detected: false, Frequency: 0}, out.Pattern)
	assert.Empty(t, out.SimilarMatches)
	assert.NotNil(t, out.SimilarMatches)
	assert.InDelta(t, 0.4, out.ConfidenceScore, 1e-9)
	assert.Equal(t, "Nil map write", out.RootCause)
	assert.Nil(t, out.LogID)
	assert.Nil(t, out.ResolutionID)
	assert.Equal(t, 0, f.store.savedCount(), "ad-hoc resolutions are not persisted")
	assert.Equal(t, int32(1), f.embedder.calls.Load())

	prompt := f.completer.Requests()[0].Prompt
	assert.Contains(t, prompt, "Service: checkout")
	assert.Contains(t, prompt, "None found")
}

func stageSamples(t *testing.T, stage string) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.StageDuration.WithLabelValues(stage).(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestResolve_InfallibleStagesAreTimed(t *testing.T) {
	idx := vectorindex.NewMemoryIndex(testDim)
	f := newFixture(idx, mock.NewMockProvider(), time.Second)

	normalizeBefore := stageSamples(t, resolver.StageNormalize)
	contextBefore := stageSamples(t, resolver.StageContext)

	_, err := f.resolver.Resolve(context.Background(), resolver.Request{LogText: "ERROR disk full on /var"})
	require.NoError(t, err)

	assert.Equal(t, normalizeBefore+1, stageSamples(t, resolver.StageNormalize))
	assert.Equal(t, contextBefore+1, stageSamples(t, resolver.StageContext))
}

func TestResolve_AdHoc_ServiceExtractedFromText(t *testing.T) {
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)

	_, err := f.resolver.Resolve(context.Background(), resolver.Request{
		LogText: "2024-01-15T10:00:00Z ERROR service=auth-api token validation failed",
	})
	require.NoError(t, err)
	assert.Contains(t, f.completer.Requests()[0].Prompt, "Service: auth-api")
	assert.Contains(t, f.completer.Requests()[0].Prompt, "Level: ERROR")
}

func TestResolve_AdHoc_FindsIngestedHistory(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex(testDim)
	f := newFixture(idx, mock.NewMockProvider(), time.Second)

	// Same error at a different time and address normalizes identically.
	hist := storedRecord("api", "2024-01-10 08:12:44 ERROR connection refused to 10.0.0.12:5432")
	vec, err := f.embedder.Embedder.Embed(ctx, hist.NormalizedText)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, hist.EmbeddingRef, vec, map[string]string{
		vectorindex.MetaLogID:        hist.ID.String(),
		vectorindex.MetaServiceName:  hist.ServiceName,
		vectorindex.MetaErrorLevel:   string(hist.ErrorLevel),
		vectorindex.MetaErrorMessage: hist.ErrorMessage,
		vectorindex.MetaCreatedAt:    hist.CreatedAt.Format(time.RFC3339Nano),
	}))

	out, err := f.resolver.Resolve(ctx, resolver.Request{LogText: "2024-03-02 23:01:09 ERROR connection refused to 10.0.0.99:5432"})
	require.NoError(t, err)

	require.Len(t, out.SimilarMatches, 1)
	assert.Equal(t, hist.ID, out.SimilarMatches[0].LogID)
	assert.InDelta(t, 1.0, out.SimilarMatches[0].Score, 1e-6)
	assert.Equal(t, models.PatternSignal{Detected: true, Frequency: 1}, out.Pattern)
}

func TestResolve_DegradedModelOutput(t *testing.T) {
	rec := storedRecord("api", "ERROR upstream timed out")
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewResponseProvider("Honestly I cannot tell what went wrong."), time.Second)
	f.store.add(rec)

	out, err := f.resolver.Resolve(context.Background(), resolver.Request{LogID: rec.ID})
	require.NoError(t, err, "degraded parse is not a failure")

	assert.True(t, out.Degraded)
	assert.Equal(t, rag.DegradedRootCause, out.RootCause)
	assert.InDelta(t, 0.3, out.ConfidenceScore, 1e-9)
	require.Equal(t, 1, f.store.savedCount())
	assert.True(t, f.store.saved[0].Degraded)
}

func TestResolve_ValidationRunsBeforePipeline(t *testing.T) {
	tests := []struct {
		name string
		req  resolver.Request
	}{
		{"neither", resolver.Request{}},
		{"both", resolver.Request{LogID: uuid.New(), LogText: "boom"}},
		{"top k out of range", resolver.Request{LogText: "boom", TopK: 99}},
		{"text too large", resolver.Request{LogText: strings.Repeat("x", resolver.MaxLogTextBytes+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)

			out, err := f.resolver.Resolve(context.Background(), tt.req)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, resolver.ErrValidation)
			requireStageError(t, err, resolver.StageValidate, resolver.StateReceived)

			assert.Zero(t, f.embedder.calls.Load())
			assert.Empty(t, f.completer.Requests())
		})
	}
}

func TestResolve_UnknownLogID(t *testing.T) {
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)

	_, err := f.resolver.Resolve(context.Background(), resolver.Request{LogID: uuid.New()})
	assert.ErrorIs(t, err, resolver.ErrNotFound)
	requireStageError(t, err, resolver.StageLookup, resolver.StateReceived)
	assert.Zero(t, f.embedder.calls.Load())
	assert.Empty(t, f.completer.Requests())
}

func TestResolve_GenerationTimeout(t *testing.T) {
	rec := storedRecord("api", "ERROR upstream timed out")
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewTimeoutProvider(), 50*time.Millisecond)
	f.store.add(rec)

	out, err := f.resolver.Resolve(context.Background(), resolver.Request{LogID: rec.ID})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, resolver.ErrGeneration)
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
	requireStageError(t, err, resolver.StageGenerate, resolver.StateContextBuilt)
	assert.Equal(t, 0, f.store.savedCount(), "no partial persistence")
}

func TestResolve_GenerationFailure(t *testing.T) {
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewFailingProvider(ai.ErrProviderUnavailable), time.Second)

	_, err := f.resolver.Resolve(context.Background(), resolver.Request{LogText: "ERROR boom"})
	assert.ErrorIs(t, err, resolver.ErrGeneration)
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestResolve_EmbeddingFailure(t *testing.T) {
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)
	f.embedder.err = embedding.ErrModelUnavailable

	_, err := f.resolver.Resolve(context.Background(), resolver.Request{LogText: "ERROR boom"})
	assert.ErrorIs(t, err, resolver.ErrEmbedding)
	assert.ErrorIs(t, err, embedding.ErrModelUnavailable)
	requireStageError(t, err, resolver.StageEmbed, resolver.StateNormalized)
	assert.Empty(t, f.completer.Requests())
}

func TestResolve_RetrievalFailureIsNotDegraded(t *testing.T) {
	idx := &cannedIndex{err: vectorindex.ErrUnavailable}
	f := newFixture(idx, mock.NewMockProvider(), time.Second)

	out, err := f.resolver.Resolve(context.Background(), resolver.Request{LogText: "ERROR boom"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, resolver.ErrRetrieval)
	assert.ErrorIs(t, err, vectorindex.ErrUnavailable)
	requireStageError(t, err, resolver.StageRetrieve, resolver.StateEmbedded)
	assert.Empty(t, f.completer.Requests())
}

func TestResolve_PersistenceFailure(t *testing.T) {
	rec := storedRecord("api", "ERROR boom")
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)
	f.store.add(rec)
	f.store.saveErr = errors.New("disk full")

	_, err := f.resolver.Resolve(context.Background(), resolver.Request{LogID: rec.ID})
	assert.ErrorIs(t, err, resolver.ErrPersistence)
	requireStageError(t, err, resolver.StagePersist, resolver.StateGenerated)
}

func TestResolve_ReusesStoredVector(t *testing.T) {
	ctx := context.Background()
	rec := storedRecord("api", "ERROR boom")
	idx := vectorindex.NewMemoryIndex(testDim)
	f := newFixture(idx, mock.NewMockProvider(), time.Second)
	f.store.add(rec)

	vec, err := f.embedder.Embedder.Embed(ctx, rec.NormalizedText)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, rec.EmbeddingRef, vec, map[string]string{vectorindex.MetaLogID: rec.ID.String()}))

	out, err := f.resolver.Resolve(ctx, resolver.Request{LogID: rec.ID})
	require.NoError(t, err)
	assert.Zero(t, f.embedder.calls.Load(), "stored vector is reused")
	assert.Empty(t, out.SimilarMatches, "the record never matches itself")
}

func TestResolve_ConcurrentRequests(t *testing.T) {
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.resolver.Resolve(context.Background(), resolver.Request{LogText: "ERROR connection refused"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.completer.Requests(), 20)
}

// --- Analyze ---

func TestAnalyze(t *testing.T) {
	rec := storedRecord("payments", "ERROR connection refused")
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	idx := &cannedIndex{neighbors: []vectorindex.Neighbor{
		{Ref: rec.EmbeddingRef, Distance: 0},
		neighborFor(ids[0], 0.05, "connection refused", time.Now()),
		neighborFor(ids[1], 0.5, "unrelated", time.Now()),
	}}
	f := newFixture(idx, mock.NewMockProvider(), time.Second)
	f.store.add(rec)

	a, err := f.resolver.Analyze(context.Background(), rec.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, a.LogID)
	require.Len(t, a.SimilarLogs, 2)
	assert.Equal(t, models.PatternSignal{Detected: true, Frequency: 1}, a.Pattern)
	assert.Empty(t, f.completer.Requests(), "analysis never calls the model")
	assert.Equal(t, 0, f.store.savedCount())
}

func TestAnalyze_NotFound(t *testing.T) {
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)

	_, err := f.resolver.Analyze(context.Background(), uuid.New(), 5)
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestAnalyze_RequiresLogID(t *testing.T) {
	f := newFixture(vectorindex.NewMemoryIndex(testDim), mock.NewMockProvider(), time.Second)

	_, err := f.resolver.Analyze(context.Background(), uuid.Nil, 5)
	assert.ErrorIs(t, err, resolver.ErrValidation)
}
