package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex returns canned neighbors, truncated to topK like a real index.
type fakeIndex struct {
	neighbors []vectorindex.Neighbor
	err       error
	lastTopK  int
}

func (f *fakeIndex) Upsert(context.Context, string, []float32, map[string]string) error { return nil }
func (f *fakeIndex) Get(context.Context, string) ([]float32, bool, error)              { return nil, false, nil }
func (f *fakeIndex) Count(context.Context) (int, error)                                { return len(f.neighbors), nil }
func (f *fakeIndex) Dimension() int                                                    { return 3 }

func (f *fakeIndex) Query(_ context.Context, _ []float32, topK int) ([]vectorindex.Neighbor, error) {
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.neighbors) > topK {
		return f.neighbors[:topK], nil
	}
	return f.neighbors, nil
}

func neighbor(ref string, distance float64, created time.Time) vectorindex.Neighbor {
	return vectorindex.Neighbor{
		Ref:      ref,
		Distance: distance,
		Metadata: map[string]string{
			vectorindex.MetaServiceName:  "orders",
			vectorindex.MetaErrorLevel:   "ERROR",
			vectorindex.MetaErrorMessage: "msg " + ref,
			vectorindex.MetaCreatedAt:    created.Format(time.RFC3339Nano),
		},
	}
}

func TestRetrieve_NearDuplicateScenario(t *testing.T) {
	now := time.Now().UTC()
	queryID := uuid.New()
	selfRef := "log_" + queryID.String()
	idx := &fakeIndex{neighbors: []vectorindex.Neighbor{
		neighbor(selfRef, 0, now),
		neighbor("log_a", 0.10, now.Add(-time.Hour)),
		neighbor("log_b", 0.15, now.Add(-2*time.Hour)),
		neighbor("log_c", 0.22, now.Add(-3*time.Hour)),
		neighbor("log_d", 0.70, now.Add(-4*time.Hour)),
	}}

	matches, signal, err := New(idx, DefaultPatternThreshold).Retrieve(context.Background(), []float32{1, 0, 0}, selfRef, 5)
	require.NoError(t, err)

	assert.Equal(t, 6, idx.lastTopK)
	require.Len(t, matches, 4)
	wantScores := []float64{0.9, 0.85, 0.78, 0.3}
	for i, m := range matches {
		assert.InDelta(t, wantScores[i], m.Score, 1e-9)
		assert.NotEqual(t, selfRef, m.EmbeddingRef)
	}
	assert.True(t, signal.Detected)
	assert.Equal(t, 3, signal.Frequency)
}

func TestRetrieve_NeverExceedsTopK(t *testing.T) {
	now := time.Now()
	var ns []vectorindex.Neighbor
	for i := 0; i < 10; i++ {
		ns = append(ns, neighbor(fmt.Sprintf("log_%d", i), float64(i)/20, now))
	}
	idx := &fakeIndex{neighbors: ns}

	matches, _, err := New(idx, 0.75).Retrieve(context.Background(), []float32{1, 0, 0}, "", 3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestRetrieve_TiesBrokenByNewestFirst(t *testing.T) {
	now := time.Now().UTC()
	idx := &fakeIndex{neighbors: []vectorindex.Neighbor{
		neighbor("log_old", 0.2, now.Add(-time.Hour)),
		neighbor("log_new", 0.2, now),
	}}

	matches, _, err := New(idx, 0.75).Retrieve(context.Background(), []float32{1, 0, 0}, "", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "log_new", matches[0].EmbeddingRef)
	assert.Equal(t, "log_old", matches[1].EmbeddingRef)
}

func TestRetrieve_TieAtCutoffKeepsNewest(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex(3)
	base := time.Date(2024, 2, 17, 10, 0, 0, 0, time.UTC)
	for i, ref := range []string{"log_a", "log_b", "log_c"} {
		created := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, idx.Upsert(ctx, ref, []float32{1, 0, 0}, map[string]string{
			vectorindex.MetaCreatedAt: created.Format(time.RFC3339Nano),
		}))
	}

	matches, _, err := New(idx, 0.75).Retrieve(ctx, []float32{1, 0, 0}, "", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "log_c", matches[0].EmbeddingRef)
}

func TestRetrieve_NoNeighbors(t *testing.T) {
	matches, signal, err := New(&fakeIndex{}, 0.75).Retrieve(context.Background(), []float32{1, 0, 0}, "", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.False(t, signal.Detected)
	assert.Equal(t, 0, signal.Frequency)
}

func TestRetrieve_IndexFailureIsSurfaced(t *testing.T) {
	idx := &fakeIndex{err: fmt.Errorf("%w: connection reset", vectorindex.ErrUnavailable)}
	matches, _, err := New(idx, 0.75).Retrieve(context.Background(), []float32{1, 0, 0}, "", 5)
	require.Error(t, err)
	assert.Nil(t, matches)
	assert.True(t, errors.Is(err, vectorindex.ErrUnavailable))
}

func TestRetrieve_ParsesMetadata(t *testing.T) {
	id := uuid.New()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := neighbor("log_"+id.String(), 0.05, created)
	n.Metadata[vectorindex.MetaLogID] = id.String()
	n.Metadata[vectorindex.MetaErrorLevel] = "critical"

	matches, _, err := New(&fakeIndex{neighbors: []vectorindex.Neighbor{n}}, 0.75).
		Retrieve(context.Background(), []float32{1, 0, 0}, "", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, id, m.LogID)
	assert.Equal(t, "orders", m.ServiceName)
	assert.EqualValues(t, "FATAL", m.ErrorLevel)
	assert.True(t, created.Equal(m.CreatedAt))
}

func TestSimilarity_Clamps(t *testing.T) {
	assert.Equal(t, 1.0, Similarity(-0.0001))
	assert.Equal(t, 0.0, Similarity(1.5))
	assert.InDelta(t, 0.25, Similarity(0.75), 1e-12)
}

func TestDetectPattern_ThresholdInclusive(t *testing.T) {
	now := time.Now()
	idx := &fakeIndex{neighbors: []vectorindex.Neighbor{
		neighbor("log_a", 0.25, now),
		neighbor("log_b", 0.26, now),
	}}
	matches, signal, err := New(idx, 0.75).Retrieve(context.Background(), []float32{1, 0, 0}, "", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, 1, signal.Frequency)
	assert.True(t, signal.Detected)
}
