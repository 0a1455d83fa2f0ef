// Package vectorindex stores embedding vectors and answers nearest-neighbor
// queries by cosine distance.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrDimensionMismatch means a vector's length differs from the index
	// dimension. Mixing dimensions in one index is a configuration error.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnavailable wraps backend failures (database unreachable, query error).
	ErrUnavailable = errors.New("vector index unavailable")
)

// Metadata keys written by ingestion and read by retrieval.
const (
	MetaLogID        = "log_id"
	MetaServiceName  = "service_name"
	MetaErrorLevel   = "error_level"
	MetaErrorMessage = "error_message"
	MetaCreatedAt    = "created_at"
)

// Neighbor is one query result. Distance is cosine distance in [0, 2];
// lower is closer.
type Neighbor struct {
	Ref      string
	Distance float64
	Metadata map[string]string
}

// Index is the vector store contract. Query results are ordered by ascending
// distance. Implementations must be safe for concurrent use.
type Index interface {
	Upsert(ctx context.Context, ref string, vector []float32, metadata map[string]string) error
	Query(ctx context.Context, vector []float32, topK int) ([]Neighbor, error)
	Get(ctx context.Context, ref string) ([]float32, bool, error)
	Count(ctx context.Context) (int, error)
	Dimension() int
}

func checkDim(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, index dimension is %d", ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

// CosineDistance returns 1 - cosine similarity, accumulated in float64.
// A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

// sortNeighbors orders by distance, then newest MetaCreatedAt, then ref, so a
// cut at topK keeps the most recent of equally distant records.
func sortNeighbors(ns []Neighbor) {
	created := make(map[string]time.Time, len(ns))
	for _, n := range ns {
		created[n.Ref], _ = time.Parse(time.RFC3339Nano, n.Metadata[MetaCreatedAt])
	}
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		if ti, tj := created[ns[i].Ref], created[ns[j].Ref]; !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ns[i].Ref < ns[j].Ref
	})
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
