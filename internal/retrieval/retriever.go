// Package retrieval finds historical log records similar to a query vector
// and flags recurring error patterns.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/logresolver/internal/vectorindex"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// DefaultPatternThreshold is the similarity at or above which a match counts
// toward the pattern signal.
const DefaultPatternThreshold = 0.75

// Retriever queries the vector index and converts neighbors into scored matches.
type Retriever struct {
	index     vectorindex.Index
	threshold float64
}

// New creates a Retriever. threshold is the pattern similarity threshold.
func New(index vectorindex.Index, threshold float64) *Retriever {
	return &Retriever{index: index, threshold: threshold}
}

// Threshold returns the configured pattern threshold.
func (r *Retriever) Threshold() float64 { return r.threshold }

// Retrieve returns at most topK matches for vector, never including
// excludeRef, ordered by descending score with newer records first on ties.
// An index failure is returned as an error, never as an empty result.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, excludeRef string, topK int) ([]models.SimilarityMatch, models.PatternSignal, error) {
	if topK <= 0 {
		return []models.SimilarityMatch{}, models.PatternSignal{}, nil
	}

	// One extra neighbor covers the query record finding itself.
	neighbors, err := r.index.Query(ctx, vector, topK+1)
	if err != nil {
		return nil, models.PatternSignal{}, fmt.Errorf("querying vector index: %w", err)
	}

	matches := make([]models.SimilarityMatch, 0, len(neighbors))
	for _, n := range neighbors {
		if excludeRef != "" && n.Ref == excludeRef {
			continue
		}
		matches = append(matches, toMatch(n))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, DetectPattern(matches, r.threshold), nil
}

// DetectPattern counts matches scoring at or above threshold.
func DetectPattern(matches []models.SimilarityMatch, threshold float64) models.PatternSignal {
	freq := 0
	for _, m := range matches {
		if m.Score >= threshold {
			freq++
		}
	}
	return models.PatternSignal{Detected: freq > 0, Frequency: freq}
}

// Similarity converts cosine distance to a score in [0, 1]. Orthogonal or
// opposed vectors score 0.
func Similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func toMatch(n vectorindex.Neighbor) models.SimilarityMatch {
	m := models.SimilarityMatch{
		EmbeddingRef: n.Ref,
		Score:        Similarity(n.Distance),
		ServiceName:  n.Metadata[vectorindex.MetaServiceName],
		ErrorMessage: n.Metadata[vectorindex.MetaErrorMessage],
		ErrorLevel:   models.LevelUnknown,
	}

	if id, err := uuid.Parse(n.Metadata[vectorindex.MetaLogID]); err == nil {
		m.LogID = id
	} else if id, err := uuid.Parse(strings.TrimPrefix(n.Ref, "log_")); err == nil {
		m.LogID = id
	}
	if lvl, ok := models.ParseErrorLevel(n.Metadata[vectorindex.MetaErrorLevel]); ok {
		m.ErrorLevel = lvl
	}
	if ts, err := time.Parse(time.RFC3339Nano, n.Metadata[vectorindex.MetaCreatedAt]); err == nil {
		m.CreatedAt = ts
	}
	return m
}
