package vectorindex

import (
	"context"
	"sync"
)

var _ Index = (*MemoryIndex)(nil)

type memoryEntry struct {
	vector   []float32
	metadata map[string]string
}

// MemoryIndex is a brute-force in-process index. Contents are lost on restart.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]memoryEntry
}

// NewMemoryIndex creates an empty index for vectors of length dim.
func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim, entries: make(map[string]memoryEntry)}
}

func (m *MemoryIndex) Dimension() int { return m.dim }

func (m *MemoryIndex) Upsert(_ context.Context, ref string, vector []float32, metadata map[string]string) error {
	if err := checkDim(vector, m.dim); err != nil {
		return err
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ref] = memoryEntry{vector: vec, metadata: copyMeta(metadata)}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]Neighbor, error) {
	if err := checkDim(vector, m.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Neighbor{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	results := make([]Neighbor, 0, len(m.entries))
	for ref, e := range m.entries {
		results = append(results, Neighbor{
			Ref:      ref,
			Distance: CosineDistance(vector, e.vector),
			Metadata: copyMeta(e.metadata),
		})
	}
	m.mu.RUnlock()

	sortNeighbors(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryIndex) Get(_ context.Context, ref string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[ref]
	if !ok {
		return nil, false, nil
	}
	vec := make([]float32, len(e.vector))
	copy(vec, e.vector)
	return vec, true, nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
