package storage

import (
	"context"
	"sort"
	"sync"

	"videomoments/core"
)

// VectorIndex abstracts the derived nearest-neighbor backend. Upserts
// are keyed by record ID; Search returns raw hits with cosine scores.
type VectorIndex interface {
	Upsert(ctx context.Context, records []core.Record, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]core.RawHit, error)
	IDs(ctx context.Context) (map[string]struct{}, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// MemoryVectorIndex keeps everything in process. Default backend and
// the fallback when Postgres/Milvus are unreachable.
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	records map[string]core.Record
	vectors map[string][]float32
}

func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{
		records: map[string]core.Record{},
		vectors: map[string][]float32{},
	}
}

func (m *MemoryVectorIndex) Upsert(_ context.Context, records []core.Record, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range records {
		m.records[r.ID] = r
		m.vectors[r.ID] = vectors[i]
	}
	return nil
}

func (m *MemoryVectorIndex) Search(_ context.Context, vector []float32, topK int) ([]core.RawHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]core.RawHit, 0, len(m.records))
	for id, r := range m.records {
		hits = append(hits, core.RawHit{
			ID:        id,
			SourceID:  r.SourceID,
			Timestamp: r.Timestamp,
			Text:      r.Text,
			Score:     Cosine(vector, m.vectors[id]),
			Modality:  r.Modality,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryVectorIndex) IDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]struct{}, len(m.records))
	for id := range m.records {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *MemoryVectorIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryVectorIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = map[string]core.Record{}
	m.vectors = map[string][]float32{}
	return nil
}
