package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used for tests and for running the
// stack without a Qdrant instance (VECTOR_STORE=memory). Semantics match
// QdrantStore: implicit namespace creation, idempotent upsert by id,
// cosine similarity ordering.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]Record
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension:  dimension,
		namespaces: make(map[string]map[string]Record),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i := range records {
		if len(records[i].Vector) != s.dimension {
			return 0, fmt.Errorf("record %d: vector dimension %d, store expects %d", i, len(records[i].Vector), s.dimension)
		}
		if records[i].ID == "" {
			records[i].ID = RecordID(records[i].Metadata.PersonaID, records[i].Metadata.ContentHash, i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		ns[r.ID] = r
	}
	return len(records), nil
}

func (s *MemoryStore) Search(ctx context.Context, namespace string, queryVector []float32, k int, filter *Filter) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok || len(ns) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(ns))
	for _, r := range ns {
		if !filter.matches(r.Metadata) {
			continue
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    cosineSimilarity(queryVector, r.Vector),
			Metadata: r.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *MemoryStore) NamespaceStats(ctx context.Context, namespace string) (bool, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return false, 0, nil
	}
	count := int64(len(ns))
	return count > 0, count, nil
}

func (s *MemoryStore) DeleteNamespace(ctx context.Context, namespace string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[namespace]; !ok {
		return false, nil
	}
	delete(s.namespaces, namespace)
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ Store = (*MemoryStore)(nil)
