package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"persona-advisor/internal/ai"
	"persona-advisor/internal/vector"
)

type fakeQueryEmbedder struct {
	vec []float32
	err error
}

func (e *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func seedNamespace(t *testing.T, store *vector.MemoryStore, namespace string) {
	t.Helper()
	records := []vector.Record{
		{ID: "r1", Vector: []float32{1, 0, 0}, Metadata: vector.Metadata{Excerpt: "closest match", Source: "a.txt"}},
		{ID: "r2", Vector: []float32{0.7, 0.7, 0}, Metadata: vector.Metadata{Excerpt: "middle match", Source: "b.txt"}},
		{ID: "r3", Vector: []float32{0, 0, 1}, Metadata: vector.Metadata{Excerpt: "distant match", Source: "c.txt"}},
	}
	if _, err := store.Upsert(context.Background(), namespace, records); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
}

func TestRetrieveNumbersCitationsByScore(t *testing.T) {
	store := vector.NewMemoryStore(3)
	seedNamespace(t, store, "ns")
	embedder := &fakeQueryEmbedder{vec: []float32{1, 0, 0}}
	r := NewRetriever(store, embedder, 6, 500, nil)

	citations, err := r.Retrieve(context.Background(), "ns", "anything", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(citations))
	}
	if citations[0].ID != "r1" || citations[1].ID != "r2" {
		t.Errorf("order = %s, %s; want r1, r2", citations[0].ID, citations[1].ID)
	}
	for i, c := range citations {
		if c.Number != i+1 {
			t.Errorf("citation %d numbered %d", i, c.Number)
		}
	}
	if citations[0].Score < citations[1].Score {
		t.Error("citations not score-descending")
	}
}

func TestRetrieveEmptyNamespace(t *testing.T) {
	store := vector.NewMemoryStore(3)
	embedder := &fakeQueryEmbedder{vec: []float32{1, 0, 0}}
	r := NewRetriever(store, embedder, 6, 500, nil)

	citations, err := r.Retrieve(context.Background(), "never-populated", "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if citations != nil {
		t.Errorf("got %d citations from empty namespace, want none", len(citations))
	}
}

func TestRetrievePropagatesEmptyQuery(t *testing.T) {
	store := vector.NewMemoryStore(3)
	seedNamespace(t, store, "ns")
	embedder := &fakeQueryEmbedder{err: ai.ErrEmptyQuery}
	r := NewRetriever(store, embedder, 6, 500, nil)

	if _, err := r.Retrieve(context.Background(), "ns", "   ", 3); !errors.Is(err, ai.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestRetrieveSwallowsProviderFailure(t *testing.T) {
	store := vector.NewMemoryStore(3)
	seedNamespace(t, store, "ns")
	embedder := &fakeQueryEmbedder{err: errors.New("upstream 503")}
	r := NewRetriever(store, embedder, 6, 500, nil)

	citations, err := r.Retrieve(context.Background(), "ns", "anything", 3)
	if err != nil {
		t.Fatalf("provider failure should degrade, got %v", err)
	}
	if citations != nil {
		t.Errorf("got %d citations despite provider failure", len(citations))
	}
}

func TestRetrieveDefaultTopK(t *testing.T) {
	store := vector.NewMemoryStore(3)
	seedNamespace(t, store, "ns")
	embedder := &fakeQueryEmbedder{vec: []float32{1, 0, 0}}
	r := NewRetriever(store, embedder, 2, 500, nil)

	citations, err := r.Retrieve(context.Background(), "ns", "anything", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(citations) != 2 {
		t.Errorf("got %d citations, want default top-k of 2", len(citations))
	}
}

func TestRetrieveTruncatesExcerpts(t *testing.T) {
	store := vector.NewMemoryStore(2)
	long := strings.Repeat("x", 120)
	records := []vector.Record{
		{ID: "big", Vector: []float32{1, 0}, Metadata: vector.Metadata{Excerpt: long, Source: "big.txt"}},
	}
	if _, err := store.Upsert(context.Background(), "ns", records); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	embedder := &fakeQueryEmbedder{vec: []float32{1, 0}}
	r := NewRetriever(store, embedder, 6, 100, nil)

	citations, err := r.Retrieve(context.Background(), "ns", "anything", 1)
	if err != nil || len(citations) != 1 {
		t.Fatalf("Retrieve: %v, %d citations", err, len(citations))
	}
	if got := citations[0].Excerpt; got != long[:100]+"..." {
		t.Errorf("excerpt not truncated: len=%d", len(got))
	}
}

func TestTruncateExcerptRuneSafe(t *testing.T) {
	text := strings.Repeat("é", 60)
	out := truncateExcerpt(text, 50)
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected truncation suffix, got %q", out)
	}
	if got := len([]rune(strings.TrimSuffix(out, "..."))); got != 50 {
		t.Errorf("kept %d runes, want 50", got)
	}
}
