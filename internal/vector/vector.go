package vector

import (
	"context"
	"fmt"
	"time"

	"persona-advisor/utils"
)

// Metadata is the payload stored alongside each vector.
type Metadata struct {
	Excerpt     string
	Source      string
	FileType    string
	ContentHash string
	CharStart   int
	CharEnd     int
	PersonaID   string
	TopicTags   []string
	CreatedAt   time.Time
}

// Record is a single (id, vector, metadata) triple bound for a namespace.
// ID may be left empty; Upsert derives a deterministic one from the
// metadata's persona id, content hash and the record's position.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is one similarity-search hit, higher score = more similar.
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Filter narrows a search to records whose metadata matches every set
// field exactly. A nil filter matches everything.
type Filter struct {
	Source   string
	FileType string
}

// Store provides namespace-scoped vector storage and similarity search.
// Namespaces are created implicitly on first write and removed explicitly.
type Store interface {
	// Upsert writes records into the namespace in provider-sized batches
	// and returns the number written. A batch failure aborts the call;
	// the returned count covers only batches that completed.
	Upsert(ctx context.Context, namespace string, records []Record) (int, error)
	// Search returns the top-k most similar records, optionally narrowed
	// by a metadata filter. A missing or empty namespace yields an empty
	// result, not an error.
	Search(ctx context.Context, namespace string, queryVector []float32, k int, filter *Filter) ([]Match, error)
	// NamespaceStats reports whether the namespace holds any vectors and
	// how many. A namespace with zero vectors reports exists=false.
	NamespaceStats(ctx context.Context, namespace string) (bool, int64, error)
	// DeleteNamespace removes the namespace and all of its vectors.
	// Deleting a nonexistent namespace is benign and returns false.
	DeleteNamespace(ctx context.Context, namespace string) (bool, error)
	Close() error
}

func (f *Filter) matches(m Metadata) bool {
	if f == nil {
		return true
	}
	if f.Source != "" && f.Source != m.Source {
		return false
	}
	if f.FileType != "" && f.FileType != m.FileType {
		return false
	}
	return true
}

// RecordID builds the stable identifier for a stored vector, so that
// re-upserting identical content lands on the same record.
func RecordID(personaID, contentHash string, seq int) string {
	return fmt.Sprintf("%s_%s_%d", personaID, utils.HashPrefix(contentHash, 8), seq)
}
