package vector

import (
	"fmt"

	"persona-advisor/internal/config"
)

// NewStoreFromConfig builds the configured Store implementation.
func NewStoreFromConfig(cfg *config.Config) (Store, error) {
	switch cfg.VectorStore {
	case "qdrant":
		return NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort, cfg.VectorDimension)
	case "memory":
		return NewMemoryStore(cfg.VectorDimension), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", cfg.VectorStore)
	}
}
