package services

import (
	"context"
	"errors"
	"time"

	"persona-advisor/internal/ai"
	"persona-advisor/internal/logger"
	"persona-advisor/internal/telemetry"
	"persona-advisor/internal/vector"
	"persona-advisor/models"
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever performs similarity search over a persona's namespace and
// shapes the hits into numbered citations. Provider failures degrade to an
// empty result so callers can fall back to an ungrounded answer.
type Retriever struct {
	store         vector.Store
	embedder      QueryEmbedder
	defaultTopK   int
	excerptMaxLen int
	metrics       *telemetry.Metrics
}

func NewRetriever(store vector.Store, embedder QueryEmbedder, defaultTopK, excerptMaxLen int, metrics *telemetry.Metrics) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = 6
	}
	if excerptMaxLen <= 0 {
		excerptMaxLen = 500
	}
	return &Retriever{
		store:         store,
		embedder:      embedder,
		defaultTopK:   defaultTopK,
		excerptMaxLen: excerptMaxLen,
		metrics:       metrics,
	}
}

// Retrieve returns up to k citations for the query, score-descending.
// An unready namespace or a provider failure yields an empty slice; only
// an invalid query is reported as an error.
func (r *Retriever) Retrieve(ctx context.Context, namespace, query string, k int) ([]models.Citation, error) {
	if k <= 0 {
		k = r.defaultTopK
	}

	exists, count, err := r.store.NamespaceStats(ctx, namespace)
	if err != nil {
		logger.Warn("namespace readiness check failed", "namespace", namespace, "error", err.Error())
		return nil, nil
	}
	if !exists || count == 0 {
		return nil, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if errors.Is(err, ai.ErrEmptyQuery) {
			return nil, err
		}
		logger.Warn("query embedding failed", "namespace", namespace, "error", err.Error())
		return nil, nil
	}

	start := time.Now()
	matches, err := r.store.Search(ctx, namespace, queryVector, k, nil)
	if err != nil {
		logger.Warn("similarity search failed", "namespace", namespace, "error", err.Error())
		return nil, nil
	}
	if r.metrics != nil {
		r.metrics.RecordVectorSearch(time.Since(start).Seconds(), namespace)
	}

	citations := make([]models.Citation, len(matches))
	for i, m := range matches {
		citations[i] = models.Citation{
			Number:  i + 1,
			ID:      m.ID,
			Excerpt: truncateExcerpt(m.Metadata.Excerpt, r.excerptMaxLen),
			Source:  m.Metadata.Source,
			Score:   m.Score,
		}
	}
	return citations, nil
}

func truncateExcerpt(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
