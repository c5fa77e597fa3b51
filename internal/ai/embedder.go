package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"persona-advisor/internal/logger"
)

// ErrEmptyQuery is returned by EmbedQuery before any network call is made.
var ErrEmptyQuery = errors.New("query text is empty")

// EmbeddingProvider turns one batch of texts into vectors, order-preserving.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder batches texts to the provider with retry, backoff and an
// inter-batch delay to stay under provider throughput limits.
type Embedder struct {
	provider   EmbeddingProvider
	batchSize  int
	maxRetries int
	batchDelay time.Duration
	retryBase  time.Duration
}

func NewEmbedder(provider EmbeddingProvider, batchSize, maxRetries int, batchDelay time.Duration) *Embedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Embedder{
		provider:   provider,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		batchDelay: batchDelay,
		retryBase:  time.Second,
	}
}

// EmbedDocuments returns one vector per input text, in input order. If a
// batch fails after all retries but earlier batches succeeded, the partial
// result is returned rather than discarding completed work; the caller can
// tell from the length. With no completed batch, the failure propagates.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if start > 0 && e.batchDelay > 0 {
			select {
			case <-time.After(e.batchDelay):
			case <-ctx.Done():
				if len(vectors) > 0 {
					return vectors, nil
				}
				return nil, ctx.Err()
			}
		}

		batchVecs, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			if len(vectors) > 0 {
				logger.Warn("embedding batch failed after retries, returning partial result",
					"embedded", len(vectors), "total", len(texts), "error", err.Error())
				return vectors, nil
			}
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(batchVecs) != len(batch) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(batchVecs), len(batch))
		}
		vectors = append(vectors, batchVecs...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string. Empty or whitespace-only input
// is rejected before any network call.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	vecs, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("provider returned %d vectors for a single query", len(vecs))
	}
	return vecs[0], nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.retryBase * time.Duration(1<<(attempt-1))
			logger.Warn("embedding retry", "attempt", attempt, "backoff", backoff.String())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		vecs, err := e.provider.EmbedBatch(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
