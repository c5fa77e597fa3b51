package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	FilesIngested       metric.Int64Counter
	ChunksCreated       metric.Int64Counter
	EmbeddingBatches    metric.Int64Counter
	IngestionDuration   metric.Float64Histogram
	VectorSearchLatency metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("persona-advisor")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	filesIngested, err := meter.Int64Counter(
		"ingestion.files.total",
		metric.WithDescription("Total files processed by ingestion jobs"),
	)
	if err != nil {
		return nil, err
	}

	chunksCreated, err := meter.Int64Counter(
		"ingestion.chunks.total",
		metric.WithDescription("Total segments created by ingestion jobs"),
	)
	if err != nil {
		return nil, err
	}

	embeddingBatches, err := meter.Int64Counter(
		"embedding.batches.total",
		metric.WithDescription("Total embedding batch calls"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"ingestion.job.duration",
		metric.WithDescription("Ingestion job duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	vectorSearchLatency, err := meter.Float64Histogram(
		"vector.search.duration",
		metric.WithDescription("Vector similarity search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		FilesIngested:       filesIngested,
		ChunksCreated:       chunksCreated,
		EmbeddingBatches:    embeddingBatches,
		IngestionDuration:   ingestionDuration,
		VectorSearchLatency: vectorSearchLatency,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngestion records per-job ingestion metrics
func (m *Metrics) RecordIngestion(files, chunks int64, duration float64, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("job.status", status),
	}

	m.FilesIngested.Add(context.Background(), files, metric.WithAttributes(attrs...))
	m.ChunksCreated.Add(context.Background(), chunks, metric.WithAttributes(attrs...))
	m.IngestionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordEmbeddingBatch records one embedding batch call
func (m *Metrics) RecordEmbeddingBatch(size int, success bool) {
	attrs := []attribute.KeyValue{
		attribute.Int("batch.size", size),
		attribute.Bool("batch.success", success),
	}

	m.EmbeddingBatches.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordVectorSearch records similarity search latency
func (m *Metrics) RecordVectorSearch(duration float64, namespace string) {
	attrs := []attribute.KeyValue{
		attribute.String("vector.namespace", namespace),
	}

	m.VectorSearchLatency.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
