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
	DocumentsIngested   metric.Int64Counter
	ChunksCreated       metric.Int64Counter
	VectorsInserted     metric.Int64Counter
	IngestDuration      metric.Float64Histogram
	QueryDuration       metric.Float64Histogram
	ProviderTokens      metric.Int64Counter
	CacheEvents         metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	IndexOperations     metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("document-rag-platform")

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

	documentsIngested, err := meter.Int64Counter(
		"ingest.documents.total",
		metric.WithDescription("Documents ingested, by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	chunksCreated, err := meter.Int64Counter(
		"ingest.chunks.total",
		metric.WithDescription("Chunks produced by the chunker"),
	)
	if err != nil {
		return nil, err
	}

	vectorsInserted, err := meter.Int64Counter(
		"index.vectors.inserted",
		metric.WithDescription("Vectors inserted into the index"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query.duration",
		metric.WithDescription("Query pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	providerTokens, err := meter.Int64Counter(
		"provider.tokens.used",
		metric.WithDescription("Provider tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	cacheEvents, err := meter.Int64Counter(
		"query.cache.events",
		metric.WithDescription("Query cache hits and misses"),
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

	indexOperations, err := meter.Int64Counter(
		"index.operations.total",
		metric.WithDescription("Vector index operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		DocumentsIngested:   documentsIngested,
		ChunksCreated:       chunksCreated,
		VectorsInserted:     vectorsInserted,
		IngestDuration:      ingestDuration,
		QueryDuration:       queryDuration,
		ProviderTokens:      providerTokens,
		CacheEvents:         cacheEvents,
		CircuitBreakerState: circuitBreakerState,
		IndexOperations:     indexOperations,
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

// RecordIngest records one completed ingestion attempt.
func (m *Metrics) RecordIngest(status string, chunks, vectors int, duration float64) {
	statusAttr := metric.WithAttributes(attribute.String("ingest.status", status))

	m.DocumentsIngested.Add(context.Background(), 1, statusAttr)
	m.IngestDuration.Record(context.Background(), duration, statusAttr)
	if chunks > 0 {
		m.ChunksCreated.Add(context.Background(), int64(chunks))
	}
	if vectors > 0 {
		m.VectorsInserted.Add(context.Background(), int64(vectors))
	}
}

// RecordQuery records query pipeline metrics
func (m *Metrics) RecordQuery(duration float64, cached bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("query.cached", cached),
	}
	m.QueryDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordProviderTokens records provider token usage
func (m *Metrics) RecordProviderTokens(tokens int64, provider, operation string) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}

	m.ProviderTokens.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordCacheEvent records a query cache hit or miss
func (m *Metrics) RecordCacheEvent(hit bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("cache.hit", hit),
	}
	m.CacheEvents.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordIndexOperation records vector index operation metrics
func (m *Metrics) RecordIndexOperation(operation string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("index.operation", operation),
		attribute.Bool("index.success", success),
	}

	m.IndexOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
