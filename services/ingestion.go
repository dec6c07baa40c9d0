package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"document-rag-platform/internal/ai"
	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

// DocumentStatusStore flips document lifecycle states as the pipeline
// progresses. *MetadataService is the production implementation.
type DocumentStatusStore interface {
	MarkReady(ctx context.Context, fileID string, charLength, chunksCount, vectorsCount int) error
	MarkFailed(ctx context.Context, fileID, message string) error
}

// IngestionService turns extracted text into indexed chunk vectors and
// owns the all-or-nothing guarantee: a document becomes ready only after
// every vector is durably indexed, and any failure leaves it failed with
// zero visible vectors.
type IngestionService struct {
	config    *config.Config
	chunker   *Chunker
	extractor *TextExtractor
	embedder  ai.Embedder
	index     vectorindex.Index
	metadata  DocumentStatusStore
	retry     ai.RetryPolicy
	metrics   *telemetry.Metrics
}

// IngestResult reports what a successful ingestion produced.
type IngestResult struct {
	ChunksCreated int
	VectorsStored int
	TextLength    int
}

// NewIngestionService creates a new ingestion service instance
func NewIngestionService(
	cfg *config.Config,
	chunker *Chunker,
	extractor *TextExtractor,
	embedder ai.Embedder,
	index vectorindex.Index,
	metadata DocumentStatusStore,
	retry ai.RetryPolicy,
	metrics *telemetry.Metrics,
) *IngestionService {
	return &IngestionService{
		config:    cfg,
		chunker:   chunker,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		metadata:  metadata,
		retry:     retry,
		metrics:   metrics,
	}
}

// IngestFile reads a stored file, extracts its text and runs the
// embedding pipeline. Used by both the synchronous upload path and the
// queue worker.
func (s *IngestionService) IngestFile(ctx context.Context, doc *models.Document) (*IngestResult, error) {
	content, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return nil, s.abort(doc.FileID, fmt.Errorf("failed to read stored file: %w", err))
	}

	extraction, err := s.extractor.Extract(ctx, doc.Filename, content)
	if err != nil {
		return nil, s.abort(doc.FileID, err)
	}

	return s.Ingest(ctx, doc.FileID, extraction.Text)
}

// Ingest chunks the text, embeds every chunk in one batched provider call
// and inserts the vectors as a single unit. Only then does the document
// flip to ready.
func (s *IngestionService) Ingest(ctx context.Context, fileID, text string) (*IngestResult, error) {
	start := time.Now()

	tracer := otel.Tracer("ingestion-service")
	ctx, span := tracer.Start(ctx, "ingestion.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingestion.file_id", fileID),
		attribute.Int("ingestion.text_length", len(text)),
	)

	chunks, err := s.chunker.Chunk(text)
	if err != nil {
		return nil, s.abort(fileID, err)
	}
	span.SetAttributes(attribute.Int("ingestion.chunks", len(chunks)))

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	// One batched provider call per document, retried on transient kinds.
	var vectors [][]float32
	err = s.retry.Do(ctx, "embed-document", func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = s.embedder.Embed(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, s.abort(fileID, err)
	}

	if len(vectors) != len(chunks) {
		return nil, s.abort(fileID, utils.NewError(utils.KindValidation,
			fmt.Sprintf("embedding count %d does not match chunk count %d", len(vectors), len(chunks))))
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = vectorindex.Record{
			ID:            vectorindex.RecordID(fileID, ch.SequenceIndex),
			DocumentID:    fileID,
			Text:          ch.Text,
			SequenceIndex: ch.SequenceIndex,
			CharStart:     ch.CharStart,
			CharEnd:       ch.CharEnd,
			Vector:        vectors[i],
		}
	}

	if err := s.index.Insert(ctx, records); err != nil {
		return nil, s.abort(fileID, err)
	}

	if err := s.metadata.MarkReady(ctx, fileID, len(text), len(chunks), len(records)); err != nil {
		return nil, s.abort(fileID, err)
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordIngest(models.StatusReady, len(chunks), len(records), duration.Seconds())
	}
	logger.Info("Document ingested",
		"file_id", fileID,
		"chunks", len(chunks),
		"vectors", len(records),
		"duration_ms", duration.Milliseconds(),
	)

	return &IngestResult{
		ChunksCreated: len(chunks),
		VectorsStored: len(records),
		TextLength:    len(text),
	}, nil
}

// abort marks the document failed and removes any vectors already
// written. Cleanup runs on a detached context since the request context
// may be the reason the ingestion failed; leftovers an unreachable index
// refuses to delete now are picked up by the cascade delete path later.
func (s *IngestionService) abort(fileID string, cause error) error {
	cleanupCtx, cancel := utils.WithLongTimeout(context.Background())
	defer cancel()

	if err := s.index.DeleteByDocument(cleanupCtx, fileID); err != nil {
		logger.Error("Failed to clean up vectors for aborted ingestion",
			"file_id", fileID, "error", err.Error())
	}
	if err := s.metadata.MarkFailed(cleanupCtx, fileID, cause.Error()); err != nil {
		logger.Error("Failed to mark document failed",
			"file_id", fileID, "error", err.Error())
	}

	if s.metrics != nil {
		s.metrics.RecordIngest(models.StatusFailed, 0, 0, 0)
	}
	logger.Error("Document ingestion aborted", "file_id", fileID, "error", cause.Error())
	return cause
}
