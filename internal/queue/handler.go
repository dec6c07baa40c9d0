package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"document-rag-platform/internal/logger"
	"document-rag-platform/models"
	"document-rag-platform/services"
	"document-rag-platform/utils"
)

// FileIngester runs the ingestion pipeline for one stored document.
// *services.IngestionService is the production implementation.
type FileIngester interface {
	IngestFile(ctx context.Context, doc *models.Document) (*services.IngestResult, error)
}

// TaskProcessor handles queued tasks on the worker side.
type TaskProcessor struct {
	ingestion FileIngester
	metadata  services.DocumentLookup
}

func NewTaskProcessor(ingestion FileIngester, metadata services.DocumentLookup) *TaskProcessor {
	return &TaskProcessor{
		ingestion: ingestion,
		metadata:  metadata,
	}
}

// HandleDocumentIngest runs the ingestion pipeline for a queued document.
//
// Failures inside the pipeline already mark the document failed and remove
// partial vectors, so a task-level retry would find the document no longer
// in processing and skip it. Retries therefore only cover failures that
// happen before the pipeline takes ownership, such as a metadata lookup
// hitting a transient database error.
func (p *TaskProcessor) HandleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	var payload DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing queued document", "file_id", payload.FileID)

	doc, err := p.metadata.GetByFileID(ctx, payload.FileID)
	if err != nil {
		if utils.IsKind(err, utils.KindNotFound) {
			// Deleted between enqueue and pickup.
			logger.Warn("Queued document no longer exists", "file_id", payload.FileID)
			return fmt.Errorf("document %s not found: %w", payload.FileID, asynq.SkipRetry)
		}
		return err
	}

	if doc.Status != models.StatusProcessing {
		logger.Warn("Skipping queued document in terminal status",
			"file_id", payload.FileID,
			"status", doc.Status)
		return nil
	}

	result, err := p.ingestion.IngestFile(ctx, doc)
	if err != nil {
		return fmt.Errorf("ingestion failed for %s: %v: %w", payload.FileID, err, asynq.SkipRetry)
	}

	logger.Info("Queued document ingested",
		"file_id", payload.FileID,
		"chunks", result.ChunksCreated,
		"vectors", result.VectorsStored)
	return nil
}
