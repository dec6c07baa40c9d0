package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

// MetadataService provides document metadata bookkeeping backed by MongoDB.
// It owns the status lifecycle: processing transitions exactly once to
// ready or failed and terminal states never revert.
type MetadataService struct {
	config     *config.Config
	collection *mongo.Collection
}

// NewMetadataService creates a new metadata service instance
func NewMetadataService(cfg *config.Config, collection *mongo.Collection) *MetadataService {
	return &MetadataService{
		config:     cfg,
		collection: collection,
	}
}

// EnsureIndexes creates the collection indexes used by the lookup paths.
// Called once at startup; CreateMany is a no-op for indexes that exist.
func (s *MetadataService) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "file_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "content_hash", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "uploaded_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create document indexes: %w", err)
	}
	return nil
}

// Create inserts a new document record in processing status.
func (s *MetadataService) Create(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusProcessing
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewError(utils.KindValidation,
				fmt.Sprintf("document already exists: %s", doc.FileID))
		}
		return fmt.Errorf("failed to save document metadata: %w", err)
	}
	return nil
}

// GetByFileID returns the document record or a not_found error.
func (s *MetadataService) GetByFileID(ctx context.Context, fileID string) (*models.Document, error) {
	var doc models.Document
	err := s.collection.FindOne(ctx, bson.M{"file_id": fileID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewError(utils.KindNotFound,
			fmt.Sprintf("document not found: %s", fileID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document metadata: %w", err)
	}
	return &doc, nil
}

// FindByContentHash looks up an existing document with the same content
// hash so re-uploads can be answered without re-ingesting. Returns nil
// when no usable duplicate exists.
func (s *MetadataService) FindByContentHash(ctx context.Context, hash string) (*models.Document, error) {
	var doc models.Document
	err := s.collection.FindOne(ctx, bson.M{
		"content_hash": hash,
		"status":       bson.M{"$in": []string{models.StatusProcessing, models.StatusReady}},
	}).Decode(&doc)

	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	return &doc, nil
}

// List returns documents newest first along with the total count.
func (s *MetadataService) List(ctx context.Context, limit, offset int64) ([]models.Document, int64, error) {
	total, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	opts := options.Find().
		SetSort(bson.M{"uploaded_at": -1}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	docs := make([]models.Document, 0, limit)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, total, nil
}

// MarkReady flips a processing document to ready and records the final
// chunk and vector counts. A document already in a terminal state is left
// untouched.
func (s *MetadataService) MarkReady(ctx context.Context, fileID string, charLength, chunksCount, vectorsCount int) error {
	return s.transition(ctx, fileID, bson.M{
		"status":        models.StatusReady,
		"char_length":   charLength,
		"chunks_count":  chunksCount,
		"vectors_count": vectorsCount,
		"error_message": "",
		"updated_at":    time.Now().UTC(),
	})
}

// MarkFailed flips a processing document to failed with an explanation.
func (s *MetadataService) MarkFailed(ctx context.Context, fileID, message string) error {
	return s.transition(ctx, fileID, bson.M{
		"status":        models.StatusFailed,
		"error_message": message,
		"updated_at":    time.Now().UTC(),
	})
}

// transition applies a terminal status update guarded on the document
// still being in processing. A no-op match means the document either does
// not exist or already reached a terminal state; the former is an error,
// the latter is logged and ignored so retried workers stay idempotent.
func (s *MetadataService) transition(ctx context.Context, fileID string, set bson.M) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"file_id": fileID, "status": models.StatusProcessing},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	doc, err := s.GetByFileID(ctx, fileID)
	if err != nil {
		return err
	}
	logger.Warn("Ignoring status transition for document already in terminal state",
		"file_id", fileID,
		"current_status", doc.Status,
		"requested_status", set["status"],
	)
	return nil
}

// Delete removes the metadata record. The caller is responsible for
// cascading the vector index and stored file.
func (s *MetadataService) Delete(ctx context.Context, fileID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"file_id": fileID})
	if err != nil {
		return fmt.Errorf("failed to delete document metadata: %w", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewError(utils.KindNotFound,
			fmt.Sprintf("document not found: %s", fileID))
	}
	return nil
}

// Stats aggregates totals across all documents for the stats endpoint.
func (s *MetadataService) Stats(ctx context.Context) (*models.StoreStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":           "$status",
			"count":         bson.M{"$sum": 1},
			"total_size":    bson.M{"$sum": "$file_size"},
			"total_chunks":  bson.M{"$sum": "$chunks_count"},
			"total_vectors": bson.M{"$sum": "$vectors_count"},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate document stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status       string `bson:"_id"`
		Count        int64  `bson:"count"`
		TotalSize    int64  `bson:"total_size"`
		TotalChunks  int64  `bson:"total_chunks"`
		TotalVectors int64  `bson:"total_vectors"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode document stats: %w", err)
	}

	stats := &models.StoreStats{ByStatus: make(map[string]int64)}
	for _, row := range rows {
		stats.TotalDocuments += row.Count
		stats.TotalChunks += row.TotalChunks
		stats.TotalVectors += row.TotalVectors
		stats.TotalSizeBytes += row.TotalSize
		stats.ByStatus[row.Status] = row.Count
	}
	stats.TotalSizeMB = float64(stats.TotalSizeBytes) / (1024 * 1024)
	return stats, nil
}

// MarkStaleProcessing fails documents stuck in processing longer than
// maxAge. Crashed workers leave these behind; queries against them would
// otherwise report document_not_ready forever.
func (s *MetadataService) MarkStaleProcessing(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.collection.UpdateMany(ctx,
		bson.M{"status": models.StatusProcessing, "updated_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{
			"status":        models.StatusFailed,
			"error_message": "processing timed out",
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale documents: %w", err)
	}
	return result.ModifiedCount, nil
}
