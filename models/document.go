package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document lifecycle states. A document enters the store as processing and
// transitions exactly once to ready or failed; terminal states never revert.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document is the metadata record for one ingested file or fetched page.
type Document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	FileID       string             `bson:"file_id" json:"file_id"`
	Filename     string             `bson:"filename" json:"filename"`
	FileType     string             `bson:"file_type" json:"file_type"`
	FileSize     int64              `bson:"file_size" json:"file_size"`
	FilePath     string             `bson:"file_path,omitempty" json:"-"`
	SourceURL    string             `bson:"source_url,omitempty" json:"source_url,omitempty"`
	ContentHash  string             `bson:"content_hash,omitempty" json:"-"`
	CharLength   int                `bson:"char_length" json:"char_length"`
	ChunksCount  int                `bson:"chunks_count" json:"chunks_count"`
	VectorsCount int                `bson:"vectors_count" json:"vectors_count"`
	Status       string             `bson:"status" json:"status"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// UploadResponse represents the response after an upload is accepted.
// Chunk and vector counts are only present for synchronous processing;
// async uploads report a task id and poll the status endpoint instead.
type UploadResponse struct {
	FileID         string `json:"file_id"`
	Filename       string `json:"filename"`
	Status         string `json:"status"`
	ChunksCreated  int    `json:"chunks_created,omitempty"`
	VectorsStored  int    `json:"vectors_stored,omitempty"`
	TextLength     int    `json:"text_length,omitempty"`
	ProcessingMode string `json:"processing_mode"`
	TaskID         string `json:"task_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// StoreStats aggregates document metadata totals for the stats endpoint.
type StoreStats struct {
	TotalDocuments int64            `json:"total_documents"`
	TotalChunks    int64            `json:"total_chunks"`
	TotalVectors   int64            `json:"total_vectors"`
	TotalSizeBytes int64            `json:"total_size_bytes"`
	TotalSizeMB    float64          `json:"total_size_mb"`
	ByStatus       map[string]int64 `json:"by_status"`
}
