package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/internal/webfetch"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

// TaskEnqueuer queues a document for background ingestion. Implemented by
// the queue client; the service only needs the enqueue side.
type TaskEnqueuer interface {
	EnqueueDocumentIngest(ctx context.Context, fileID string) (string, error)
}

// DocumentService owns the document lifecycle from upload to deletion:
// validation, storage, deduplication, dispatch to sync or async ingestion,
// and the cleanup cascade on delete.
type DocumentService struct {
	config    *config.Config
	storage   *FileStorage
	metadata  *MetadataService
	ingestion *IngestionService
	index     vectorindex.Index
	cache     *QueryCache
	fetcher   *webfetch.Fetcher
	tasks     TaskEnqueuer
}

// UploadRequest carries one multipart upload through validation and dispatch.
type UploadRequest struct {
	File    multipart.File
	Header  *multipart.FileHeader
	IsAsync bool
}

func NewDocumentService(
	cfg *config.Config,
	storage *FileStorage,
	metadata *MetadataService,
	ingestion *IngestionService,
	index vectorindex.Index,
	cache *QueryCache,
	fetcher *webfetch.Fetcher,
	tasks TaskEnqueuer,
) *DocumentService {
	return &DocumentService{
		config:    cfg,
		storage:   storage,
		metadata:  metadata,
		ingestion: ingestion,
		index:     index,
		cache:     cache,
		fetcher:   fetcher,
		tasks:     tasks,
	}
}

// Upload validates and stores an uploaded file, then runs ingestion inline
// or queues it depending on the async flag and the file size.
func (s *DocumentService) Upload(ctx context.Context, req *UploadRequest) (*models.UploadResponse, error) {
	if err := s.validateUpload(req.Header); err != nil {
		return nil, err
	}

	stored, err := s.storage.Store(req.File, req.Header.Filename)
	if err != nil {
		return nil, fmt.Errorf("file storage failed: %w", err)
	}

	// Duplicate content short-circuits before any processing.
	existing, err := s.metadata.FindByContentHash(ctx, stored.Hash)
	if err != nil {
		s.storage.Cleanup(stored.Path)
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if existing != nil {
		s.storage.Cleanup(stored.Path)
		logger.Info("Duplicate upload detected",
			"file_id", existing.FileID,
			"filename", req.Header.Filename)
		return &models.UploadResponse{
			FileID:         existing.FileID,
			Filename:       existing.Filename,
			Status:         existing.Status,
			ChunksCreated:  existing.ChunksCount,
			VectorsStored:  existing.VectorsCount,
			TextLength:     existing.CharLength,
			ProcessingMode: "duplicate",
			Message:        "identical content was already uploaded",
		}, nil
	}

	doc := &models.Document{
		FileID:      utils.GenerateFileID(),
		Filename:    req.Header.Filename,
		FileType:    strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Header.Filename), ".")),
		FileSize:    stored.Size,
		FilePath:    stored.Path,
		ContentHash: stored.Hash,
		Status:      models.StatusProcessing,
		UploadedAt:  time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.metadata.Create(ctx, doc); err != nil {
		s.storage.Cleanup(stored.Path)
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	return s.dispatch(ctx, doc, req.IsAsync)
}

// IngestFromURL fetches a web page, stores its readable text as a document,
// and dispatches it through the same pipeline as a file upload.
func (s *DocumentService) IngestFromURL(ctx context.Context, rawURL string, isAsync bool) (*models.UploadResponse, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, utils.NewError(utils.KindValidation, "url must be a valid http or https address")
	}

	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	name := page.Title
	if name == "" {
		name = parsed.Host
	}
	filename := sanitizePageFilename(name) + ".txt"

	stored, err := s.storage.StoreBytes([]byte(page.Text), filename)
	if err != nil {
		return nil, fmt.Errorf("file storage failed: %w", err)
	}

	existing, err := s.metadata.FindByContentHash(ctx, stored.Hash)
	if err != nil {
		s.storage.Cleanup(stored.Path)
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if existing != nil {
		s.storage.Cleanup(stored.Path)
		logger.Info("Duplicate page content detected",
			"file_id", existing.FileID,
			"url", rawURL)
		return &models.UploadResponse{
			FileID:         existing.FileID,
			Filename:       existing.Filename,
			Status:         existing.Status,
			ChunksCreated:  existing.ChunksCount,
			VectorsStored:  existing.VectorsCount,
			TextLength:     existing.CharLength,
			ProcessingMode: "duplicate",
			Message:        "identical content was already ingested",
		}, nil
	}

	doc := &models.Document{
		FileID:      utils.GenerateFileID(),
		Filename:    filename,
		FileType:    "txt",
		FileSize:    stored.Size,
		FilePath:    stored.Path,
		SourceURL:   rawURL,
		ContentHash: stored.Hash,
		Status:      models.StatusProcessing,
		UploadedAt:  time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.metadata.Create(ctx, doc); err != nil {
		s.storage.Cleanup(stored.Path)
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	return s.dispatch(ctx, doc, isAsync)
}

// dispatch routes a freshly created document to inline or queued ingestion.
// Large files always go through the queue regardless of the async flag so a
// single request cannot hold an HTTP worker for minutes.
func (s *DocumentService) dispatch(ctx context.Context, doc *models.Document, isAsync bool) (*models.UploadResponse, error) {
	if s.tasks != nil && (isAsync || doc.FileSize > s.config.SyncProcessingLimit) {
		taskID, err := s.tasks.EnqueueDocumentIngest(ctx, doc.FileID)
		if err != nil {
			// A document stuck in processing with no queued task would sit
			// until the stale sweeper fails it. Roll back instead so the
			// client can retry the upload.
			s.storage.Cleanup(doc.FilePath)
			if delErr := s.metadata.Delete(context.Background(), doc.FileID); delErr != nil {
				logger.Error("Failed to roll back document after enqueue failure",
					"file_id", doc.FileID,
					"error", delErr.Error())
			}
			return nil, fmt.Errorf("failed to queue document for processing: %w", err)
		}

		logger.Info("Document queued for ingestion",
			"file_id", doc.FileID,
			"task_id", taskID,
			"size_bytes", doc.FileSize)
		return &models.UploadResponse{
			FileID:         doc.FileID,
			Filename:       doc.Filename,
			Status:         models.StatusProcessing,
			ProcessingMode: "async",
			TaskID:         taskID,
		}, nil
	}

	result, err := s.ingestion.IngestFile(ctx, doc)
	if err != nil {
		return nil, err
	}

	return &models.UploadResponse{
		FileID:         doc.FileID,
		Filename:       doc.Filename,
		Status:         models.StatusReady,
		ChunksCreated:  result.ChunksCreated,
		VectorsStored:  result.VectorsStored,
		TextLength:     result.TextLength,
		ProcessingMode: "sync",
	}, nil
}

// Get returns the metadata record for one document.
func (s *DocumentService) Get(ctx context.Context, fileID string) (*models.Document, error) {
	return s.metadata.GetByFileID(ctx, fileID)
}

// List returns a page of document records plus the total count.
func (s *DocumentService) List(ctx context.Context, limit, offset int64) ([]models.Document, int64, error) {
	return s.metadata.List(ctx, limit, offset)
}

// Delete removes a document and everything derived from it: index vectors,
// the metadata record, cached query responses, and the stored file. Vectors
// go first so a partial failure can never leave searchable chunks pointing
// at a missing document.
func (s *DocumentService) Delete(ctx context.Context, fileID string) error {
	doc, err := s.metadata.GetByFileID(ctx, fileID)
	if err != nil {
		return err
	}

	if err := s.index.DeleteByDocument(ctx, fileID); err != nil {
		return fmt.Errorf("failed to remove vectors for %s: %w", fileID, err)
	}

	if err := s.metadata.Delete(ctx, fileID); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.InvalidateDocument(ctx, fileID)
	}
	s.storage.Cleanup(doc.FilePath)

	logger.Info("Document deleted",
		"file_id", fileID,
		"filename", doc.Filename)
	return nil
}

// validateUpload rejects oversized, empty, or unsafely named files before
// anything touches disk.
func (s *DocumentService) validateUpload(header *multipart.FileHeader) error {
	if header.Size > s.config.MaxFileSize {
		return utils.NewError(utils.KindValidation,
			fmt.Sprintf("file size %d exceeds maximum allowed size %d", header.Size, s.config.MaxFileSize))
	}
	if header.Size == 0 {
		return utils.NewError(utils.KindValidation, "file is empty")
	}
	return s.validateFilename(header.Filename)
}

func (s *DocumentService) validateFilename(filename string) error {
	if filename == "" {
		return utils.NewError(utils.KindValidation, "filename is required")
	}
	if len(filename) > 255 {
		return utils.NewError(utils.KindValidation, "filename too long (max 255 characters)")
	}

	dangerous := []string{"../", "..\\", "<", ">", ":", "\"", "|", "?", "*", "\x00"}
	for _, char := range dangerous {
		if strings.Contains(filename, char) {
			return utils.NewError(utils.KindValidation, "filename contains invalid or dangerous characters")
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.config.AllowedExtensions {
		if ext == strings.ToLower(strings.TrimSpace(allowed)) {
			return nil
		}
	}
	return utils.NewError(utils.KindValidation,
		fmt.Sprintf("file type %q is not supported (allowed: %s)", ext, strings.Join(s.config.AllowedExtensions, ", ")))
}

// sanitizePageFilename turns a page title into a short safe filename stem.
func sanitizePageFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune('_')
		}
	}
	stem := strings.Trim(b.String(), "_")
	if stem == "" {
		stem = "page"
	}
	if len(stem) > 60 {
		stem = stem[:60]
	}
	return stem
}
