package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/utils"
)

// FileStorage stores uploaded files under a generated name so user input
// never becomes a filesystem path. Writes go through a temp file and a
// rename so a crash never leaves a half-written document behind.
type FileStorage struct {
	config    *config.Config
	uploadDir string
	tempDir   string
}

// StoredFile describes a successfully stored file.
type StoredFile struct {
	Path       string
	SecureName string
	Hash       string
	Size       int64
}

// NewFileStorage creates a new file storage manager
func NewFileStorage(cfg *config.Config) *FileStorage {
	baseDir := cfg.FileStorageDir
	if baseDir == "" {
		baseDir = "./storage"
	}

	uploadDir := filepath.Join(baseDir, "documents")
	tempDir := filepath.Join(baseDir, "temp")

	os.MkdirAll(uploadDir, 0755)
	os.MkdirAll(tempDir, 0755)

	return &FileStorage{
		config:    cfg,
		uploadDir: uploadDir,
		tempDir:   tempDir,
	}
}

// Store streams the reader to disk, hashing it on the way for duplicate
// detection.
func (fs *FileStorage) Store(file io.Reader, originalName string) (*StoredFile, error) {
	secureName := fs.generateSecureFilename(originalName)
	finalPath := filepath.Join(fs.uploadDir, secureName)

	tempPath := filepath.Join(fs.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hasher := sha256.New()
	bytesWritten, err := io.Copy(io.MultiWriter(tempFile, hasher), file)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if bytesWritten == 0 {
		os.Remove(tempPath)
		return nil, utils.NewError(utils.KindValidation, "file is empty")
	}

	if strings.EqualFold(filepath.Ext(originalName), ".pdf") {
		if err := validatePDFMagic(tempPath); err != nil {
			os.Remove(tempPath)
			return nil, err
		}
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &StoredFile{
		Path:       finalPath,
		SecureName: secureName,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		Size:       bytesWritten,
	}, nil
}

// StoreBytes stores in-memory content, used for text fetched from URLs.
func (fs *FileStorage) StoreBytes(content []byte, name string) (*StoredFile, error) {
	return fs.Store(strings.NewReader(string(content)), name)
}

// Cleanup removes a file from storage
func (fs *FileStorage) Cleanup(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to clean up stored file", "path", filePath, "error", err.Error())
	}
}

// validatePDFMagic rejects files claiming a .pdf extension without the
// PDF magic bytes, before any parser touches them.
func validatePDFMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer f.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		return utils.NewError(utils.KindValidation, "file is too small to be a valid PDF")
	}
	if string(header) != "%PDF" {
		return utils.NewError(utils.KindValidation, "file is not a valid PDF document (missing PDF header)")
	}
	return nil
}

// generateSecureFilename creates a storage name that cannot collide with
// or escape into other uploads.
func (fs *FileStorage) generateSecureFilename(originalName string) string {
	randomBytes := uuid.New()
	randomPrefix := hex.EncodeToString(randomBytes[:8])

	timestamp := time.Now().Format("20060102_150405")

	ext := filepath.Ext(originalName)
	baseName := strings.TrimSuffix(filepath.Base(originalName), ext)
	safeName := strings.ReplaceAll(baseName, " ", "_")
	safeName = strings.ReplaceAll(safeName, "..", "")
	if len(safeName) > 50 {
		safeName = safeName[:50]
	}

	return fmt.Sprintf("%s_%s_%s%s", timestamp, randomPrefix, safeName, strings.ToLower(ext))
}
