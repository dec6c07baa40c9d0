package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HashContent computes the SHA-256 hex digest of a payload.
// Used for duplicate upload detection.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader computes the SHA-256 hex digest of a stream.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash stream: %v", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GenerateFileID returns a document identifier of the form
// file_YYYYMMDD_HHMMSS_xxxxxxxx. The suffix is UUID-derived so two
// uploads within the same second still get distinct ids.
func GenerateFileID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("file_%s_%s", time.Now().UTC().Format("20060102_150405"), suffix)
}
