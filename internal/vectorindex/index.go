package vectorindex

import (
	"context"
	"fmt"
	"hash/fnv"

	"document-rag-platform/internal/logger"
	"document-rag-platform/utils"
)

// maxDocumentIDLen mirrors the varchar bound of the storage schema.
const maxDocumentIDLen = 255

// Record is one stored chunk: its embedding plus the payload needed to
// rebuild context without a second lookup.
type Record struct {
	ID            uint64
	DocumentID    string
	Text          string
	SequenceIndex int
	CharStart     int
	CharEnd       int
	Vector        []float32
}

// Hit is a search or fetch result. Distance is squared euclidean,
// ascending = closer. Vector is only populated when the caller asked
// for vectors.
type Hit struct {
	Record
	Distance float64
}

// SearchParams narrows a k-NN search. An empty DocumentID searches the
// whole collection; retrieval always sets it.
type SearchParams struct {
	Vector      []float32
	DocumentID  string
	TopK        int
	WithVectors bool
}

// Stats summarizes the collection for the stats endpoint.
type Stats struct {
	Driver      string `json:"driver"`
	Collection  string `json:"collection"`
	TotalPoints int64  `json:"total_points"`
	Dimensions  int    `json:"dimensions"`
}

// Index is the capability interface over the vector store. Implementations
// must keep document partitions isolated: a search filtered to one document
// never returns another document's records, identical vectors included.
type Index interface {
	// Init ensures the backing collection exists with the right schema.
	Init(ctx context.Context) error
	// Insert upserts records by id. All-or-nothing per call.
	Insert(ctx context.Context, records []Record) error
	// Search runs filtered k-NN. Fewer than TopK indexed records for the
	// filter returns all of them, not an error.
	Search(ctx context.Context, params SearchParams) ([]Hit, error)
	// Fetch returns stored records (no scoring) ordered by document and
	// sequence index, for inspection.
	Fetch(ctx context.Context, documentID string, limit int, withVectors bool) ([]Hit, error)
	CountByDocument(ctx context.Context, documentID string) (int64, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Stats(ctx context.Context) (Stats, error)
	// Drop removes the whole collection. Init recreates it.
	Drop(ctx context.Context) error
	Close(ctx context.Context) error
}

// RecordID derives a stable point id from the document id and the chunk's
// sequence index. Re-ingesting the same document overwrites its old points
// instead of duplicating them.
func RecordID(documentID string, sequenceIndex int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s#%d", documentID, sequenceIndex)
	return h.Sum64()
}

// ValidateRecords enforces the insert contract shared by all drivers:
// non-empty bounded document ids and exact vector dimensionality. Chunk
// text longer than maxTextLen is truncated for storage (the embedding was
// already computed over the full text) with a warning, keeping the span
// offsets intact.
func ValidateRecords(records []Record, dimensions, maxTextLen int) error {
	for i := range records {
		r := &records[i]
		if r.DocumentID == "" {
			return utils.NewError(utils.KindValidation, "record document_id must not be empty")
		}
		if len(r.DocumentID) > maxDocumentIDLen {
			return utils.NewError(utils.KindValidation,
				fmt.Sprintf("record document_id exceeds %d characters", maxDocumentIDLen))
		}
		if len(r.Vector) != dimensions {
			return utils.NewError(utils.KindValidation,
				fmt.Sprintf("record %d has dimension %d, index expects %d", i, len(r.Vector), dimensions))
		}
		if maxTextLen > 0 && len(r.Text) > maxTextLen {
			logger.Warn("Truncating oversized chunk text for storage",
				"document_id", r.DocumentID,
				"sequence_index", r.SequenceIndex,
				"text_length", len(r.Text),
				"max_length", maxTextLen)
			r.Text = r.Text[:maxTextLen]
		}
	}
	return nil
}
