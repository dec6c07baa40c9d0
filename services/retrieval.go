package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"document-rag-platform/internal/ai"
	"document-rag-platform/internal/config"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

// DocumentLookup resolves document records by their public file id.
// *MetadataService is the production implementation.
type DocumentLookup interface {
	GetByFileID(ctx context.Context, fileID string) (*models.Document, error)
}

// RetrievalEngine runs filtered nearest-neighbor lookups against a single
// ready document and normalizes the scores exposed to callers. Ranking is
// ascending native distance with ties broken by sequence index so output
// is deterministic.
type RetrievalEngine struct {
	index       vectorindex.Index
	metadata    DocumentLookup
	embedder    ai.Embedder
	defaultTopK int
}

// RetrieveParams describes one retrieval request. QueryVector takes
// precedence when set; otherwise Query is embedded as a one-element batch.
type RetrieveParams struct {
	DocumentID     string
	Query          string
	QueryVector    []float32
	TopK           int
	WithSimilarity bool
}

// NewRetrievalEngine creates a new retrieval engine instance
func NewRetrievalEngine(index vectorindex.Index, metadata DocumentLookup, embedder ai.Embedder, cfg *config.Config) *RetrievalEngine {
	return &RetrievalEngine{
		index:       index,
		metadata:    metadata,
		embedder:    embedder,
		defaultTopK: cfg.DefaultTopK,
	}
}

// Retrieve returns at most TopK chunks of the document ranked by distance.
// Fewer indexed chunks than TopK is not an error. A document that is not
// in ready status fails fast with document_not_ready before any index
// call; an unknown document fails with not_found.
func (re *RetrievalEngine) Retrieve(ctx context.Context, params RetrieveParams) ([]models.ScoredChunk, error) {
	if params.DocumentID == "" {
		return nil, utils.NewError(utils.KindValidation, "document id is required")
	}
	if params.Query == "" && len(params.QueryVector) == 0 {
		return nil, utils.NewError(utils.KindValidation, "query text or query vector is required")
	}

	tracer := otel.Tracer("retrieval-engine")
	ctx, span := tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("retrieval.document_id", params.DocumentID))

	doc, err := re.metadata.GetByFileID(ctx, params.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusReady {
		return nil, utils.NewError(utils.KindDocumentNotReady,
			fmt.Sprintf("document %s is %s, not ready for queries", params.DocumentID, doc.Status))
	}

	vector := params.QueryVector
	if len(vector) == 0 {
		vectors, err := re.embedder.Embed(ctx, []string{params.Query})
		if err != nil {
			return nil, err
		}
		vector = vectors[0]
	}
	if len(vector) != re.embedder.Dimensions() {
		return nil, utils.NewError(utils.KindValidation,
			fmt.Sprintf("query vector has %d dimensions, index expects %d", len(vector), re.embedder.Dimensions()))
	}

	topK := params.TopK
	if topK <= 0 {
		topK = re.defaultTopK
	}
	span.SetAttributes(attribute.Int("retrieval.top_k", topK))

	hits, err := re.index.Search(ctx, vectorindex.SearchParams{
		Vector:      vector,
		DocumentID:  params.DocumentID,
		TopK:        topK,
		WithVectors: params.WithSimilarity,
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].SequenceIndex < hits[j].SequenceIndex
	})

	results := make([]models.ScoredChunk, 0, len(hits))
	for i, hit := range hits {
		sc := models.ScoredChunk{
			Chunk: models.Chunk{
				ChunkID:       hit.ID,
				DocumentID:    hit.DocumentID,
				SequenceIndex: hit.SequenceIndex,
				Text:          hit.Text,
				CharStart:     hit.CharStart,
				CharEnd:       hit.CharEnd,
			},
			Distance: hit.Distance,
			Rank:     i + 1,
		}
		if params.WithSimilarity {
			sim, degenerate := re.similarity(vector, hit)
			pct := roundTo(sim*100, 2)
			sc.Similarity = &sim
			sc.SimilarityPercent = &pct
			sc.Degenerate = degenerate
		}
		results = append(results, sc)
	}

	span.SetAttributes(attribute.Int("retrieval.results", len(results)))
	return results, nil
}

// similarity computes exact cosine between the query and the stored
// vector. When the index did not return vectors it derives cosine from
// the squared distance instead, which is exact for unit-normalized
// embeddings. A near-zero norm yields similarity 0 with the degenerate
// flag set, never an error.
func (re *RetrievalEngine) similarity(query []float32, hit vectorindex.Hit) (float64, bool) {
	if len(hit.Vector) > 0 {
		cos, ok := vectorindex.Cosine(query, hit.Vector)
		if !ok {
			return 0, true
		}
		return cos, false
	}
	return vectorindex.CosineFromSquaredL2(hit.Distance), false
}

func roundTo(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
