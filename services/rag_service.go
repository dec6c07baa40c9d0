package services

import (
	"context"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"document-rag-platform/internal/ai"
	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

const previewLength = 200

// RAGService orchestrates one question-answering pass: retrieve the most
// relevant chunks, assemble a bounded context, generate an answer. Cached
// responses short-circuit the whole pipeline.
type RAGService struct {
	config    *config.Config
	retrieval *RetrievalEngine
	assembler *ContextAssembler
	generator ai.Generator
	cache     *QueryCache
	metrics   *telemetry.Metrics
}

// NewRAGService creates a new RAG service instance
func NewRAGService(
	cfg *config.Config,
	retrieval *RetrievalEngine,
	assembler *ContextAssembler,
	generator ai.Generator,
	cache *QueryCache,
	metrics *telemetry.Metrics,
) *RAGService {
	return &RAGService{
		config:    cfg,
		retrieval: retrieval,
		assembler: assembler,
		generator: generator,
		cache:     cache,
		metrics:   metrics,
	}
}

// Answer runs the full pipeline for one query. withSimilarity controls
// whether per-chunk cosine scores and their explanation are included.
func (s *RAGService) Answer(ctx context.Context, req models.QueryRequest, withSimilarity bool) (*models.QueryResponse, error) {
	start := time.Now()

	tracer := otel.Tracer("rag-service")
	ctx, span := tracer.Start(ctx, "rag.answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.file_id", req.FileID),
		attribute.Bool("rag.with_similarity", withSimilarity),
	)

	topK := req.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}
	if topK > s.config.MaxTopK {
		return nil, utils.NewError(utils.KindValidation, "top_k exceeds the allowed maximum")
	}

	if cached, hit := s.cache.Get(ctx, req.FileID, req.Query, topK, withSimilarity); hit {
		span.SetAttributes(attribute.Bool("rag.cache_hit", true))
		if s.metrics != nil {
			s.metrics.RecordCacheEvent(true)
			s.metrics.RecordQuery(time.Since(start).Seconds(), true)
		}
		return cached, nil
	}
	if s.metrics != nil && s.cache.Enabled() {
		s.metrics.RecordCacheEvent(false)
	}

	ranked, err := s.retrieval.Retrieve(ctx, RetrieveParams{
		DocumentID:     req.FileID,
		Query:          req.Query,
		TopK:           topK,
		WithSimilarity: withSimilarity,
	})
	if err != nil {
		return nil, err
	}

	assembled := s.assembler.Assemble(ranked)
	span.SetAttributes(
		attribute.Int("rag.chunks_retrieved", len(ranked)),
		attribute.Int("rag.chunks_used", len(assembled.Blocks)),
		attribute.Int("rag.context_chars", assembled.TotalChars),
	)

	answer, err := s.generator.GenerateAnswer(ctx, req.Query, assembled.Blocks)
	if err != nil {
		return nil, err
	}

	resp := &models.QueryResponse{
		Answer:        answer,
		FileID:        req.FileID,
		Query:         req.Query,
		ChunksUsed:    len(assembled.Blocks),
		ContextChars:  assembled.TotalChars,
		DroppedChunks: assembled.Dropped,
	}
	if withSimilarity {
		resp.RetrievedChunks = chunkViews(ranked)
		resp.SimilarityExplanation = similarityExplanation()
	}

	s.cache.Set(ctx, req.FileID, req.Query, topK, withSimilarity, resp)

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordQuery(duration.Seconds(), false)
	}
	logger.Info("Query answered",
		"file_id", req.FileID,
		"chunks_used", resp.ChunksUsed,
		"context_chars", resp.ContextChars,
		"duration_ms", duration.Milliseconds(),
	)

	return resp, nil
}

func chunkViews(ranked []models.ScoredChunk) []models.RetrievedChunkView {
	views := make([]models.RetrievedChunkView, 0, len(ranked))
	for _, sc := range ranked {
		preview := sc.Text
		if len(preview) > previewLength {
			cut := previewLength
			for cut > 0 && !utf8.RuneStart(preview[cut]) {
				cut--
			}
			preview = preview[:cut] + "..."
		}
		views = append(views, models.RetrievedChunkView{
			ChunkID:           sc.ChunkID,
			SequenceIndex:     sc.SequenceIndex,
			Distance:          sc.Distance,
			Similarity:        sc.Similarity,
			SimilarityPercent: sc.SimilarityPercent,
			Degenerate:        sc.Degenerate,
			TextPreview:       preview,
		})
	}
	return views
}

func similarityExplanation() *models.SimilarityExplanation {
	return &models.SimilarityExplanation{
		Description:    "Cosine similarity between the query embedding and each retrieved chunk embedding",
		Formula:        "dot(query, chunk) / (|query| * |chunk|)",
		Range:          "[-1, 1], where 1 means identical direction",
		Interpretation: "Higher values indicate the chunk is semantically closer to the query",
	}
}
