package models

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	FileID string `json:"file_id" binding:"required"`
	Query  string `json:"query" binding:"required"`
	TopK   int    `json:"top_k,omitempty"`
}

// RetrievedChunkView is the per-chunk detail returned alongside an answer.
type RetrievedChunkView struct {
	ChunkID           uint64   `json:"chunk_id"`
	SequenceIndex     int      `json:"sequence_index"`
	Distance          float64  `json:"l2_distance"`
	Similarity        *float64 `json:"cosine_similarity,omitempty"`
	SimilarityPercent *float64 `json:"similarity_percentage,omitempty"`
	Degenerate        bool     `json:"degenerate,omitempty"`
	TextPreview       string   `json:"text_preview"`
}

// SimilarityExplanation documents how the optional scores were computed.
type SimilarityExplanation struct {
	Description    string `json:"description"`
	Formula        string `json:"formula"`
	Range          string `json:"range"`
	Interpretation string `json:"interpretation"`
}

// QueryResponse is the body returned by POST /api/query.
type QueryResponse struct {
	Answer                string                 `json:"answer"`
	FileID                string                 `json:"file_id"`
	Query                 string                 `json:"query"`
	ChunksUsed            int                    `json:"chunks_used"`
	ContextChars          int                    `json:"context_chars"`
	DroppedChunks         []DroppedChunk         `json:"dropped_chunks,omitempty"`
	RetrievedChunks       []RetrievedChunkView   `json:"similarity_scores,omitempty"`
	SimilarityExplanation *SimilarityExplanation `json:"similarity_explanation,omitempty"`
	Cached                bool                   `json:"cached"`
}

// DroppedChunk records a retrieved chunk excluded from the final context.
type DroppedChunk struct {
	ChunkID uint64 `json:"chunk_id"`
	Reason  string `json:"reason"` // "duplicate" or "budget"
}

// VectorView is one stored record as exposed by the inspect endpoint.
// VectorPreview carries the first few dimensions; the full vector is
// only included when explicitly requested.
type VectorView struct {
	ID            uint64    `json:"id"`
	FileID        string    `json:"file_id"`
	SequenceIndex int       `json:"sequence_index"`
	CharStart     int       `json:"char_start"`
	CharEnd       int       `json:"char_end"`
	ChunkText     string    `json:"chunk_text"`
	TextLength    int       `json:"text_length"`
	VectorDim     int       `json:"vector_dim,omitempty"`
	VectorPreview []float32 `json:"vector_preview,omitempty"`
	Vector        []float32 `json:"vector,omitempty"`
}

// InspectResponse is the body of GET /api/vectors.
type InspectResponse struct {
	Count       int          `json:"count"`
	FullContent bool         `json:"full_content"`
	ShowVectors bool         `json:"show_vectors"`
	Vectors     []VectorView `json:"vectors"`
}
