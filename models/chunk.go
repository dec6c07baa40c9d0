package models

// Chunk is one contiguous span of a document's text. CharStart/CharEnd are
// byte offsets into the extracted text; Text is the exact substring
// text[CharStart:CharEnd], so concatenating spans with overlaps removed
// reproduces the document. SequenceIndex is dense from 0 per document.
type Chunk struct {
	ChunkID       uint64 `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	CharStart     int    `json:"char_start"`
	CharEnd       int    `json:"char_end"`
}

// Len returns the chunk's span length in bytes.
func (c Chunk) Len() int {
	return c.CharEnd - c.CharStart
}

// ScoredChunk is a retrieval hit: a chunk plus its native index distance
// (squared euclidean, ascending = closer) and, when requested, the exact
// cosine similarity against the query vector. Similarity is nil unless the
// caller asked for it. Degenerate marks a zero-norm vector on either side;
// such hits score similarity 0 instead of failing the query.
type ScoredChunk struct {
	Chunk
	Distance          float64  `json:"distance"`
	Similarity        *float64 `json:"similarity,omitempty"`
	SimilarityPercent *float64 `json:"similarity_percent,omitempty"`
	Degenerate        bool     `json:"degenerate,omitempty"`
	Rank              int      `json:"rank"`
}
