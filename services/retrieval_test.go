package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/internal/vectorindex/memory"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

func readyDoc(fileID string) *models.Document {
	return &models.Document{FileID: fileID, Filename: fileID + ".txt", Status: models.StatusReady}
}

func indexRecord(docID string, seq int, text string, vec []float32) vectorindex.Record {
	return vectorindex.Record{
		ID:            vectorindex.RecordID(docID, seq),
		DocumentID:    docID,
		Text:          text,
		SequenceIndex: seq,
		CharStart:     seq * 100,
		CharEnd:       seq*100 + len(text),
		Vector:        vec,
	}
}

func newTestEngine(t *testing.T, docs map[string]*models.Document, records []vectorindex.Record) (*RetrievalEngine, *fakeEmbedder) {
	t.Helper()
	idx := memory.New(4, 0)
	require.NoError(t, idx.Insert(context.Background(), records))
	embedder := &fakeEmbedder{dims: 4, vectors: map[string][]float32{}}
	engine := NewRetrievalEngine(idx, &fakeLookup{docs: docs}, embedder, &config.Config{DefaultTopK: 5})
	return engine, embedder
}

func TestRetrieveValidation(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]*models.Document{}, nil)

	t.Run("requires document id", func(t *testing.T) {
		_, err := engine.Retrieve(context.Background(), RetrieveParams{Query: "anything"})
		require.Error(t, err)
		assert.True(t, utils.IsKind(err, utils.KindValidation))
	})

	t.Run("requires query text or vector", func(t *testing.T) {
		_, err := engine.Retrieve(context.Background(), RetrieveParams{DocumentID: "doc-1"})
		require.Error(t, err)
		assert.True(t, utils.IsKind(err, utils.KindValidation))
	})
}

func TestRetrieveUnknownDocument(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]*models.Document{}, nil)

	_, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID: "missing",
		Query:      "anything",
	})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}

func TestRetrieveRequiresReadyStatus(t *testing.T) {
	for _, status := range []string{models.StatusProcessing, models.StatusFailed} {
		t.Run(status, func(t *testing.T) {
			docs := map[string]*models.Document{
				"doc-1": {FileID: "doc-1", Status: status},
			}
			engine, _ := newTestEngine(t, docs, nil)

			_, err := engine.Retrieve(context.Background(), RetrieveParams{
				DocumentID: "doc-1",
				Query:      "anything",
			})
			require.Error(t, err)
			assert.True(t, utils.IsKind(err, utils.KindDocumentNotReady))
			assert.Contains(t, err.Error(), status)
		})
	}
}

func TestRetrieveRanksByDistance(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	records := []vectorindex.Record{
		indexRecord("doc-1", 0, "exact match", []float32{1, 0, 0, 0}),
		indexRecord("doc-1", 1, "far away", []float32{0, 1, 0, 0}),
		indexRecord("doc-1", 2, "in between", []float32{0.5, 0.5, 0, 0}),
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:  "doc-1",
		QueryVector: []float32{1, 0, 0, 0},
		TopK:        3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []int{0, 2, 1}, []int{
		results[0].SequenceIndex,
		results[1].SequenceIndex,
		results[2].SequenceIndex,
	})
	assert.Equal(t, 0.0, results[0].Distance)
	assert.InDelta(t, 0.5, results[1].Distance, 1e-9)
	assert.InDelta(t, 2.0, results[2].Distance, 1e-9)

	for i, res := range results {
		assert.Equal(t, i+1, res.Rank)
		assert.Nil(t, res.Similarity)
		assert.Nil(t, res.SimilarityPercent)
	}
}

func TestRetrieveMapsChunkFields(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	records := []vectorindex.Record{
		indexRecord("doc-1", 3, "the indexed span", []float32{1, 0, 0, 0}),
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:  "doc-1",
		QueryVector: []float32{1, 0, 0, 0},
		TopK:        1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, vectorindex.RecordID("doc-1", 3), got.ChunkID)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, 3, got.SequenceIndex)
	assert.Equal(t, "the indexed span", got.Text)
	assert.Equal(t, 300, got.CharStart)
	assert.Equal(t, 300+len("the indexed span"), got.CharEnd)
}

func TestRetrieveEmbedsQueryAsSingleBatch(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	records := []vectorindex.Record{
		indexRecord("doc-1", 0, "relevant", []float32{1, 0, 0, 0}),
	}
	engine, embedder := newTestEngine(t, docs, records)
	embedder.vectors["what is chunk overlap"] = []float32{1, 0, 0, 0}

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID: "doc-1",
		Query:      "what is chunk overlap",
		TopK:       1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Distance)

	require.Len(t, embedder.batches, 1)
	assert.Equal(t, []string{"what is chunk overlap"}, embedder.batches[0])
}

func TestRetrieveFewerChunksThanTopK(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	records := []vectorindex.Record{
		indexRecord("doc-1", 0, "one", []float32{1, 0, 0, 0}),
		indexRecord("doc-1", 1, "two", []float32{0, 1, 0, 0}),
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:  "doc-1",
		QueryVector: []float32{1, 0, 0, 0},
		TopK:        10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetrieveDefaultTopK(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	var records []vectorindex.Record
	for i := 0; i < 7; i++ {
		records = append(records, indexRecord("doc-1", i, "chunk", []float32{float32(i), 1, 0, 0}))
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:  "doc-1",
		QueryVector: []float32{0, 0, 0, 0},
	})
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestRetrieveNeverLeaksOtherDocuments(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	shared := []float32{1, 0, 0, 0}
	records := []vectorindex.Record{
		indexRecord("doc-1", 0, "mine", shared),
		indexRecord("doc-2", 0, "identical vector elsewhere", shared),
		indexRecord("doc-2", 1, "more foreign content", shared),
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:  "doc-1",
		QueryVector: shared,
		TopK:        10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	for _, res := range results {
		assert.Equal(t, "doc-1", res.DocumentID)
	}
}

func TestRetrieveBreaksDistanceTiesBySequence(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	same := []float32{0, 1, 0, 0}
	records := []vectorindex.Record{
		indexRecord("doc-1", 5, "later chunk", same),
		indexRecord("doc-1", 2, "earlier chunk", same),
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:  "doc-1",
		QueryVector: []float32{1, 0, 0, 0},
		TopK:        2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Distance, results[1].Distance)
	assert.Equal(t, 2, results[0].SequenceIndex)
	assert.Equal(t, 5, results[1].SequenceIndex)
}

func TestRetrieveSimilarityScores(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	records := []vectorindex.Record{
		indexRecord("doc-1", 0, "self match", []float32{1, 0, 0, 0}),
		indexRecord("doc-1", 1, "diagonal", []float32{1, 1, 0, 0}),
		indexRecord("doc-1", 2, "orthogonal", []float32{0, 1, 0, 0}),
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:     "doc-1",
		QueryVector:    []float32{1, 0, 0, 0},
		TopK:           3,
		WithSimilarity: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	bySeq := make(map[int]models.ScoredChunk, len(results))
	for _, res := range results {
		require.NotNil(t, res.Similarity)
		require.NotNil(t, res.SimilarityPercent)
		assert.False(t, res.Degenerate)
		bySeq[res.SequenceIndex] = res
	}

	assert.InDelta(t, 1.0, *bySeq[0].Similarity, 1e-6)
	assert.InDelta(t, 100.0, *bySeq[0].SimilarityPercent, 1e-9)

	assert.InDelta(t, 0.70710678, *bySeq[1].Similarity, 1e-6)
	assert.InDelta(t, 70.71, *bySeq[1].SimilarityPercent, 1e-9)

	assert.InDelta(t, 0.0, *bySeq[2].Similarity, 1e-6)
	assert.InDelta(t, 0.0, *bySeq[2].SimilarityPercent, 1e-9)
}

func TestRetrieveZeroNormVectorIsDegenerate(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	records := []vectorindex.Record{
		indexRecord("doc-1", 0, "all zeros", []float32{0, 0, 0, 0}),
	}
	engine, _ := newTestEngine(t, docs, records)

	results, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:     "doc-1",
		QueryVector:    []float32{1, 0, 0, 0},
		TopK:           1,
		WithSimilarity: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.True(t, got.Degenerate)
	require.NotNil(t, got.Similarity)
	assert.Equal(t, 0.0, *got.Similarity)
	assert.InDelta(t, 1.0, got.Distance, 1e-9)
}

func TestRetrieveRejectsWrongQueryDimension(t *testing.T) {
	docs := map[string]*models.Document{"doc-1": readyDoc("doc-1")}
	engine, _ := newTestEngine(t, docs, nil)

	_, err := engine.Retrieve(context.Background(), RetrieveParams{
		DocumentID:  "doc-1",
		QueryVector: []float32{1, 0},
	})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
	assert.Contains(t, err.Error(), "dimensions")
}
