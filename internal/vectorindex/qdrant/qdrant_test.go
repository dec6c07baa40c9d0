package qdrant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/utils"
)

type capturedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

type stubResponse struct {
	status int
	body   string
}

// stubServer answers canned responses keyed by "METHOD /path" and records
// every request so tests can assert on the exact wire shape.
type stubServer struct {
	t         *testing.T
	mu        sync.Mutex
	requests  []capturedRequest
	responses map[string]stubResponse
}

func newStub(t *testing.T, responses map[string]stubResponse) (*stubServer, *Index) {
	t.Helper()
	stub := &stubServer{t: t, responses: responses}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	idx := New(Config{
		URL:             srv.URL,
		Collection:      "chunks",
		Dimensions:      4,
		HNSWM:           16,
		HNSWEfConstruct: 200,
		HNSWEfSearch:    100,
	})
	return stub, idx
}

func (s *stubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		header: r.Header.Clone(),
		body:   body,
	})
	s.mu.Unlock()

	resp, ok := s.responses[r.Method+" "+r.URL.Path]
	if !ok {
		s.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(resp.status)
	io.WriteString(w, resp.body)
}

func (s *stubServer) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func rec(seq int, vec []float32) vectorindex.Record {
	return vectorindex.Record{
		ID:            vectorindex.RecordID("doc-1", seq),
		DocumentID:    "doc-1",
		Text:          "chunk text",
		SequenceIndex: seq,
		CharStart:     seq * 100,
		CharEnd:       seq*100 + 10,
		Vector:        vec,
	}
}

func TestInitCreatesMissingCollection(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{
		"GET /collections/chunks": {http.StatusNotFound, `{"status":{"error":"not found"}}`},
		"PUT /collections/chunks": {http.StatusOK, `{"result":true}`},
	})

	require.NoError(t, idx.Init(context.Background()))

	reqs := stub.captured()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[1].method)
	assert.JSONEq(t,
		`{"vectors":{"size":4,"distance":"Euclid"},"hnsw_config":{"m":16,"ef_construct":200}}`,
		string(reqs[1].body))
}

func TestInitAcceptsMatchingCollection(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{
		"GET /collections/chunks": {http.StatusOK,
			`{"result":{"points_count":12,"config":{"params":{"vectors":{"size":4,"distance":"Euclid"}}}}}`},
	})

	require.NoError(t, idx.Init(context.Background()))
	assert.Len(t, stub.captured(), 1)
}

func TestInitRejectsDimensionMismatch(t *testing.T) {
	_, idx := newStub(t, map[string]stubResponse{
		"GET /collections/chunks": {http.StatusOK,
			`{"result":{"config":{"params":{"vectors":{"size":8,"distance":"Euclid"}}}}}`},
	})

	err := idx.Init(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindConfiguration))
	assert.Contains(t, err.Error(), "dimension 8")
}

func TestInsertUpsertsDurably(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{
		"PUT /collections/chunks/points": {http.StatusOK, `{"result":{"status":"acknowledged"}}`},
	})

	err := idx.Insert(context.Background(), []vectorindex.Record{rec(3, []float32{1, 0, 0, 0})})
	require.NoError(t, err)

	reqs := stub.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "true", reqs[0].query.Get("wait"))

	var sent struct {
		Points []struct {
			ID      uint64    `json:"id"`
			Vector  []float32 `json:"vector"`
			Payload struct {
				DocumentID    string `json:"document_id"`
				Text          string `json:"text"`
				SequenceIndex int    `json:"sequence_index"`
				CharStart     int    `json:"char_start"`
				CharEnd       int    `json:"char_end"`
			} `json:"payload"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(reqs[0].body, &sent))
	require.Len(t, sent.Points, 1)
	assert.Equal(t, vectorindex.RecordID("doc-1", 3), sent.Points[0].ID)
	assert.Equal(t, []float32{1, 0, 0, 0}, sent.Points[0].Vector)
	assert.Equal(t, "doc-1", sent.Points[0].Payload.DocumentID)
	assert.Equal(t, "chunk text", sent.Points[0].Payload.Text)
	assert.Equal(t, 3, sent.Points[0].Payload.SequenceIndex)
	assert.Equal(t, 300, sent.Points[0].Payload.CharStart)
	assert.Equal(t, 310, sent.Points[0].Payload.CharEnd)
}

func TestInsertValidatesBeforeSending(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{})

	err := idx.Insert(context.Background(), []vectorindex.Record{rec(0, []float32{1, 0})})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))

	require.NoError(t, idx.Insert(context.Background(), nil))
	assert.Empty(t, stub.captured())
}

func TestSearchSquaresEuclideanScores(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{
		"POST /collections/chunks/points/search": {http.StatusOK, `{
			"result": [
				{"id": 7, "score": 2.0, "payload": {"document_id": "doc-1", "text": "hit", "sequence_index": 0, "char_start": 0, "char_end": 3}}
			]
		}`},
	})

	hits, err := idx.Search(context.Background(), vectorindex.SearchParams{
		Vector:     []float32{1, 0, 0, 0},
		DocumentID: "doc-1",
		TopK:       5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(7), hits[0].ID)
	assert.InDelta(t, 4.0, hits[0].Distance, 1e-9)
	assert.Nil(t, hits[0].Vector)

	reqs := stub.captured()
	require.Len(t, reqs, 1)

	var sent struct {
		Vector      []float32 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
		WithVector  bool      `json:"with_vector"`
		Params      struct {
			HNSWEf int `json:"hnsw_ef"`
		} `json:"params"`
		Filter struct {
			Must []struct {
				Key   string `json:"key"`
				Match struct {
					Value string `json:"value"`
				} `json:"match"`
			} `json:"must"`
		} `json:"filter"`
	}
	require.NoError(t, json.Unmarshal(reqs[0].body, &sent))
	assert.Equal(t, 5, sent.Limit)
	assert.True(t, sent.WithPayload)
	assert.False(t, sent.WithVector)
	assert.Equal(t, 100, sent.Params.HNSWEf)
	require.Len(t, sent.Filter.Must, 1)
	assert.Equal(t, "document_id", sent.Filter.Must[0].Key)
	assert.Equal(t, "doc-1", sent.Filter.Must[0].Match.Value)
}

func TestSearchValidation(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{})

	_, err := idx.Search(context.Background(), vectorindex.SearchParams{
		Vector: []float32{1, 0, 0, 0},
	})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))

	_, err = idx.Search(context.Background(), vectorindex.SearchParams{
		Vector: []float32{1, 0},
		TopK:   5,
	})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))

	assert.Empty(t, stub.captured())
}

func TestFetchOrdersBySequence(t *testing.T) {
	_, idx := newStub(t, map[string]stubResponse{
		"POST /collections/chunks/points/scroll": {http.StatusOK, `{
			"result": {"points": [
				{"id": 2, "payload": {"document_id": "doc-1", "sequence_index": 2}},
				{"id": 0, "payload": {"document_id": "doc-1", "sequence_index": 0}},
				{"id": 1, "payload": {"document_id": "doc-1", "sequence_index": 1}}
			]}
		}`},
	})

	hits, err := idx.Fetch(context.Background(), "doc-1", 10, false)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.SequenceIndex)
	}
}

func TestCountByDocument(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{
		"POST /collections/chunks/points/count": {http.StatusOK, `{"result":{"count":42}}`},
	})

	count, err := idx.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)

	reqs := stub.captured()
	require.Len(t, reqs, 1)
	assert.JSONEq(t,
		`{"exact":true,"filter":{"must":[{"key":"document_id","match":{"value":"doc-1"}}]}}`,
		string(reqs[0].body))
}

func TestDeleteByDocument(t *testing.T) {
	stub, idx := newStub(t, map[string]stubResponse{
		"POST /collections/chunks/points/delete": {http.StatusOK, `{"result":{"status":"acknowledged"}}`},
	})

	err := idx.DeleteByDocument(context.Background(), "")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))

	require.NoError(t, idx.DeleteByDocument(context.Background(), "doc-1"))

	reqs := stub.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "true", reqs[0].query.Get("wait"))
	assert.JSONEq(t,
		`{"filter":{"must":[{"key":"document_id","match":{"value":"doc-1"}}]}}`,
		string(reqs[0].body))
}

func TestStats(t *testing.T) {
	_, idx := newStub(t, map[string]stubResponse{
		"GET /collections/chunks": {http.StatusOK, `{"result":{"points_count":1234}}`},
	})

	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "qdrant", stats.Driver)
	assert.Equal(t, "chunks", stats.Collection)
	assert.Equal(t, int64(1234), stats.TotalPoints)
	assert.Equal(t, 4, stats.Dimensions)
}

func TestErrorResponsesBecomeIndexErrors(t *testing.T) {
	_, idx := newStub(t, map[string]stubResponse{
		"POST /collections/chunks/points/search": {http.StatusServiceUnavailable, `{"status":{"error":"overloaded"}}`},
	})

	_, err := idx.Search(context.Background(), vectorindex.SearchParams{
		Vector: []float32{1, 0, 0, 0},
		TopK:   5,
	})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindIndex))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestAPIKeyHeader(t *testing.T) {
	stub := &stubServer{t: t, responses: map[string]stubResponse{
		"GET /collections/chunks": {http.StatusOK, `{"result":{"points_count":0}}`},
	}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	idx := New(Config{URL: srv.URL, APIKey: "secret-key", Collection: "chunks", Dimensions: 4})
	_, err := idx.Stats(context.Background())
	require.NoError(t, err)

	reqs := stub.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "secret-key", reqs[0].header.Get("api-key"))
}
