// Package qdrant implements the vector index over Qdrant's REST API.
// The collection is created with a euclidean HNSW index; scores are
// normalized to squared distances to match the interface contract.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/utils"
)

type Config struct {
	URL             string
	APIKey          string
	Collection      string
	Dimensions      int
	MaxTextLen      int
	HNSWM           int
	HNSWEfConstruct int
	HNSWEfSearch    int
	Timeout         time.Duration
}

type Index struct {
	baseURL      string
	apiKey       string
	collection   string
	dimensions   int
	maxTextLen   int
	hnswM        int
	hnswEfBuild  int
	hnswEfSearch int
	client       *http.Client
}

func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Index{
		baseURL:      cfg.URL,
		apiKey:       cfg.APIKey,
		collection:   cfg.Collection,
		dimensions:   cfg.Dimensions,
		maxTextLen:   cfg.MaxTextLen,
		hnswM:        cfg.HNSWM,
		hnswEfBuild:  cfg.HNSWEfConstruct,
		hnswEfSearch: cfg.HNSWEfSearch,
		client:       &http.Client{Timeout: timeout},
	}
}

type pointPayload struct {
	DocumentID    string `json:"document_id"`
	Text          string `json:"text"`
	SequenceIndex int    `json:"sequence_index"`
	CharStart     int    `json:"char_start"`
	CharEnd       int    `json:"char_end"`
}

type point struct {
	ID      uint64       `json:"id"`
	Vector  []float32    `json:"vector,omitempty"`
	Payload pointPayload `json:"payload"`
}

type scoredPoint struct {
	point
	Score float64 `json:"score"`
}

type documentFilter struct {
	Must []fieldMatch `json:"must"`
}

type fieldMatch struct {
	Key   string     `json:"key"`
	Match matchValue `json:"match"`
}

type matchValue struct {
	Value string `json:"value"`
}

func filterByDocument(documentID string) *documentFilter {
	if documentID == "" {
		return nil
	}
	return &documentFilter{Must: []fieldMatch{{Key: "document_id", Match: matchValue{Value: documentID}}}}
}

// Init creates the collection if it does not exist yet and verifies the
// configured dimensionality when it does.
func (idx *Index) Init(ctx context.Context) error {
	var info struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	status, err := idx.do(ctx, http.MethodGet, "/collections/"+idx.collection, nil, &info)
	if err == nil && status == http.StatusOK {
		if got := info.Result.Config.Params.Vectors.Size; got != idx.dimensions {
			return utils.NewError(utils.KindConfiguration,
				fmt.Sprintf("collection %q has dimension %d, config expects %d", idx.collection, got, idx.dimensions))
		}
		return nil
	}
	if err != nil && status != http.StatusNotFound {
		return err
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     idx.dimensions,
			"distance": "Euclid",
		},
		"hnsw_config": map[string]any{
			"m":            idx.hnswM,
			"ef_construct": idx.hnswEfBuild,
		},
	}
	if _, err := idx.do(ctx, http.MethodPut, "/collections/"+idx.collection, create, nil); err != nil {
		return err
	}

	logger.Info("Created vector collection",
		"collection", idx.collection,
		"dimensions", idx.dimensions,
		"hnsw_m", idx.hnswM,
		"hnsw_ef_construct", idx.hnswEfBuild)
	return nil
}

func (idx *Index) Insert(ctx context.Context, records []vectorindex.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vectorindex.ValidateRecords(records, idx.dimensions, idx.maxTextLen); err != nil {
		return err
	}

	points := make([]point, len(records))
	for i, r := range records {
		points[i] = point{
			ID:     r.ID,
			Vector: r.Vector,
			Payload: pointPayload{
				DocumentID:    r.DocumentID,
				Text:          r.Text,
				SequenceIndex: r.SequenceIndex,
				CharStart:     r.CharStart,
				CharEnd:       r.CharEnd,
			},
		}
	}

	// wait=true blocks until the points are durably applied, so a
	// successful insert is immediately searchable.
	path := fmt.Sprintf("/collections/%s/points?wait=true", idx.collection)
	_, err := idx.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
	return err
}

func (idx *Index) Search(ctx context.Context, params vectorindex.SearchParams) ([]vectorindex.Hit, error) {
	if params.TopK <= 0 {
		return nil, utils.NewError(utils.KindValidation, "top_k must be positive")
	}
	if len(params.Vector) != idx.dimensions {
		return nil, utils.NewError(utils.KindValidation,
			fmt.Sprintf("query vector has dimension %d, index expects %d", len(params.Vector), idx.dimensions))
	}

	body := map[string]any{
		"vector":       params.Vector,
		"limit":        params.TopK,
		"with_payload": true,
		"with_vector":  params.WithVectors,
		"params":       map[string]any{"hnsw_ef": idx.hnswEfSearch},
	}
	if f := filterByDocument(params.DocumentID); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", idx.collection)
	if _, err := idx.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	hits := make([]vectorindex.Hit, 0, len(resp.Result))
	for _, p := range resp.Result {
		hits = append(hits, vectorindex.Hit{
			Record: recordFromPoint(p.point),
			// Euclid collections score with plain euclidean distance;
			// the interface contract is squared distance.
			Distance: p.Score * p.Score,
		})
	}
	return hits, nil
}

func (idx *Index) Fetch(ctx context.Context, documentID string, limit int, withVectors bool) ([]vectorindex.Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  withVectors,
	}
	if f := filterByDocument(documentID); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Result struct {
			Points []point `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", idx.collection)
	if _, err := idx.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	hits := make([]vectorindex.Hit, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		hits = append(hits, vectorindex.Hit{Record: recordFromPoint(p)})
	}
	// Scroll pages by point id; present records in document order instead.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].SequenceIndex < hits[j].SequenceIndex
	})
	return hits, nil
}

func (idx *Index) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	body := map[string]any{"exact": true}
	if f := filterByDocument(documentID); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", idx.collection)
	if _, err := idx.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (idx *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return utils.NewError(utils.KindValidation, "document_id must not be empty")
	}
	body := map[string]any{"filter": filterByDocument(documentID)}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", idx.collection)
	_, err := idx.do(ctx, http.MethodPost, path, body, nil)
	return err
}

func (idx *Index) Stats(ctx context.Context) (vectorindex.Stats, error) {
	var info struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if _, err := idx.do(ctx, http.MethodGet, "/collections/"+idx.collection, nil, &info); err != nil {
		return vectorindex.Stats{}, err
	}
	return vectorindex.Stats{
		Driver:      "qdrant",
		Collection:  idx.collection,
		TotalPoints: info.Result.PointsCount,
		Dimensions:  idx.dimensions,
	}, nil
}

func (idx *Index) Drop(ctx context.Context) error {
	_, err := idx.do(ctx, http.MethodDelete, "/collections/"+idx.collection, nil, nil)
	return err
}

func (idx *Index) Close(ctx context.Context) error {
	idx.client.CloseIdleConnections()
	return nil
}

func recordFromPoint(p point) vectorindex.Record {
	return vectorindex.Record{
		ID:            p.ID,
		DocumentID:    p.Payload.DocumentID,
		Text:          p.Payload.Text,
		SequenceIndex: p.Payload.SequenceIndex,
		CharStart:     p.Payload.CharStart,
		CharEnd:       p.Payload.CharEnd,
		Vector:        p.Vector,
	}
}

// do executes one REST call and decodes a 2xx response into out. Non-2xx
// responses become index errors carrying the status and a body excerpt;
// the status code is returned either way so Init can branch on 404.
func (idx *Index) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, utils.WrapError(utils.KindIndex, "failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, idx.baseURL+path, reader)
	if err != nil {
		return 0, utils.WrapError(utils.KindIndex, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idx.apiKey != "" {
		req.Header.Set("api-key", idx.apiKey)
	}

	resp, err := idx.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, utils.WrapError(utils.KindIndex, "vector store request timed out", err)
		}
		return 0, utils.WrapError(utils.KindIndex, "vector store unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, utils.NewError(utils.KindIndex,
			fmt.Sprintf("qdrant %s %s failed: %s: %s", method, path, resp.Status, string(excerpt)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, utils.WrapError(utils.KindIndex, "failed to decode response", err)
		}
	}
	return resp.StatusCode, nil
}

var _ vectorindex.Index = (*Index)(nil)
