package services

import (
	"context"
	"fmt"

	"document-rag-platform/internal/ai"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

// fakeEmbedder returns deterministic vectors keyed by exact text. Unknown
// texts embed to the zero vector. Every batch is recorded so tests can
// assert on call shape.
type fakeEmbedder struct {
	dims        int
	vectors     map[string][]float32
	errs        []error
	batches     [][]string
	returnCount int
}

var _ ai.Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, append([]string(nil), texts...))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = append([]float32(nil), v...)
		} else {
			out[i] = make([]float32, f.dims)
		}
	}
	if f.returnCount > 0 && f.returnCount < len(out) {
		out = out[:f.returnCount]
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Model() string   { return "fake-embedder" }

// fakeLookup serves document records from a map, standing in for the
// mongo-backed metadata service.
type fakeLookup struct {
	docs map[string]*models.Document
}

var _ DocumentLookup = (*fakeLookup)(nil)

func (f *fakeLookup) GetByFileID(ctx context.Context, fileID string) (*models.Document, error) {
	doc, ok := f.docs[fileID]
	if !ok {
		return nil, utils.NewError(utils.KindNotFound, fmt.Sprintf("document %s not found", fileID))
	}
	return doc, nil
}

// fakeGenerator returns a canned answer and records what it was asked.
type fakeGenerator struct {
	answer     string
	err        error
	calls      int
	lastQuery  string
	lastBlocks []string
}

var _ ai.Generator = (*fakeGenerator)(nil)

func (f *fakeGenerator) GenerateAnswer(ctx context.Context, query string, contextBlocks []string) (string, error) {
	f.calls++
	f.lastQuery = query
	f.lastBlocks = append([]string(nil), contextBlocks...)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeStatusStore records lifecycle transitions without a database.
type fakeStatusStore struct {
	readyCalls  []string
	failedCalls []string
	lastReason  string
	readyErr    error
}

var _ DocumentStatusStore = (*fakeStatusStore)(nil)

func (f *fakeStatusStore) MarkReady(ctx context.Context, fileID string, charLength, chunksCount, vectorsCount int) error {
	f.readyCalls = append(f.readyCalls, fileID)
	return f.readyErr
}

func (f *fakeStatusStore) MarkFailed(ctx context.Context, fileID, message string) error {
	f.failedCalls = append(f.failedCalls, fileID)
	f.lastReason = message
	return nil
}
