// Package memory provides an in-process vector index. It backs unit tests
// and single-node development runs (VECTOR_INDEX_DRIVER=memory); search is
// exact brute-force over per-document partitions rather than approximate.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/utils"
)

type Index struct {
	mu         sync.RWMutex
	dimensions int
	maxTextLen int
	byDocument map[string][]vectorindex.Record
}

func New(dimensions, maxTextLen int) *Index {
	return &Index{
		dimensions: dimensions,
		maxTextLen: maxTextLen,
		byDocument: make(map[string][]vectorindex.Record),
	}
}

func (idx *Index) Init(ctx context.Context) error {
	if idx.dimensions <= 0 {
		return utils.NewError(utils.KindConfiguration, "vector dimensions must be positive")
	}
	return nil
}

// Insert upserts by record id within the document partition.
func (idx *Index) Insert(ctx context.Context, records []vectorindex.Record) error {
	if err := vectorindex.ValidateRecords(records, idx.dimensions, idx.maxTextLen); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, r := range records {
		stored := r
		stored.Vector = append([]float32(nil), r.Vector...)

		partition := idx.byDocument[r.DocumentID]
		replaced := false
		for i := range partition {
			if partition[i].ID == r.ID {
				partition[i] = stored
				replaced = true
				break
			}
		}
		if !replaced {
			partition = append(partition, stored)
		}
		idx.byDocument[r.DocumentID] = partition
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, params vectorindex.SearchParams) ([]vectorindex.Hit, error) {
	if params.TopK <= 0 {
		return nil, utils.NewError(utils.KindValidation, "top_k must be positive")
	}
	if len(params.Vector) != idx.dimensions {
		return nil, utils.NewError(utils.KindValidation,
			fmt.Sprintf("query vector has dimension %d, index expects %d", len(params.Vector), idx.dimensions))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var hits []vectorindex.Hit
	scan := func(partition []vectorindex.Record) {
		for _, r := range partition {
			hit := vectorindex.Hit{
				Record:   r,
				Distance: vectorindex.SquaredL2(params.Vector, r.Vector),
			}
			if params.WithVectors {
				hit.Vector = append([]float32(nil), r.Vector...)
			} else {
				hit.Vector = nil
			}
			hits = append(hits, hit)
		}
	}

	if params.DocumentID != "" {
		scan(idx.byDocument[params.DocumentID])
	} else {
		for _, partition := range idx.byDocument {
			scan(partition)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].SequenceIndex < hits[j].SequenceIndex
	})

	if len(hits) > params.TopK {
		hits = hits[:params.TopK]
	}
	return hits, nil
}

func (idx *Index) Fetch(ctx context.Context, documentID string, limit int, withVectors bool) ([]vectorindex.Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var records []vectorindex.Record
	if documentID != "" {
		records = append(records, idx.byDocument[documentID]...)
	} else {
		for _, partition := range idx.byDocument {
			records = append(records, partition...)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].DocumentID != records[j].DocumentID {
			return records[i].DocumentID < records[j].DocumentID
		}
		return records[i].SequenceIndex < records[j].SequenceIndex
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	hits := make([]vectorindex.Hit, 0, len(records))
	for _, r := range records {
		hit := vectorindex.Hit{Record: r}
		if withVectors {
			hit.Vector = append([]float32(nil), r.Vector...)
		} else {
			hit.Vector = nil
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (idx *Index) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int64(len(idx.byDocument[documentID])), nil
}

func (idx *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byDocument, documentID)
	return nil
}

func (idx *Index) Stats(ctx context.Context) (vectorindex.Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	for _, partition := range idx.byDocument {
		total += int64(len(partition))
	}
	return vectorindex.Stats{
		Driver:      "memory",
		Collection:  "in-process",
		TotalPoints: total,
		Dimensions:  idx.dimensions,
	}, nil
}

func (idx *Index) Drop(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byDocument = make(map[string][]vectorindex.Record)
	return nil
}

func (idx *Index) Close(ctx context.Context) error {
	return nil
}

var _ vectorindex.Index = (*Index)(nil)
