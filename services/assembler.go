package services

import (
	"fmt"

	"document-rag-platform/models"
	"document-rag-platform/utils"
)

const (
	DropReasonDuplicate = "duplicate"
	DropReasonBudget    = "budget"
)

// ContextResult is the bounded context produced for the generation step.
// Blocks preserve rank order; Dropped records every chunk excluded by
// deduplication or the character budget.
type ContextResult struct {
	Blocks     []string
	Dropped    []models.DroppedChunk
	TotalChars int
}

// ContextAssembler turns a ranked chunk list into a deduplicated context
// whose total character count never exceeds the configured budget.
type ContextAssembler struct {
	maxContextChars int
	minFragment     int
}

func NewContextAssembler(maxContextChars, minFragment int) (*ContextAssembler, error) {
	if maxContextChars <= 0 {
		return nil, utils.NewError(utils.KindConfiguration,
			fmt.Sprintf("context budget must be positive, got %d", maxContextChars))
	}
	if minFragment <= 0 {
		minFragment = 50
	}
	return &ContextAssembler{
		maxContextChars: maxContextChars,
		minFragment:     minFragment,
	}, nil
}

// Assemble walks the ranked list in order. Chunks whose text is
// byte-identical to an already included block are skipped and recorded as
// duplicates. Whole chunks are included while they fit the budget; the
// first chunk that would overflow is replaced by a sentence-boundary
// truncated prefix when that prefix is at least minFragment characters,
// otherwise dropped. Once the budget is consumed every later chunk is
// dropped. The summed block lengths never exceed the budget.
func (ca *ContextAssembler) Assemble(ranked []models.ScoredChunk) ContextResult {
	result := ContextResult{}
	seen := make(map[string]struct{}, len(ranked))
	remaining := ca.maxContextChars
	exhausted := false

	for _, sc := range ranked {
		if _, dup := seen[sc.Text]; dup {
			result.Dropped = append(result.Dropped, models.DroppedChunk{
				ChunkID: sc.ChunkID,
				Reason:  DropReasonDuplicate,
			})
			continue
		}

		if !exhausted && len(sc.Text) <= remaining {
			result.Blocks = append(result.Blocks, sc.Text)
			seen[sc.Text] = struct{}{}
			remaining -= len(sc.Text)
			continue
		}

		if !exhausted {
			// First overflow. Try a truncated prefix, then stop including.
			exhausted = true
			prefix := truncateAtSentence(sc.Text, remaining)
			if len(prefix) >= ca.minFragment {
				result.Blocks = append(result.Blocks, prefix)
				seen[sc.Text] = struct{}{}
				remaining -= len(prefix)
				continue
			}
		}

		result.Dropped = append(result.Dropped, models.DroppedChunk{
			ChunkID: sc.ChunkID,
			Reason:  DropReasonBudget,
		})
	}

	result.TotalChars = ca.maxContextChars - remaining
	return result
}

// truncateAtSentence returns the longest prefix of text within limit that
// ends just after a sentence terminator, falling back to whitespace. An
// empty string means no boundary-aligned prefix fits.
func truncateAtSentence(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}

	for i := limit - 1; i >= 0; i-- {
		if isSentenceTerminator(text[i]) {
			return text[:i+1]
		}
	}
	for i := limit - 1; i >= 0; i-- {
		if isSpace(text[i]) {
			return text[:i+1]
		}
	}
	return ""
}
