package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"document-rag-platform/models"
	"document-rag-platform/utils"
)

// Chunker splits extracted document text into ordered, overlapping,
// sentence-aligned segments. Offsets are byte positions into the UTF-8
// text; the boundary scan matches single-byte ASCII terminators and
// whitespace only, with a guard that never splits a multi-byte rune.
type Chunker struct {
	chunkSize int
	overlap   int
	lookback  int
}

// NewChunker validates the size/overlap combination up front. The overlap
// must satisfy 0 < overlap < chunkSize; anything else is a configuration
// error, never silently clamped.
func NewChunker(chunkSize, overlap, lookback int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, utils.NewError(utils.KindConfiguration,
			fmt.Sprintf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap <= 0 || overlap >= chunkSize {
		return nil, utils.NewError(utils.KindConfiguration,
			fmt.Sprintf("overlap must satisfy 0 < overlap < chunk size, got overlap=%d chunk size=%d", overlap, chunkSize))
	}
	if lookback <= 0 {
		lookback = 100
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		lookback:  lookback,
	}, nil
}

// Chunk splits text into segments of at most chunkSize bytes, preferring
// to end each segment just after a sentence terminator found within the
// lookback window, then after whitespace, then hard-cutting. Consecutive
// segments overlap by approximately the configured overlap. The produced
// spans cover [0, len(text)) with no gaps and each chunk's Text is the
// exact substring of the input, so the original text is reconstructible.
func (c *Chunker) Chunk(text string) ([]models.Chunk, error) {
	if len(strings.TrimSpace(text)) == 0 {
		return nil, utils.NewError(utils.KindDegenerateInput, "document text is empty")
	}

	length := len(text)
	chunks := make([]models.Chunk, 0, length/(c.chunkSize-c.overlap)+1)

	pos := 0
	for seq := 0; ; seq++ {
		end := pos + c.chunkSize
		if end >= length {
			end = length
		} else {
			end = c.snapToBoundary(text, pos, end)
		}

		chunks = append(chunks, models.Chunk{
			SequenceIndex: seq,
			Text:          text[pos:end],
			CharStart:     pos,
			CharEnd:       end,
		})

		if end == length {
			break
		}

		next := end - c.overlap
		for next < length && !utf8.RuneStart(text[next]) {
			next++
		}
		if next <= pos {
			// Overlap would revisit the previous start. Force forward
			// progress by continuing from the end of this chunk.
			next = end
		}
		pos = next
	}

	return chunks, nil
}

// snapToBoundary moves the proposed end backward to just after the
// rightmost sentence terminator within the lookback window, falling back
// to the rightmost whitespace, falling back to a hard cut. A hard cut is
// additionally backed off to a rune start so spans stay valid UTF-8.
func (c *Chunker) snapToBoundary(text string, pos, end int) int {
	windowStart := end - c.lookback
	if windowStart < pos+1 {
		windowStart = pos + 1
	}

	for i := end - 1; i >= windowStart; i-- {
		if isSentenceTerminator(text[i]) {
			return i + 1
		}
	}
	for i := end - 1; i >= windowStart; i-- {
		if isSpace(text[i]) {
			return i + 1
		}
	}

	for end > pos+1 && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

func isSentenceTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
