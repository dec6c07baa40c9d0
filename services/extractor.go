package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/webfetch"
	"document-rag-platform/utils"
)

// TextExtractor converts uploaded files into normalized plain text.
// Extraction is pure with respect to the store: it reads bytes and
// returns text, the caller decides what to do with it.
type TextExtractor struct {
	config *config.Config
}

// ExtractionResult contains the extracted text and basic analysis.
type ExtractionResult struct {
	Text           string
	Method         string
	Pages          int
	WordCount      int
	CharacterCount int
	ProcessingTime time.Duration
}

// NewTextExtractor creates a new text extractor
func NewTextExtractor(cfg *config.Config) *TextExtractor {
	return &TextExtractor{config: cfg}
}

// SupportedExtension reports whether ext (with leading dot) is enabled.
func (e *TextExtractor) SupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range e.config.AllowedExtensions {
		if ext == strings.TrimSpace(allowed) {
			return true
		}
	}
	return false
}

// Extract dispatches on the filename extension and returns normalized
// text. A file that yields no text is a degenerate_input error so the
// caller never indexes an empty document.
func (e *TextExtractor) Extract(ctx context.Context, filename string, content []byte) (*ExtractionResult, error) {
	start := time.Now()

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
		return nil, utils.WrapError(utils.KindTimeout, "extraction aborted", ctx.Err())
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !e.SupportedExtension(ext) {
		return nil, utils.NewError(utils.KindValidation,
			fmt.Sprintf("unsupported file type: %s", ext))
	}

	var (
		result *ExtractionResult
		err    error
	)
	switch ext {
	case ".pdf":
		result, err = e.extractPDF(content)
	case ".html", ".htm":
		result, err = e.extractHTML(content)
	case ".xlsx":
		result, err = e.extractXLSX(content)
	default:
		result, err = e.extractPlain(content)
	}
	if err != nil {
		return nil, err
	}

	result.Text = normalizeText(result.Text)
	if result.Text == "" {
		return nil, utils.NewError(utils.KindDegenerateInput,
			fmt.Sprintf("no text could be extracted from %s", filename))
	}

	words := strings.Fields(result.Text)
	result.WordCount = len(words)
	result.CharacterCount = len(result.Text)
	result.ProcessingTime = time.Since(start)
	return result, nil
}

func (e *TextExtractor) extractPDF(content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, utils.WrapError(utils.KindValidation, "failed to read PDF", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from PDF page", "page", i, "error", err.Error())
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	return &ExtractionResult{
		Text:   textBuilder.String(),
		Method: "go-pdf",
		Pages:  pages,
	}, nil
}

func (e *TextExtractor) extractHTML(content []byte) (*ExtractionResult, error) {
	doc, err := webfetch.ParseHTML(content)
	if err != nil {
		return nil, err
	}
	return &ExtractionResult{
		Text:   webfetch.ExtractReadableText(doc),
		Method: "html",
		Pages:  1,
	}, nil
}

func (e *TextExtractor) extractXLSX(content []byte) (*ExtractionResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, utils.WrapError(utils.KindValidation, "failed to read XLSX", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	sheets := f.GetSheetList()

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logger.Warn("Failed to read XLSX sheet", "sheet", sheet, "error", err.Error())
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				textBuilder.WriteString("\n")
				textBuilder.WriteString(line)
			}
		}
	}

	return &ExtractionResult{
		Text:   textBuilder.String(),
		Method: "xlsx",
		Pages:  len(sheets),
	}, nil
}

func (e *TextExtractor) extractPlain(content []byte) (*ExtractionResult, error) {
	return &ExtractionResult{
		Text:   string(content),
		Method: "plain",
		Pages:  1,
	}, nil
}

var tripleNewline = regexp.MustCompile(`\n{3,}`)

// normalizeText unifies line endings, strips NUL and invalid UTF-8 bytes
// and collapses runs of blank lines. Chunk offsets are computed over the
// normalized text, so normalization happens exactly once, here.
func normalizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = tripleNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
