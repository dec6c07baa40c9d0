package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"document-rag-platform/internal/config"
	"document-rag-platform/utils"
)

func newTestExtractor() *TextExtractor {
	return NewTextExtractor(&config.Config{
		AllowedExtensions: []string{".pdf", ".txt", ".md", ".html", ".htm", ".xlsx"},
	})
}

func TestExtractPlainText(t *testing.T) {
	extractor := newTestExtractor()

	result, err := extractor.Extract(context.Background(), "notes.txt", []byte("First line.\nSecond line has five words."))
	require.NoError(t, err)

	assert.Equal(t, "First line.\nSecond line has five words.", result.Text)
	assert.Equal(t, "plain", result.Method)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 7, result.WordCount)
	assert.Equal(t, len(result.Text), result.CharacterCount)
}

func TestExtractMarkdownAsPlain(t *testing.T) {
	extractor := newTestExtractor()

	result, err := extractor.Extract(context.Background(), "README.md", []byte("# Title\n\nBody text."))
	require.NoError(t, err)
	assert.Equal(t, "plain", result.Method)
	assert.Equal(t, "# Title\n\nBody text.", result.Text)
}

func TestExtractNormalizesText(t *testing.T) {
	extractor := newTestExtractor()

	t.Run("line endings unified", func(t *testing.T) {
		result, err := extractor.Extract(context.Background(), "crlf.txt", []byte("one\r\ntwo\rthree"))
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo\nthree", result.Text)
	})

	t.Run("nul bytes and invalid utf8 removed", func(t *testing.T) {
		result, err := extractor.Extract(context.Background(), "dirty.txt", []byte("cle\x00an\xff text"))
		require.NoError(t, err)
		assert.Equal(t, "clean text", result.Text)
	})

	t.Run("blank line runs collapsed", func(t *testing.T) {
		result, err := extractor.Extract(context.Background(), "gaps.txt", []byte("para one\n\n\n\n\npara two"))
		require.NoError(t, err)
		assert.Equal(t, "para one\n\npara two", result.Text)
	})

	t.Run("surrounding whitespace trimmed", func(t *testing.T) {
		result, err := extractor.Extract(context.Background(), "pad.txt", []byte("  \n padded \n  "))
		require.NoError(t, err)
		assert.Equal(t, "padded", result.Text)
	})
}

func TestExtractEmptyContentIsDegenerate(t *testing.T) {
	extractor := newTestExtractor()

	for name, content := range map[string][]byte{
		"empty file":      {},
		"only whitespace": []byte("   \n\t\r\n  "),
		"only nul bytes":  []byte("\x00\x00"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := extractor.Extract(context.Background(), "hollow.txt", content)
			require.Error(t, err)
			assert.True(t, utils.IsKind(err, utils.KindDegenerateInput))
		})
	}
}

func TestExtractRejectsUnsupportedExtension(t *testing.T) {
	extractor := newTestExtractor()

	_, err := extractor.Extract(context.Background(), "binary.exe", []byte("MZ..."))
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
	assert.Contains(t, err.Error(), ".exe")
}

func TestExtractHTMLKeepsReadableBlocks(t *testing.T) {
	extractor := newTestExtractor()

	page := []byte(`<html>
<head><title>Quarterly Report</title><style>body { color: red }</style></head>
<body>
<nav>Home | About</nav>
<main>
  <h1>Quarterly Report</h1>
  <p>Revenue grew in the third quarter.</p>
  <script>alert("hi")</script>
  <p>Costs stayed flat.</p>
</main>
<footer>Copyright</footer>
</body>
</html>`)

	result, err := extractor.Extract(context.Background(), "report.html", page)
	require.NoError(t, err)

	assert.Equal(t, "Quarterly Report\n\nRevenue grew in the third quarter.\n\nCosts stayed flat.", result.Text)
	assert.Equal(t, "html", result.Method)
	assert.NotContains(t, result.Text, "alert")
	assert.NotContains(t, result.Text, "Home | About")
	assert.NotContains(t, result.Text, "Copyright")
}

func TestExtractXLSX(t *testing.T) {
	extractor := newTestExtractor()

	workbook := excelize.NewFile()
	require.NoError(t, workbook.SetCellValue("Sheet1", "A1", "Region"))
	require.NoError(t, workbook.SetCellValue("Sheet1", "B1", "Total"))
	require.NoError(t, workbook.SetCellValue("Sheet1", "A2", "West"))
	require.NoError(t, workbook.SetCellValue("Sheet1", "B2", 42))
	buf, err := workbook.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, workbook.Close())

	result, err := extractor.Extract(context.Background(), "report.xlsx", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, "Sheet1\nRegion\tTotal\nWest\t42", result.Text)
	assert.Equal(t, "xlsx", result.Method)
	assert.Equal(t, 1, result.Pages)
}

func TestExtractRejectsMalformedPDF(t *testing.T) {
	extractor := newTestExtractor()

	_, err := extractor.Extract(context.Background(), "broken.pdf", []byte("not a pdf at all"))
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
}

func TestExtractRejectsMalformedXLSX(t *testing.T) {
	extractor := newTestExtractor()

	_, err := extractor.Extract(context.Background(), "broken.xlsx", []byte("not a zip archive"))
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
}

func TestExtractHonorsExpiredContext(t *testing.T) {
	extractor := newTestExtractor()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := extractor.Extract(ctx, "notes.txt", []byte("content"))
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindTimeout))
}

func TestSupportedExtension(t *testing.T) {
	extractor := newTestExtractor()

	assert.True(t, extractor.SupportedExtension(".txt"))
	assert.True(t, extractor.SupportedExtension(".PDF"))
	assert.False(t, extractor.SupportedExtension(".docx"))
	assert.False(t, extractor.SupportedExtension(""))
}
