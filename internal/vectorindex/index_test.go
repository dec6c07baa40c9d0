package vectorindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-rag-platform/utils"
)

func TestRecordIDIsStable(t *testing.T) {
	assert.Equal(t, RecordID("doc-1", 0), RecordID("doc-1", 0))
	assert.NotEqual(t, RecordID("doc-1", 0), RecordID("doc-1", 1))
	assert.NotEqual(t, RecordID("doc-1", 0), RecordID("doc-2", 0))

	// The separator keeps (doc, seq) pairs from colliding across shifted
	// boundaries.
	assert.NotEqual(t, RecordID("doc-11", 1), RecordID("doc-1", 11))
}

func TestValidateRecords(t *testing.T) {
	valid := func() []Record {
		return []Record{{
			ID:         RecordID("doc-1", 0),
			DocumentID: "doc-1",
			Text:       "hello",
			Vector:     []float32{1, 2, 3},
		}}
	}

	t.Run("accepts valid records", func(t *testing.T) {
		require.NoError(t, ValidateRecords(valid(), 3, 100))
	})

	t.Run("rejects empty document id", func(t *testing.T) {
		records := valid()
		records[0].DocumentID = ""
		err := ValidateRecords(records, 3, 100)
		require.Error(t, err)
		assert.True(t, utils.IsKind(err, utils.KindValidation))
	})

	t.Run("rejects oversized document id", func(t *testing.T) {
		records := valid()
		records[0].DocumentID = strings.Repeat("x", 256)
		err := ValidateRecords(records, 3, 100)
		require.Error(t, err)
		assert.True(t, utils.IsKind(err, utils.KindValidation))
	})

	t.Run("rejects wrong dimensionality", func(t *testing.T) {
		records := valid()
		records[0].Vector = []float32{1, 2}
		err := ValidateRecords(records, 3, 100)
		require.Error(t, err)
		assert.True(t, utils.IsKind(err, utils.KindValidation))
	})

	t.Run("truncates oversized text keeping offsets", func(t *testing.T) {
		records := valid()
		records[0].Text = strings.Repeat("a", 150)
		records[0].CharStart = 10
		records[0].CharEnd = 160

		require.NoError(t, ValidateRecords(records, 3, 100))
		assert.Len(t, records[0].Text, 100)
		assert.Equal(t, 10, records[0].CharStart)
		assert.Equal(t, 160, records[0].CharEnd)
	})

	t.Run("zero max text length disables truncation", func(t *testing.T) {
		records := valid()
		records[0].Text = strings.Repeat("a", 5000)
		require.NoError(t, ValidateRecords(records, 3, 0))
		assert.Len(t, records[0].Text, 5000)
	})
}
