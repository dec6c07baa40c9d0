package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Run("direct tagged error", func(t *testing.T) {
		err := NewError(KindNotFound, "no such document")
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("tag survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("embed call failed: %w", NewError(KindRateLimited, "throttled"))
		assert.Equal(t, KindRateLimited, KindOf(err))
		assert.True(t, IsKind(err, KindRateLimited))
	})

	t.Run("outermost tag wins", func(t *testing.T) {
		inner := NewError(KindProvider, "upstream broke")
		outer := WrapError(KindIndex, "insert failed", inner)
		assert.Equal(t, KindIndex, KindOf(outer))
	})

	t.Run("untagged error has empty kind", func(t *testing.T) {
		assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
		assert.Equal(t, Kind(""), KindOf(nil))
	})
}

func TestIsRetryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindValidation:       false,
		KindConfiguration:    false,
		KindProvider:         false,
		KindRateLimited:      true,
		KindTimeout:          true,
		KindIndex:            false,
		KindNotFound:         false,
		KindDocumentNotReady: false,
		KindDegenerateInput:  false,
	}
	for kind, want := range retryable {
		t.Run(string(kind), func(t *testing.T) {
			assert.Equal(t, want, IsRetryable(NewError(kind, "x")))
		})
	}
	assert.False(t, IsRetryable(errors.New("untagged")))
}

func TestStatusForKind(t *testing.T) {
	statuses := map[Kind]int{
		KindValidation:       http.StatusBadRequest,
		KindConfiguration:    http.StatusBadRequest,
		KindDegenerateInput:  http.StatusBadRequest,
		KindNotFound:         http.StatusNotFound,
		KindDocumentNotReady: http.StatusConflict,
		KindRateLimited:      http.StatusTooManyRequests,
		KindProvider:         http.StatusBadGateway,
		KindTimeout:          http.StatusBadGateway,
		KindIndex:            http.StatusInternalServerError,
	}
	for kind, want := range statuses {
		t.Run(string(kind), func(t *testing.T) {
			assert.Equal(t, want, statusForKind(kind))
		})
	}

	t.Run("unknown kind defaults to 500", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, statusForKind(Kind("mystery")))
	})
}

func recordAppError(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondWithAppError(c, err)
	return rec
}

func TestRespondWithAppError(t *testing.T) {
	t.Run("tagged error maps kind and message", func(t *testing.T) {
		rec := recordAppError(NewError(KindDocumentNotReady, "document doc-1 is processing"))

		assert.Equal(t, http.StatusConflict, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "document_not_ready", body.ErrorCode)
		assert.Equal(t, "document doc-1 is processing", body.Message)
	})

	t.Run("untagged error does not leak internals", func(t *testing.T) {
		rec := recordAppError(errors.New("dial tcp 10.0.0.3:27017: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "internal_error", body.ErrorCode)
		assert.Equal(t, "internal server error", body.Message)
		assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	})
}
