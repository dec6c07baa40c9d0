package routes

import (
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/models"
	"document-rag-platform/services"
	"document-rag-platform/utils"
)

const (
	inspectDefaultLimit = 20
	inspectMaxLimit     = 500
	inspectPreviewChars = 200
	inspectPreviewDims  = 10
)

// SetupVectorRoutes registers the index inspection and stats endpoints.
func SetupVectorRoutes(router *gin.Engine, index vectorindex.Index, metadata *services.MetadataService) {
	api := router.Group("/api")
	api.GET("/vectors", HandleVectorInspect(index))
	api.GET("/stats", HandleStats(index, metadata))
}

// HandleVectorInspect exposes stored chunk records for debugging what the
// index actually holds. Text and vectors are truncated to previews unless
// the full forms are explicitly requested.
func HandleVectorInspect(index vectorindex.Index) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileID := c.Query("file_id")
		if fileID == "" {
			utils.RespondWithBadRequest(c, "file_id query parameter is required", nil)
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(inspectDefaultLimit)))
		if err != nil || limit <= 0 || limit > inspectMaxLimit {
			limit = inspectDefaultLimit
		}
		fullContent, _ := strconv.ParseBool(c.DefaultQuery("full_content", "false"))
		showVectors, _ := strconv.ParseBool(c.DefaultQuery("show_vectors", "false"))

		hits, err := index.Fetch(c.Request.Context(), fileID, limit, true)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		views := make([]models.VectorView, 0, len(hits))
		for _, h := range hits {
			view := models.VectorView{
				ID:            h.ID,
				FileID:        h.DocumentID,
				SequenceIndex: h.SequenceIndex,
				CharStart:     h.CharStart,
				CharEnd:       h.CharEnd,
				ChunkText:     h.Text,
				TextLength:    len(h.Text),
			}
			if !fullContent {
				view.ChunkText = previewText(h.Text, inspectPreviewChars)
			}
			if showVectors {
				view.Vector = h.Vector
			} else {
				view.VectorDim = len(h.Vector)
				if len(h.Vector) > inspectPreviewDims {
					view.VectorPreview = h.Vector[:inspectPreviewDims]
				} else {
					view.VectorPreview = h.Vector
				}
			}
			views = append(views, view)
		}

		c.JSON(http.StatusOK, models.InspectResponse{
			Count:       len(views),
			FullContent: fullContent,
			ShowVectors: showVectors,
			Vectors:     views,
		})
	}
}

// HandleStats reports document metadata totals alongside index stats.
func HandleStats(index vectorindex.Index, metadata *services.MetadataService) gin.HandlerFunc {
	return func(c *gin.Context) {
		docStats, err := metadata.Stats(c.Request.Context())
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		indexStats, err := index.Stats(c.Request.Context())
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": docStats,
			"index":     indexStats,
		})
	}
}

// previewText truncates on a rune boundary so a multi-byte character is
// never split mid-sequence.
func previewText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
