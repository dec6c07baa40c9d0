package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"document-rag-platform/models"
	"document-rag-platform/services"
	"document-rag-platform/utils"
)

// SetupQueryRoutes registers the question answering endpoint.
func SetupQueryRoutes(router *gin.Engine, rag *services.RAGService) {
	api := router.Group("/api")
	api.POST("/query", HandleQuery(rag))
}

// HandleQuery answers a question against one ingested document. With
// ?show_similarity=true the response includes per-chunk cosine scores and
// an explanation of how they were derived.
func HandleQuery(rag *services.RAGService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Request body must include file_id and query", gin.H{"error": err.Error()})
			return
		}

		withSimilarity, _ := strconv.ParseBool(c.DefaultQuery("show_similarity", "false"))

		resp, err := rag.Answer(c.Request.Context(), req, withSimilarity)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
