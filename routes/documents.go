package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"document-rag-platform/internal/config"
	"document-rag-platform/services"
	"document-rag-platform/utils"
)

// SetupDocumentRoutes registers the document lifecycle endpoints.
func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, docs *services.DocumentService) {
	api := router.Group("/api")

	api.POST("/documents", HandleDocumentUpload(cfg, docs))
	api.POST("/documents/from-url", HandleURLIngest(docs))
	api.GET("/documents", HandleDocumentList(docs))
	api.GET("/documents/:file_id", HandleDocumentGet(docs))
	api.DELETE("/documents/:file_id", HandleDocumentDelete(docs))
}

// HandleDocumentUpload accepts a multipart upload and runs it through the
// ingestion pipeline, inline or queued depending on ?async= and file size.
func HandleDocumentUpload(cfg *config.Config, docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest,
				"file_too_large",
				"File size exceeds maximum limit",
				gin.H{"max_size": cfg.MaxFileSize})
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided in the 'file' form field", nil)
			return
		}
		defer file.Close()

		isAsync, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))

		resp, err := docs.Upload(c.Request.Context(), &services.UploadRequest{
			File:    file,
			Header:  header,
			IsAsync: isAsync,
		})
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		switch resp.ProcessingMode {
		case "async":
			c.JSON(http.StatusAccepted, resp)
		case "duplicate":
			c.JSON(http.StatusOK, resp)
		default:
			c.JSON(http.StatusCreated, resp)
		}
	}
}

// HandleURLIngest fetches one web page and ingests its readable text.
func HandleURLIngest(docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			URL string `json:"url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Request body must include a url field", gin.H{"error": err.Error()})
			return
		}

		resp, err := docs.IngestFromURL(c.Request.Context(), req.URL, false)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		if resp.ProcessingMode == "duplicate" {
			c.JSON(http.StatusOK, resp)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// HandleDocumentList returns document records, newest first.
func HandleDocumentList(docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
		if err != nil || limit <= 0 || limit > 1000 {
			limit = 100
		}
		offset, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
		if err != nil || offset < 0 {
			offset = 0
		}

		documents, total, err := docs.List(c.Request.Context(), limit, offset)
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": documents,
			"count":     len(documents),
			"total":     total,
			"limit":     limit,
			"offset":    offset,
		})
	}
}

// HandleDocumentGet returns metadata and processing status for one document.
func HandleDocumentGet(docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := docs.Get(c.Request.Context(), c.Param("file_id"))
		if err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// HandleDocumentDelete removes a document and everything derived from it.
func HandleDocumentDelete(docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileID := c.Param("file_id")
		if err := docs.Delete(c.Request.Context(), fileID); err != nil {
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "document deleted",
			"file_id": fileID,
		})
	}
}
