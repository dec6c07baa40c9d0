package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"document-rag-platform/internal/vectorindex"
)

// SetupHealthRoutes registers the liveness probe and the service info page.
func SetupHealthRoutes(router *gin.Engine, mongoClient *mongo.Client, rdb *redis.Client, index vectorindex.Index) {
	router.GET("/health", HandleHealth(mongoClient, rdb, index))
	router.GET("/", HandleServiceInfo())
}

// HandleHealth pings each backing store with a short deadline. The endpoint
// stays 200 while the API itself is up; per-component state tells operators
// what is degraded.
func HandleHealth(mongoClient *mongo.Client, rdb *redis.Client, index vectorindex.Index) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		components := gin.H{}

		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			components["mongodb"] = "unreachable"
		} else {
			components["mongodb"] = "ok"
		}

		if err := rdb.Ping(ctx).Err(); err != nil {
			components["redis"] = "unreachable"
		} else {
			components["redis"] = "ok"
		}

		if _, err := index.Stats(ctx); err != nil {
			components["vector_index"] = "unreachable"
		} else {
			components["vector_index"] = "ok"
		}

		status := "healthy"
		for _, state := range components {
			if state != "ok" {
				status = "degraded"
				break
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     status,
			"components": components,
			"timestamp":  time.Now(),
		})
	}
}

// HandleServiceInfo describes the API surface for anyone hitting the root.
func HandleServiceInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "document-rag-platform",
			"endpoints": gin.H{
				"upload":    "POST /api/documents",
				"from_url":  "POST /api/documents/from-url",
				"documents": "GET /api/documents",
				"document":  "GET /api/documents/:file_id",
				"delete":    "DELETE /api/documents/:file_id",
				"query":     "POST /api/query",
				"vectors":   "GET /api/vectors",
				"stats":     "GET /api/stats",
				"health":    "GET /health",
			},
		})
	}
}
