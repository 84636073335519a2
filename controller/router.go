package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// NewRouter mounts the API on a gin engine.
func NewRouter(c *RAGController, corsOrigin string) *gin.Engine {
	router := gin.Default()
	router.Use(corsMiddleware(corsOrigin))

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "convrag API",
			"version": Version,
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/query", c.QueryRAG)
		apiV1.POST("/retrieve", c.RetrieveSimilar)
		apiV1.POST("/documents", c.IngestDocuments)
		apiV1.POST("/files", c.UploadFile)
		apiV1.DELETE("/files/:name", c.DeleteFile)
		apiV1.GET("/chunks", c.GetAllChunks)
		apiV1.GET("/sessions/:id", c.GetSession)
		apiV1.DELETE("/sessions/:id", c.ClearSession)
	}
	return router
}

func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
