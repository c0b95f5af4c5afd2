package controller

import (
	"context"
	"net/http"
	"time"

	"resumable-upload/conf"
	"resumable-upload/controller/handler"
	"resumable-upload/controller/respond"
	"resumable-upload/database"
	uploaderDocs "resumable-upload/docs/uploader"
	"resumable-upload/service/upload_service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupUploadRouter setup upload service router
func SetupUploadRouter(uploadService *upload_service.UploadService) *gin.Engine {
	// Set Swagger host from config
	if conf.Cfg != nil {
		uploaderDocs.SwaggerInfouploader.Host = conf.Cfg.Uploader.SwaggerBaseUrl
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Content-Encoding", "Accept", "Authorization", respond.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", respond.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(respond.TimingMiddleware())

	uploadHandler := handler.NewUploadHandler(uploadService)

	v1 := r.Group("/api/v1")
	{
		uploads := v1.Group("/uploads")
		{
			// Create or resume session
			uploads.POST("/handshake", uploadHandler.Handshake)

			// Raw chunk body
			uploads.PUT("/:sessionId/chunks/:index", uploadHandler.UploadChunk)

			uploads.GET("/:sessionId", uploadHandler.GetStatus)
			uploads.POST("/:sessionId/finalize", uploadHandler.Finalize)

			// FAILED -> UPLOADING
			uploads.POST("/:sessionId/reset", uploadHandler.Reset)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := uploadService.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "uploader", "error": err.Error()})
			return
		}
		if database.IsRedisEnabled() {
			if err := database.RedisClient.Ping(ctx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "service": "uploader", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "uploader",
			"ledger":  database.GetDBType(),
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.InstanceName("uploader")))

	return r
}
