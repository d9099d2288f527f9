package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docmem/internal/middleware"
)

type RouterDeps struct {
	Sessions     *SessionHandler
	Documents    *DocumentHandler
	Query        *QueryHandler
	Memory       *MemoryHandler
	JWTSecret    []byte
	AskRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/sessions", deps.Sessions.Create)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/documents", deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:filename/text", deps.Documents.Text)
	authGroup.GET("/documents/:filename/insights", deps.Documents.Insights)
	authGroup.DELETE("/documents/:filename", deps.Documents.Delete)

	authGroup.POST("/search", deps.Query.Search)
	authGroup.POST("/ask", middleware.RateLimit(deps.AskRateLimit), deps.Query.Ask)
	authGroup.GET("/history", deps.Query.History)

	authGroup.GET("/stats", deps.Memory.Stats)
	authGroup.DELETE("/memory", deps.Memory.Clear)
}
