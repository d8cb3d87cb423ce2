package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wallet-pipeline/internal/handler"
	"wallet-pipeline/internal/handler/response"
	"wallet-pipeline/pkg/monitor"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(sessions *handler.SessionHandler) *gin.Engine {
	monitor.Init()

	r := gin.New()
	r.Use(gin.Recovery(), monitor.PrometheusMiddleware())

	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})

		requests := api.Group("/requests")
		requests.POST("", sessions.Open)
		requests.GET("/:id", sessions.Get)
		requests.DELETE("/:id", sessions.Close)
		requests.GET("/:id/journal", sessions.Journal)
		requests.POST("/:id/refresh", sessions.Refresh)
		requests.POST("/:id/confirm", sessions.Confirm)
		requests.POST("/:id/fee-bump", sessions.FeeBump)
		requests.POST("/:id/cancel", sessions.Cancel)
	}

	return r
}
