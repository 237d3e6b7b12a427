package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/eventstream/api/handlers"
	"github.com/customeros/eventstream/api/middleware"
	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/repository"
	"github.com/customeros/eventstream/internal/tracing"
	"github.com/customeros/eventstream/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, jwtSecret string) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// Health, status and metrics endpoints (no viewer identity needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.LivestreamService, s.StatsService))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var tokenRepository interfaces.TokenRepository
	if repos != nil {
		tokenRepository = repos.TokenRepository
	}

	// API group with version and viewer identity
	api := r.Group("/v1")
	api.Use(middleware.JWTMiddleware(middleware.JWTConfig{Secret: jwtSecret}))
	api.Use(middleware.CustomContextMiddleware("eventstream")) // Add custom context for all /v1/* endpoints
	api.Use(middleware.TracingMiddleware())                    // Add tracing for all /v1/* endpoints
	{
		api.GET("/stream", handlers.Stream(s.LivestreamService))
		api.GET("/stats", handlers.Stats(s.StatsService))
		api.GET("/tokens", middleware.RequireAdmin(), handlers.ListTokens(s.TokensService, tokenRepository))
	}
}
