package main

import (
	"context"
	"log"
	"os"

	"number-lookup-api/configs"
	"number-lookup-api/internal/cache"
	"number-lookup-api/internal/clock"
	"number-lookup-api/internal/database"
	"number-lookup-api/internal/handlers"
	"number-lookup-api/internal/loader"
	"number-lookup-api/internal/middleware"
	"number-lookup-api/internal/partition"
	"number-lookup-api/internal/services"
	"number-lookup-api/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// @title Number Lookup API
// @version 1.0
// @description Partitioned subscriber-number lookup service with per-key quotas and rate limiting

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default configuration")
	}
	if err := configs.LoadConfig(); err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	cfg := configs.AppConfig

	manager := database.GetManager()
	redisClient := manager.Redis
	clk := clock.NewSystemClock()

	router := partition.NewRouter(cfg.NumberPartitions)
	partStore := store.NewPartitionedStore(redisClient, router)
	lookupCache := cache.NewLookupCache(redisClient, partStore, cfg.CacheTTL, clk)

	// Quota checks fail closed, the sliding window fails open: a Redis
	// outage must not hand out free quota, but it may skip rate limiting.
	ledger := services.NewQuotaLedger(redisClient, clk, services.FailClosed)
	limiter := services.NewSlidingWindowLimiter(redisClient, clk, cfg.RateLimitWindow, cfg.RateLimitMax, services.FailOpen)
	gate := services.NewAdmissionGate(ledger, limiter)

	authService := services.NewAuthService()
	credentialService := services.NewCredentialService(redisClient, clk)
	bulkLoader := loader.NewLoader(partStore, redisClient, cfg.LoaderBatchSize)

	lookupHandler := handlers.NewLookupHandler(lookupCache, partStore)
	adminHandler := handlers.NewAdminHandler(authService, credentialService, lookupCache, partStore, bulkLoader)
	statusHandler := handlers.NewStatusHandler(partStore, credentialService, authService, redisClient)
	wsHandler := handlers.NewWebSocketHandler()

	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORSMiddleware())

	// Public routes
	engine.GET("/api/health", statusHandler.Health)
	engine.GET("/api/status", statusHandler.Status)
	engine.GET("/api/db-status", statusHandler.DBStatus)
	engine.POST("/api/admin/login", adminHandler.Login)

	// Lookup routes, behind the admission gate
	protected := engine.Group("/api")
	protected.Use(middleware.AdmissionMiddleware(gate))
	protected.GET("/number", lookupHandler.GetNumber)
	protected.GET("/search", lookupHandler.Search)

	// Admin routes
	admin := engine.Group("/api/admin")
	admin.Use(middleware.AdminMiddleware(authService))
	admin.GET("/generate-key", adminHandler.GenerateKey)
	admin.GET("/update-key", adminHandler.UpdateKey)
	admin.POST("/update-key", adminHandler.UpdateKey)
	admin.GET("/list-keys", adminHandler.ListKeys)
	admin.GET("/clear-cache", adminHandler.ClearCache)
	admin.POST("/load", adminHandler.Load)

	if cfg.EnableWebSocket {
		go wsHandler.RunHub()
		go wsHandler.SubscribeUsage(context.Background(), redisClient)
		engine.GET("/ws", wsHandler.HandleConnections)
	}

	port := ":" + cfg.ServerPort
	log.Printf("Server starting on port %s", port)
	if err := engine.Run(port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
