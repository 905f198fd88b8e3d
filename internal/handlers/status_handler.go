package handlers

import (
	"fmt"
	"net/http"
	"time"

	"number-lookup-api/configs"
	"number-lookup-api/internal/database"
	"number-lookup-api/internal/loader"
	"number-lookup-api/internal/services"
	"number-lookup-api/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type StatusHandler struct {
	store       *store.PartitionedStore
	credentials *services.CredentialService
	auth        *services.AuthService
	client      *redis.Client
	startedAt   time.Time
}

func NewStatusHandler(s *store.PartitionedStore, credentials *services.CredentialService, auth *services.AuthService, client *redis.Client) *StatusHandler {
	return &StatusHandler{
		store:       s,
		credentials: credentials,
		auth:        auth,
		client:      client,
		startedAt:   time.Now(),
	}
}

// Health reports liveness.
// @Summary Health check
// @Tags status
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/health [get]
func (h *StatusHandler) Health(c *gin.Context) {
	redisStatus := "connected"
	status := http.StatusOK
	if err := database.GetManager().Ping(c.Request.Context()); err != nil {
		redisStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    statusWord(status == http.StatusOK),
		"timestamp": time.Now().Unix(),
		"services": gin.H{
			"redis": redisStatus,
			"api":   "active",
		},
	})
}

// Status reports store statistics, key population and feed state.
// @Summary Service status
// @Tags status
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/status [get]
func (h *StatusHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.store.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable"})
		return
	}
	_, summary, err := h.credentials.List(ctx, "")
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable"})
		return
	}

	cfg := configs.AppConfig
	c.JSON(http.StatusOK, gin.H{
		"status":  "operational",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"storage": stats,
		"api_keys": gin.H{
			"total":          summary.TotalKeys,
			"active":         summary.ActiveKeys,
			"unlimited":      summary.UnlimitedKeys,
			"total_requests": summary.TotalRequests,
		},
		"rate_limit": fmt.Sprintf("%d requests per %s", cfg.RateLimitMax, cfg.RateLimitWindow),
		"cache_ttl":  cfg.CacheTTL.String(),
		"databases":  h.feedStates(c),
		"timestamp":  time.Now().Unix(),
	})
}

// DBStatus reports per-feed load state plus store statistics.
// @Summary Source database status
// @Tags status
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/db-status [get]
func (h *StatusHandler) DBStatus(c *gin.Context) {
	// A wrong secret is rejected; no secret at all is fine, the endpoint
	// only exposes aggregate counters.
	if secret := c.Query("secret"); secret != "" && !h.auth.Authorize(secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid admin secret"})
		return
	}

	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"storage":   stats,
		"databases": h.feedStates(c),
		"timestamp": time.Now().Unix(),
	})
}

type feedState struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Status     string `json:"status"`
	LastAccess string `json:"last_access,omitempty"`
}

func (h *StatusHandler) feedStates(c *gin.Context) []feedState {
	ctx := c.Request.Context()
	states := []feedState{}
	for _, src := range configs.SourceDatabases() {
		state := feedState{ID: src.ID, Name: src.Name, Enabled: src.Enabled, Status: "not_loaded"}
		if v, err := h.client.Get(ctx, loader.StatusKeyPrefix+src.ID).Result(); err == nil {
			state.Status = v
		}
		if v, err := h.client.Get(ctx, loader.LastAccessKeyPrefix+src.ID).Result(); err == nil {
			state.LastAccess = v
		}
		states = append(states, state)
	}
	return states
}

func statusWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "degraded"
}
