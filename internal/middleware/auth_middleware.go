package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"number-lookup-api/internal/services"

	"github.com/gin-gonic/gin"
)

// Context keys set for downstream handlers after a successful admission.
const (
	CtxAPIKey    = "api_key"
	CtxAdmission = "admission"
)

// AdmissionMiddleware runs every lookup request through the admission gate:
// quota first, then the sliding window. Rejections terminate the request
// here with the status codes the API contract promises (401 for bad
// credentials, 429 for exhausted budgets, 503 when the ledger itself is
// down).
func AdmissionMiddleware(gate *services.AdmissionGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			c.Abort()
			return
		}

		result, err := gate.Admit(c.Request.Context(), apiKey)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrUnknownKey):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			case errors.Is(err, services.ErrLedgerUnavailable):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			c.Abort()
			return
		}

		if !result.Allowed {
			switch result.Reason {
			case services.AdmitInactive:
				c.JSON(http.StatusUnauthorized, gin.H{"error": "API key is inactive"})
			case services.AdmitQuotaExceeded:
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":   "API limit exceeded",
					"details": fmt.Sprintf("Used %d/%d requests", result.Quota.Used, result.Quota.Limit),
				})
			case services.AdmitRateLimited:
				c.Header("Retry-After", strconv.Itoa(result.RetryAfter))
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":       "Too many requests",
					"retry_after": result.RetryAfter,
				})
			}
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Rate.Remaining))
		c.Set(CtxAPIKey, apiKey)
		c.Set(CtxAdmission, result)

		c.Next()
	}
}

// AdminMiddleware guards the admin surface: either the shared secret (query
// parameter, as the original tooling sends it) or a bearer token from
// /api/admin/login.
func AdminMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.Query("secret")
		if secret == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				secret = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if secret == "" && c.Request.Method == http.MethodPost {
			secret = c.PostForm("secret")
		}

		if !auth.Authorize(secret) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid admin secret"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORSMiddleware mirrors the permissive headers of the original API.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
