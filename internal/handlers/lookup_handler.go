package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"number-lookup-api/internal/cache"
	"number-lookup-api/internal/middleware"
	"number-lookup-api/internal/partition"
	"number-lookup-api/internal/services"
	"number-lookup-api/internal/store"

	"github.com/gin-gonic/gin"
)

type LookupHandler struct {
	cache *cache.LookupCache
	store *store.PartitionedStore
}

func NewLookupHandler(c *cache.LookupCache, s *store.PartitionedStore) *LookupHandler {
	return &LookupHandler{cache: c, store: s}
}

// GetNumber answers a point lookup.
// @Summary Look up a subscriber number
// @Description Returns the record for a 10-digit number, served cache-aside
// @Tags lookup
// @Produce json
// @Param number query string true "10-digit subscriber number"
// @Security ApiKeyAuth
// @Success 200 {object} LookupResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/number [get]
func (h *LookupHandler) GetNumber(c *gin.Context) {
	start := time.Now()

	// Trim before routing: validation tolerates padded input, but the cache
	// key and the partition byte sum must see the canonical digits.
	number := strings.TrimSpace(c.Query("number"))
	if !partition.IsValidNumber(number) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Valid 10-digit number required"})
		return
	}

	rec, fromCache, err := h.cache.GetOrPopulate(c.Request.Context(), number)
	if err != nil {
		// Unavailability is never reported as "not found".
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Number not found", "number": number})
		return
	}

	c.JSON(http.StatusOK, LookupResponse{
		Success: true,
		Data:    rec,
		Meta: LookupMeta{
			Cached:            fromCache,
			ResponseTime:      fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
			RequestsRemaining: remainingFromContext(c),
		},
	})
}

// Search answers a text search across record fields.
// @Summary Search records
// @Description Case-insensitive substring search over record fields
// @Tags lookup
// @Produce json
// @Param q query string true "search query"
// @Param field query string false "name | number | address"
// @Security ApiKeyAuth
// @Success 200 {object} SearchResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/search [get]
func (h *LookupHandler) Search(c *gin.Context) {
	start := time.Now()

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Search query required",
			Details: "example: /api/search?q=john&field=name",
		})
		return
	}
	field := c.Query("field")
	limit := parsePositive(c.DefaultQuery("limit", "50"), 50)
	page := parsePositive(c.DefaultQuery("page", "1"), 1)

	all, err := h.store.Search(c.Request.Context(), query, field)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable"})
		return
	}

	startIdx := (page - 1) * limit
	endIdx := startIdx + limit
	if startIdx > len(all) {
		startIdx = len(all)
	}
	if endIdx > len(all) {
		endIdx = len(all)
	}

	fieldLabel := field
	if fieldLabel == "" {
		fieldLabel = "all_fields"
	}

	c.JSON(http.StatusOK, SearchResponse{
		Search: SearchInfo{
			Query:        query,
			Field:        fieldLabel,
			TotalResults: len(all),
			Page:         page,
			Limit:        limit,
			TotalPages:   (len(all) + limit - 1) / limit,
		},
		Results:      all[startIdx:endIdx],
		ResponseTime: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
	})
}

func remainingFromContext(c *gin.Context) string {
	v, ok := c.Get(middleware.CtxAdmission)
	if !ok {
		return ""
	}
	result, ok := v.(services.AdmissionResult)
	if !ok {
		return ""
	}
	if result.Quota.Unlimited {
		return "Unlimited"
	}
	remaining := result.Quota.Limit - result.Quota.Used
	if remaining < 0 {
		remaining = 0
	}
	return strconv.FormatInt(remaining, 10)
}

func parsePositive(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
