package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"number-lookup-api/configs"
	"number-lookup-api/internal/cache"
	"number-lookup-api/internal/database"
	"number-lookup-api/internal/loader"
	"number-lookup-api/internal/models"
	"number-lookup-api/internal/services"
	"number-lookup-api/internal/store"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	auth        *services.AuthService
	credentials *services.CredentialService
	cache       *cache.LookupCache
	store       *store.PartitionedStore
	loader      *loader.Loader
}

func NewAdminHandler(auth *services.AuthService, credentials *services.CredentialService, c *cache.LookupCache, s *store.PartitionedStore, l *loader.Loader) *AdminHandler {
	return &AdminHandler{auth: auth, credentials: credentials, cache: c, store: s, loader: l}
}

// Login exchanges the admin secret for a bearer token.
// @Summary Issue an admin token
// @Tags admin
// @Accept json
// @Produce json
// @Router /api/admin/login [post]
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" form:"secret"`
	}
	if err := c.ShouldBind(&req); err != nil || !h.auth.ValidateSecret(req.Secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid admin secret"})
		return
	}

	token, err := h.auth.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"expires_in": int(configs.AppConfig.JWTTTL.Seconds()),
	})
}

// GenerateKey issues a new API key.
// @Summary Generate an API key
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Router /api/admin/generate-key [get]
func (h *AdminHandler) GenerateKey(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	unlimited := c.Query("unlimited") == "true"
	name := c.Query("name")

	cred, err := h.credentials.Generate(c.Request.Context(), name, limit, unlimited)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "API key generated successfully",
		"api_key": cred.Key,
		"details": keyDetails(cred),
	})
}

// UpdateKey applies a partial administrative update to a key.
// @Summary Update an API key
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Router /api/admin/update-key [get]
func (h *AdminHandler) UpdateKey(c *gin.Context) {
	key := param(c, "key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "API key parameter is required"})
		return
	}

	upd := services.CredentialUpdate{}
	if v := param(c, "limit"); v != "" {
		if limit, err := strconv.ParseInt(v, 10, 64); err == nil {
			upd.Limit = &limit
		}
	}
	if v := param(c, "unlimited"); v != "" {
		unlimited := v == "true" || v == "1"
		upd.Unlimited = &unlimited
	}
	if v := param(c, "reset_usage"); v == "true" || v == "1" {
		upd.ResetUsage = true
	}
	if v := param(c, "is_active"); v != "" {
		active := v == "true" || v == "1"
		upd.IsActive = &active
	}
	if v := param(c, "name"); v != "" {
		upd.Name = &v
	}
	if v := param(c, "email"); v != "" {
		upd.Email = &v
	}

	cred, changes, err := h.credentials.Update(c.Request.Context(), key, upd)
	if err != nil {
		if errors.Is(err, services.ErrUnknownKey) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "API key not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Failed to update API key"})
		return
	}

	message := "No changes made to API key"
	if len(changes) > 0 {
		message = "API key updated: " + strings.Join(changes, ", ")
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    keyDetails(cred),
		"meta":    gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)},
	})
}

// ListKeys lists credentials with pagination, filtering and a summary.
// @Summary List API keys
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Router /api/admin/list-keys [get]
func (h *AdminHandler) ListKeys(c *gin.Context) {
	page := parsePositive(c.DefaultQuery("page", "1"), 1)
	limit := parsePositive(c.DefaultQuery("limit", "50"), 50)
	search := c.Query("search")

	creds, summary, err := h.credentials.List(c.Request.Context(), search)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Failed to retrieve API keys"})
		return
	}

	startIdx := (page - 1) * limit
	endIdx := startIdx + limit
	if startIdx > len(creds) {
		startIdx = len(creds)
	}
	if endIdx > len(creds) {
		endIdx = len(creds)
	}

	details := make([]KeyDetails, 0, endIdx-startIdx)
	for _, cred := range creds[startIdx:endIdx] {
		details = append(details, keyDetails(cred))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"keys": details,
			"pagination": Pagination{
				CurrentPage: page,
				TotalPages:  (len(creds) + limit - 1) / limit,
				TotalKeys:   len(creds),
				KeysPerPage: limit,
				HasNext:     endIdx < len(creds),
				HasPrev:     page > 1,
			},
			"summary": summary,
		},
	})
}

// ClearCache wipes the lookup cache and all partition hashes so a clean
// reload can follow.
// @Summary Clear cached lookups and partitions
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Router /api/admin/clear-cache [get]
func (h *AdminHandler) ClearCache(c *gin.Context) {
	ctx := c.Request.Context()

	cached, err := h.cache.Clear(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
		return
	}
	partitions, err := h.store.ClearPartitions(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cleared " + strconv.Itoa(cached+partitions) + " cache entries",
		"cleared": gin.H{"number_cache": cached, "partitions": partitions},
	})
}

// Load triggers bulk ingestion: one CSV feed by id, the MySQL feed, or
// every enabled feed when db_id is omitted.
// @Summary Run the bulk loader
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /api/admin/load [post]
func (h *AdminHandler) Load(c *gin.Context) {
	var req struct {
		DBID string `json:"db_id" form:"db_id"`
	}
	c.ShouldBind(&req)
	ctx := c.Request.Context()

	if req.DBID == "mysql" {
		db, err := database.GetManager().SourceDB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": h.loader.LoadMySQL(ctx, db, configs.AppConfig.SourceMySQLTable)})
		return
	}

	if req.DBID != "" {
		for _, src := range configs.SourceDatabases() {
			if src.ID == req.DBID {
				c.JSON(http.StatusOK, gin.H{"success": true, "result": h.loader.LoadCSV(ctx, src)})
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Database not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": h.loader.LoadAll(ctx)})
}

func keyDetails(cred *models.Credential) KeyDetails {
	limit := strconv.FormatInt(cred.Limit, 10)
	remaining := strconv.FormatInt(cred.Remaining(), 10)
	if cred.Unlimited {
		limit = "Unlimited"
		remaining = "Unlimited"
	}
	return KeyDetails{
		APIKey:    cred.Key,
		Limit:     limit,
		Used:      cred.Used,
		Remaining: remaining,
		Unlimited: cred.Unlimited,
		IsActive:  cred.IsActive,
		Name:      cred.Name,
		Email:     cred.Email,
		CreatedAt: cred.CreatedAt,
		LastUsed:  cred.LastUsed,
	}
}

// param reads a request parameter from the query string or, on POST, the
// form body, since admin tooling uses both.
func param(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.PostForm(name)
}
