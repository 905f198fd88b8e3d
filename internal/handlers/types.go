package handlers

import "number-lookup-api/internal/models"

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type LookupMeta struct {
	Cached            bool   `json:"cached"`
	ResponseTime      string `json:"response_time"`
	RequestsRemaining string `json:"requests_remaining"`
}

type LookupResponse struct {
	Success bool           `json:"success"`
	Data    *models.Record `json:"data"`
	Meta    LookupMeta     `json:"meta"`
}

type SearchInfo struct {
	Query        string `json:"query"`
	Field        string `json:"field"`
	TotalResults int    `json:"total_results"`
	Page         int    `json:"page"`
	Limit        int    `json:"limit"`
	TotalPages   int    `json:"total_pages"`
}

type SearchResponse struct {
	Search       SearchInfo       `json:"search"`
	Results      []*models.Record `json:"results"`
	ResponseTime string           `json:"response_time"`
}

// KeyDetails is the admin-facing rendering of a credential. Limit and
// remaining are strings because unlimited keys report "Unlimited".
type KeyDetails struct {
	APIKey    string `json:"api_key"`
	Limit     string `json:"limit"`
	Used      int64  `json:"used"`
	Remaining string `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
	IsActive  bool   `json:"is_active"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	LastUsed  int64  `json:"last_used,omitempty"`
}

type Pagination struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalKeys   int  `json:"total_keys"`
	KeysPerPage int  `json:"keys_per_page"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}
