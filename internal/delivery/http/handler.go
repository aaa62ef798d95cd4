package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/infrastructure/page"
	"github.com/truecost/backend/internal/infrastructure/timeline"
	"github.com/truecost/backend/internal/observability"
	"github.com/truecost/backend/internal/pricing"
	"github.com/truecost/backend/internal/usecase"
)

const version = "1.0.0"

// CatalogRetriever is the retrieval use case as the handler sees it
type CatalogRetriever interface {
	Retrieve(ctx context.Context, req usecase.RetrieveRequest, progress usecase.ProgressFunc) (*usecase.RetrieveResult, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	retrieval  CatalogRetriever
	sortConfig usecase.SortEngineConfig
	logger     zerolog.Logger
}

// NewHandler creates a new HTTP handler. retrieval may be nil, in which case the
// catalog retrieval endpoint answers 503.
func NewHandler(retrieval CatalogRetriever, sortConfig usecase.SortEngineConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		retrieval:  retrieval,
		sortConfig: sortConfig,
		logger:     observability.Component(logger, "http"),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "truecost-backend",
		"version": version,
	})
}

// TimelineEntryRequest is one observed network request
type TimelineEntryRequest struct {
	URL       string    `json:"url" binding:"required"`
	StartedAt time.Time `json:"startedAt"`
	Initiator string    `json:"initiator"`
}

// RetrieveCatalogRequest is the body of POST /api/v1/catalog/retrieve
type RetrieveCatalogRequest struct {
	PageURL   string                 `json:"pageUrl" binding:"required"`
	Timeline  []TimelineEntryRequest `json:"timeline" binding:"dive"`
	Category  string                 `json:"category"`
	SkipCache bool                   `json:"skipCache"`
}

// RetrieveCatalog fetches every product of a category page
func (h *Handler) RetrieveCatalog(c *gin.Context) {
	if h.retrieval == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog retrieval not configured"})
		return
	}

	var req RetrieveCatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	category, ok := optionalCategory(req.Category)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + req.Category})
		return
	}

	observed := timeline.NewMemoryTimeline()
	for _, e := range req.Timeline {
		observed.Record(domain.TimelineEntry{URL: e.URL, StartedAt: e.StartedAt, Initiator: e.Initiator})
	}

	result, err := h.retrieval.Retrieve(c.Request.Context(), usecase.RetrieveRequest{
		PageURL:   req.PageURL,
		Timeline:  observed,
		Category:  category,
		SkipCache: req.SkipCache,
	}, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SortEntriesRequest is the body of POST /api/v1/catalog/sort
type SortEntriesRequest struct {
	Entries   []domain.Entry  `json:"entries" binding:"required"`
	Category  string          `json:"category" binding:"required"`
	Selectors *page.Selectors `json:"selectors"`
}

// SortEntriesResponse is the new render order and the products read from each entry
type SortEntriesResponse struct {
	Category domain.UnitCategory `json:"category"`
	Order    []string            `json:"order"`
	Products []*domain.Product   `json:"products"`
}

// SortEntries orders rendered listing entries by true unit price
func (h *Handler) SortEntries(c *gin.Context) {
	var req SortEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	category, ok := domain.ParseUnitCategory(req.Category)
	if !ok || category == domain.CategoryNone {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + req.Category})
		return
	}

	if err := validateEntryIDs(req.Entries); err != nil {
		h.respondError(c, err)
		return
	}

	cfg := h.sortConfig
	if req.Selectors != nil {
		cfg.Selectors = *req.Selectors
	}

	list := page.NewList(req.Entries...)
	engine := usecase.NewSortEngine(list, cfg, h.logger)
	defer engine.Close()

	products, err := engine.SortBy(category)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SortEntriesResponse{
		Category: category,
		Order:    list.IDs(),
		Products: products,
	})
}

// ParsePricesRequest is the body of POST /api/v1/prices/parse
type ParsePricesRequest struct {
	Texts []string `json:"texts" binding:"required"`
}

// ParsedPrice is the parse result of one price text. Value is null when unparseable.
type ParsedPrice struct {
	Text      string   `json:"text"`
	Value     *float64 `json:"value"`
	Formatted string   `json:"formatted"`
}

// ParsePrices parses localized price texts
func (h *Handler) ParsePrices(c *gin.Context) {
	var req ParsePricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	results := make([]ParsedPrice, len(req.Texts))
	for i, text := range req.Texts {
		v := pricing.ParsePrice(text)
		results[i] = ParsedPrice{Text: text, Formatted: pricing.FormatPrice(v)}
		if pricing.Valid(v) {
			results[i].Value = &v
		}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ClassifyUnitRequest is the body of POST /api/v1/units/classify. Format, when set,
// is a raw "<quantity> <unit>" string and overrides Label and Quantity.
type ClassifyUnitRequest struct {
	Label    string `json:"label"`
	Quantity string `json:"quantity"`
	Format   string `json:"format"`
}

// ClassifyUnit maps a unit label to its unit category
func (h *Handler) ClassifyUnit(c *gin.Context) {
	var req ClassifyUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	label, quantity := req.Label, req.Quantity
	if strings.TrimSpace(req.Format) != "" {
		quantity, label = pricing.ParseFormat(req.Format)
	}
	if strings.TrimSpace(label) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label or format is required"})
		return
	}

	category := pricing.Classify(label, quantity)
	c.JSON(http.StatusOK, gin.H{
		"label":    label,
		"quantity": quantity,
		"folded":   pricing.FoldLabel(label),
		"category": category,
		"rankable": category != domain.CategoryNone,
	})
}

// respondError maps use case errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoEndpoint):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrStructural):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// validateEntryIDs requires every posted entry to carry its own id, since the new order
// is reported by id
func validateEntryIDs(entries []domain.Entry) error {
	seen := make(map[string]int, len(entries))
	for i, entry := range entries {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return fmt.Errorf("%w: entry %d has no id", domain.ErrInvalidRequest, i)
		}
		if first, ok := seen[id]; ok {
			return fmt.Errorf("%w: entries %d and %d share id %q", domain.ErrInvalidRequest, first, i, id)
		}
		seen[id] = i
	}
	return nil
}

// optionalCategory parses a category that may be empty
func optionalCategory(s string) (domain.UnitCategory, bool) {
	if strings.TrimSpace(s) == "" {
		return "", true
	}
	return domain.ParseUnitCategory(s)
}
