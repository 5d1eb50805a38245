package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ItemQueries answers the public period questions.
type ItemQueries interface {
	ListOpen(ctx context.Context) ([]domain.ItemSummary, error)
	CurrentPeriod(ctx context.Context, id uuid.UUID) (domain.PeriodInfo, error)
}

// OutcomeQueries answers the public result questions.
type OutcomeQueries interface {
	Outcome(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeView, error)
	History(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]domain.OutcomeView, int, error)
}

// ItemHandler serves the public /api/items endpoints.
type ItemHandler struct {
	items    ItemQueries
	outcomes OutcomeQueries
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(items ItemQueries, outcomes OutcomeQueries) *ItemHandler {
	return &ItemHandler{items: items, outcomes: outcomes}
}

// List godoc
// GET /api/items
func (h *ItemHandler) List(c *gin.Context) {
	items, err := h.items.ListOpen(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "could not list items")
		return
	}
	respondSuccess(c, http.StatusOK, items)
}

// Period godoc
// GET /api/items/:id/period
func (h *ItemHandler) Period(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	info, err := h.items.CurrentPeriod(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not compute period")
		return
	}
	respondSuccess(c, http.StatusOK, info)
}

// Outcomes godoc
// GET /api/items/:id/outcomes?page=1&limit=20
func (h *ItemHandler) Outcomes(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	views, total, err := h.outcomes.History(c.Request.Context(), id, limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch outcomes")
		return
	}
	respondList(c, views, total, page, limit)
}

// Outcome godoc
// GET /api/items/:id/outcomes/:period
func (h *ItemHandler) Outcome(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	p, err := strconv.ParseInt(c.Param("period"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PERIOD", "period must be an integer")
		return
	}
	view, err := h.outcomes.Outcome(c.Request.Context(), id, domain.Period(p))
	if err != nil {
		respondDomainError(c, err, "could not fetch outcome")
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

func itemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid item id")
		return uuid.Nil, false
	}
	return id, true
}
