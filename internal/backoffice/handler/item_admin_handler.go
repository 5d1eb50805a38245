package handler

import (
	"context"
	"net/http"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CatalogAdmin is the operator side of the catalog service.
// *service.CatalogService implements it.
type CatalogAdmin interface {
	ListItems(ctx context.Context, limit, offset int) ([]*domain.WageringItem, int, error)
	GetItem(ctx context.Context, id uuid.UUID) (*domain.WageringItem, error)
	CreateItem(ctx context.Context, in service.ItemInput) (*domain.WageringItem, error)
	UpdateItem(ctx context.Context, id uuid.UUID, in service.ItemInput) (*domain.WageringItem, error)
	DisableItem(ctx context.Context, id uuid.UUID) error
	OverrideOutcome(ctx context.Context, req domain.OverrideRequest) (*domain.OutcomeRecord, error)
	OutcomeHistory(ctx context.Context, id uuid.UUID, limit, offset int) ([]*domain.OutcomeRecord, int, error)
}

// ItemAdminHandler serves /admin/items endpoints.
type ItemAdminHandler struct {
	catalog CatalogAdmin
}

// NewItemAdminHandler creates an ItemAdminHandler.
func NewItemAdminHandler(catalog CatalogAdmin) *ItemAdminHandler {
	return &ItemAdminHandler{catalog: catalog}
}

// itemBody is shared by create and update. Active defaults to true on create.
type itemBody struct {
	Title                 string              `json:"title"                   binding:"required"`
	Coefficients          domain.Coefficients `json:"outcome_coefficients"    binding:"required"`
	PeriodDurationSeconds int64               `json:"period_duration_seconds" binding:"required"`
	Active                *bool               `json:"active"`
}

func (b itemBody) input() service.ItemInput {
	active := true
	if b.Active != nil {
		active = *b.Active
	}
	return service.ItemInput{
		Title:                 b.Title,
		Coefficients:          b.Coefficients,
		PeriodDurationSeconds: b.PeriodDurationSeconds,
		Active:                active,
	}
}

// List godoc
// GET /admin/items?page=1&limit=50
func (h *ItemAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	items, total, err := h.catalog.ListItems(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		respondAdminError(c, err)
		return
	}
	respondList(c, items, total, page, limit)
}

// Detail godoc
// GET /admin/items/:id
func (h *ItemAdminHandler) Detail(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	it, err := h.catalog.GetItem(c.Request.Context(), id)
	if err != nil {
		respondAdminError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, it)
}

// Create godoc
// POST /admin/items
// Body: {"title":"dice","outcome_coefficients":{"A":"1","B":"1.2","C":"1.5","D":"2"},"period_duration_seconds":60}
func (h *ItemAdminHandler) Create(c *gin.Context) {
	var body itemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	it, err := h.catalog.CreateItem(c.Request.Context(), body.input())
	if err != nil {
		respondAdminError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, it)
}

// Update godoc
// PUT /admin/items/:id
func (h *ItemAdminHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body itemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	it, err := h.catalog.UpdateItem(c.Request.Context(), id, body.input())
	if err != nil {
		respondAdminError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, it)
}

// Disable godoc
// POST /admin/items/:id/disable
func (h *ItemAdminHandler) Disable(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.catalog.DisableItem(c.Request.Context(), id); err != nil {
		respondAdminError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "disabled", "item_id": id})
}
