package handler

import (
	"context"
	"net/http"

	"github.com/evetabi/periodsettle/internal/api/middleware"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WagerPlacer is the wager side of the service layer.
type WagerPlacer interface {
	PlaceWager(ctx context.Context, req domain.PlaceWagerRequest) (*domain.Wager, error)
	ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Wager, error)
}

// WagerHandler serves wager placement and history.
type WagerHandler struct {
	wagers WagerPlacer
}

// NewWagerHandler creates a WagerHandler.
func NewWagerHandler(wagers WagerPlacer) *WagerHandler {
	return &WagerHandler{wagers: wagers}
}

// PlaceWager godoc
// POST /api/wagers [JWT]
// Body: {"item_id":"uuid","period":123,"labels":"AB","stake":"100.00"}
func (h *WagerHandler) PlaceWager(c *gin.Context) {
	var body struct {
		ItemID string `json:"item_id" binding:"required"`
		Period *int64 `json:"period"  binding:"required"`
		Labels string `json:"labels"  binding:"required"`
		Stake  string `json:"stake"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	itemID, err := uuid.Parse(body.ItemID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ITEM_ID", "invalid item_id format")
		return
	}
	labels, err := domain.ParseLabelSet(body.Labels)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LABELS", err.Error())
		return
	}
	stake, err := decimal.NewFromString(body.Stake)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_STAKE", "stake must be a decimal string")
		return
	}

	wager, err := h.wagers.PlaceWager(c.Request.Context(), domain.PlaceWagerRequest{
		UserID: middleware.GetUserID(c),
		ItemID: itemID,
		Period: domain.Period(*body.Period),
		Labels: labels,
		Stake:  stake,
	})
	if err != nil {
		respondDomainError(c, err, "could not place wager")
		return
	}
	respondSuccess(c, http.StatusCreated, wager.ToResponse())
}

// MyWagers godoc
// GET /api/wagers/my?page=1&limit=20 [JWT]
func (h *WagerHandler) MyWagers(c *gin.Context) {
	page, limit := parsePagination(c)
	wagers, err := h.wagers.ListMine(c.Request.Context(), middleware.GetUserID(c), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch wagers")
		return
	}
	out := make([]domain.WagerResponse, 0, len(wagers))
	for _, w := range wagers {
		out = append(out, w.ToResponse())
	}
	respondList(c, out, len(out), page, limit)
}
