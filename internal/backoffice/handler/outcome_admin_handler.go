package handler

import (
	"net/http"
	"strconv"

	"github.com/evetabi/periodsettle/internal/api/middleware"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutcomeAdminHandler serves operator overrides and full outcome history.
type OutcomeAdminHandler struct {
	catalog CatalogAdmin
}

// NewOutcomeAdminHandler creates an OutcomeAdminHandler.
func NewOutcomeAdminHandler(catalog CatalogAdmin) *OutcomeAdminHandler {
	return &OutcomeAdminHandler{catalog: catalog}
}

// Override godoc
// PUT /admin/items/:id/outcomes/:period
// Body: {"primary":"B","secondary":"D"}
//
// The caller's token subject is recorded as the record's editor.
func (h *OutcomeAdminHandler) Override(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	period, err := strconv.ParseInt(c.Param("period"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PERIOD", "period must be an integer")
		return
	}
	var body struct {
		Primary   string `json:"primary" binding:"required"`
		Secondary string `json:"secondary"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	req := domain.OverrideRequest{
		ItemID:  id,
		Period:  domain.Period(period),
		Primary: domain.Label(body.Primary),
	}
	if body.Secondary != "" {
		sec := domain.Label(body.Secondary)
		req.Secondary = &sec
	}
	if editor := middleware.GetUserID(c); editor != uuid.Nil {
		req.Editor = editor.String()
	}

	rec, err := h.catalog.OverrideOutcome(c.Request.Context(), req)
	if err != nil {
		respondAdminError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, rec)
}

// History godoc
// GET /admin/items/:id/outcomes?page=1&limit=50
//
// Unlike the public history this includes unsettled records.
func (h *OutcomeAdminHandler) History(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	page, limit := adminPagination(c)
	recs, total, err := h.catalog.OutcomeHistory(c.Request.Context(), id, limit, (page-1)*limit)
	if err != nil {
		respondAdminError(c, err)
		return
	}
	respondList(c, recs, total, page, limit)
}
