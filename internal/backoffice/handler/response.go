package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard admin response helpers (mirrors internal/api/handler/response.go)
// ──────────────────────────────────────────────────────────────────────────────

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondAdminError maps catalog and override errors. Operators see the
// underlying message for everything except unexpected failures.
func respondAdminError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "ERR_INTERNAL"
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		status, code = http.StatusNotFound, "ERR_ITEM_NOT_FOUND"
	case errors.Is(err, domain.ErrOutcomeAlreadySettled):
		status, code = http.StatusConflict, "ERR_OUTCOME_SETTLED"
	case errors.Is(err, domain.ErrPeriodInFuture):
		status, code = http.StatusBadRequest, "ERR_PERIOD_IN_FUTURE"
	case errors.Is(err, domain.ErrInvalidLabel):
		status, code = http.StatusBadRequest, "ERR_INVALID_LABEL"
	case domain.IsInvalidConfig(err):
		status, code = http.StatusBadRequest, "ERR_INVALID_CONFIG"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "ERR_UNAUTHORIZED"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	respondError(c, status, code, msg)
}

// adminPagination reads page/limit query params with sane defaults for admin views.
func adminPagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return
}

func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid item id")
		return uuid.Nil, false
	}
	return id, true
}
