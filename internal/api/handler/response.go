package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
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

// respondDomainError maps a service error onto a status and error code.
// Anything unrecognised is a 500 carrying fallback rather than err's text.
func respondDomainError(c *gin.Context, err error, fallback string) {
	status, code := http.StatusInternalServerError, "ERR_INTERNAL"
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		status, code = http.StatusNotFound, "ERR_ITEM_NOT_FOUND"
	case errors.Is(err, domain.ErrOutcomeNotFound):
		status, code = http.StatusNotFound, "ERR_OUTCOME_NOT_FOUND"
	case errors.Is(err, domain.ErrWalletNotFound):
		status, code = http.StatusNotFound, "ERR_WALLET_NOT_FOUND"
	case errors.Is(err, domain.ErrItemInactive):
		status, code = http.StatusConflict, "ERR_ITEM_INACTIVE"
	case errors.Is(err, domain.ErrPeriodClosed):
		status, code = http.StatusConflict, "ERR_PERIOD_CLOSED"
	case errors.Is(err, domain.ErrPeriodInFuture):
		status, code = http.StatusBadRequest, "ERR_PERIOD_IN_FUTURE"
	case errors.Is(err, domain.ErrInsufficientBalance):
		status, code = http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE"
	case errors.Is(err, domain.ErrWagerTooSmall):
		status, code = http.StatusBadRequest, "ERR_WAGER_TOO_SMALL"
	case errors.Is(err, domain.ErrInvalidStake):
		status, code = http.StatusBadRequest, "ERR_INVALID_STAKE"
	case errors.Is(err, domain.ErrInvalidLabel), errors.Is(err, domain.ErrEmptyLabelSet):
		status, code = http.StatusBadRequest, "ERR_INVALID_LABELS"
	case domain.IsInvalidConfig(err):
		status, code = http.StatusUnprocessableEntity, "ERR_ITEM_MISCONFIGURED"
	}
	msg := fallback
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}
	respondError(c, status, code, msg)
}

func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return
}
