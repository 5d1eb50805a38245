package handler

import (
	"net/http"

	"github.com/evetabi/periodsettle/internal/api/middleware"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/gin-gonic/gin"
)

// WalletHandler serves balance and ledger history. Deposits and withdrawals
// belong to the account service.
type WalletHandler struct {
	wallets service.WalletReader
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets service.WalletReader) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetBalance godoc
// GET /api/wallet/balance [JWT]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	wallet, err := h.wallets.GetByUserID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch wallet")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"balance":    wallet.Balance,
		"updated_at": wallet.UpdatedAt,
	})
}

// GetTransactions godoc
// GET /api/wallet/transactions?page=1&limit=20 [JWT]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	page, limit := parsePagination(c)
	txns, err := h.wallets.GetTransactions(c.Request.Context(), middleware.GetUserID(c), limit, (page-1)*limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch transactions")
		return
	}
	respondList(c, txns, len(txns), page, limit)
}

// Me godoc
// GET /api/me [JWT]
func (h *WalletHandler) Me(c *gin.Context) {
	userID := middleware.GetUserID(c)
	out := gin.H{
		"user_id": userID,
		"role":    middleware.GetRole(c),
	}
	// A caller without a wallet yet is still a valid identity.
	if wallet, err := h.wallets.GetByUserID(c.Request.Context(), userID); err == nil {
		out["balance"] = wallet.Balance
	}
	respondSuccess(c, http.StatusOK, out)
}
