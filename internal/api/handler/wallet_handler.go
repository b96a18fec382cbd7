package handler

import (
	"net/http"

	"github.com/evetabi/betengine/internal/api/middleware"
	"github.com/evetabi/betengine/internal/service"
	"github.com/gin-gonic/gin"
)

// WalletHandler serves account opening, balance and transaction history.
type WalletHandler struct {
	betSvc *service.BettingService
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(betSvc *service.BettingService) *WalletHandler {
	return &WalletHandler{betSvc: betSvc}
}

// OpenAccount godoc
// POST /api/wallet/open [JWT]
// Idempotent: 201 when the account is created, 200 when it already existed.
func (h *WalletHandler) OpenAccount(c *gin.Context) {
	acc, created, err := h.betSvc.OpenAccount(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err, "could not open account")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondSuccess(c, status, acc)
}

// GetBalance godoc
// GET /api/wallet/balance [JWT]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	acc, err := h.betSvc.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err, "could not fetch balance")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"balance":    acc.Balance,
		"updated_at": acc.UpdatedAt,
	})
}

// GetTransactions godoc
// GET /api/wallet/transactions?page=1&limit=20 [JWT]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	txns, err := h.betSvc.Transactions(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondServiceError(c, err, "could not fetch transactions")
		return
	}
	respondList(c, txns, len(txns), page, limit)
}
