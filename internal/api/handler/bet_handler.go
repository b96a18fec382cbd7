package handler

import (
	"net/http"
	"strings"

	"github.com/evetabi/betengine/internal/api/middleware"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetHandler serves placement, cancellation, close and history endpoints.
type BetHandler struct {
	betSvc *service.BettingService
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(betSvc *service.BettingService) *BetHandler {
	return &BetHandler{betSvc: betSvc}
}

// placeBetBody is the JSON body of POST /api/bets.  Decimal fields travel as
// strings; only the fields relevant to kind are read.
type placeBetBody struct {
	Kind      string `json:"kind"      binding:"required"`
	Direction string `json:"direction" binding:"required"`
	Amount    string `json:"amount"    binding:"required"`

	MarketID    string `json:"market_id"`
	OptionIndex int    `json:"option_index"`

	Symbol     string  `json:"symbol"`
	Leverage   string  `json:"leverage"`
	TakeProfit *string `json:"take_profit"`
	StopLoss   *string `json:"stop_loss"`

	DurationSec int64   `json:"duration_sec"`
	Odds        *string `json:"odds"`
}

// PlaceBet godoc
// POST /api/bets [JWT]
// Body: {"kind":"PRICE","direction":"long","amount":"100","symbol":"BTCUSDT","leverage":"10"}
func (h *BetHandler) PlaceBet(c *gin.Context) {
	var body placeBetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a decimal string")
		return
	}

	req := domain.PlaceBetRequest{
		UserID:      middleware.GetUserID(c),
		Kind:        domain.MarketKind(strings.ToUpper(body.Kind)),
		Direction:   domain.Direction(strings.ToLower(body.Direction)),
		Amount:      amount,
		MarketID:    body.MarketID,
		OptionIndex: body.OptionIndex,
		Symbol:      strings.ToUpper(body.Symbol),
		DurationSec: body.DurationSec,
	}
	if body.Leverage != "" {
		if req.Leverage, err = decimal.NewFromString(body.Leverage); err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_ODDS", "leverage must be a decimal string")
			return
		}
	}
	for _, f := range []struct {
		name string
		in   *string
		out  **decimal.Decimal
	}{
		{"take_profit", body.TakeProfit, &req.TakeProfit},
		{"stop_loss", body.StopLoss, &req.StopLoss},
		{"odds", body.Odds, &req.Odds},
	} {
		if f.in == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.in)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", f.name+" must be a decimal string")
			return
		}
		*f.out = &d
	}

	bet, err := h.betSvc.PlaceBet(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "could not place bet")
		return
	}
	respondSuccess(c, http.StatusCreated, bet)
}

// CancelBet godoc
// POST /api/bets/:id/cancel [JWT]
func (h *BetHandler) CancelBet(c *gin.Context) {
	betID, ok := betIDParam(c)
	if !ok {
		return
	}
	res, err := h.betSvc.CancelBet(c.Request.Context(), middleware.GetUserID(c), betID)
	if err != nil {
		respondServiceError(c, err, "could not cancel bet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"refunded_amount": res.RefundedAmount,
		"data":            res.Bet,
	})
}

// ClosePosition godoc
// POST /api/bets/:id/close [JWT]
func (h *BetHandler) ClosePosition(c *gin.Context) {
	betID, ok := betIDParam(c)
	if !ok {
		return
	}
	bet, err := h.betSvc.ClosePosition(c.Request.Context(), middleware.GetUserID(c), betID)
	if err != nil {
		respondServiceError(c, err, "could not close position")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// ListBets godoc
// GET /api/bets?status=OPEN&kind=PRICE&page=1&limit=20 [JWT]
func (h *BetHandler) ListBets(c *gin.Context) {
	page, limit := parsePagination(c)
	filter := domain.BetFilter{
		Status: domain.BetStatus(strings.ToUpper(c.Query("status"))),
		Kind:   domain.MarketKind(strings.ToUpper(c.Query("kind"))),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	bets, err := h.betSvc.ListBets(c.Request.Context(), middleware.GetUserID(c), filter)
	if err != nil {
		respondServiceError(c, err, "could not fetch bets")
		return
	}
	respondList(c, bets, len(bets), page, limit)
}

// GetBet godoc
// GET /api/bets/:id [JWT]
func (h *BetHandler) GetBet(c *gin.Context) {
	betID, ok := betIDParam(c)
	if !ok {
		return
	}
	bet, err := h.betSvc.GetBet(c.Request.Context(), middleware.GetUserID(c), betID)
	if err != nil {
		respondServiceError(c, err, "could not fetch bet")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

func betIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BET_ID", "invalid bet id")
		return uuid.Nil, false
	}
	return id, true
}
