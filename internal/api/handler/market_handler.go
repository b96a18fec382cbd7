package handler

import (
	"net/http"
	"strings"

	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/service"
	"github.com/gin-gonic/gin"
)

// MarketHandler serves the public quote endpoints clients price bets from.
type MarketHandler struct {
	market service.MarketData
	cfg    *config.Config
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(market service.MarketData, cfg *config.Config) *MarketHandler {
	return &MarketHandler{market: market, cfg: cfg}
}

// GetPrice godoc
// GET /api/markets/price/:symbol
func (h *MarketHandler) GetPrice(c *gin.Context) {
	q, err := h.market.CurrentPrice(c.Request.Context(), strings.ToUpper(c.Param("symbol")))
	if err != nil {
		respondServiceError(c, err, "could not fetch price")
		return
	}
	respondSuccess(c, http.StatusOK, q)
}

// GetEvent godoc
// GET /api/markets/event/:id
func (h *MarketHandler) GetEvent(c *gin.Context) {
	m, err := h.market.EventMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "could not fetch market")
		return
	}
	respondSuccess(c, http.StatusOK, m)
}

// GetOdds godoc
// GET /api/markets/odds
// Returns the quoted prediction odds per duration and the leverage bounds.
func (h *MarketHandler) GetOdds(c *gin.Context) {
	b := h.cfg.Betting
	durations := b.PredictionDurations()
	odds := make([]gin.H, 0, len(durations))
	for _, d := range durations {
		odds = append(odds, gin.H{"duration_sec": d, "odds": b.PredictionOdds[d]})
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"prediction":   odds,
		"min_leverage": b.MinLeverage,
		"max_leverage": b.MaxLeverage,
		"min_stake":    b.MinStake,
		"max_stake":    b.MaxStake,
		"symbols":      h.cfg.Price.Symbols,
	})
}
