package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/evetabi/betengine/internal/domain"
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
func respondList(c *gin.Context, items interface{}, count, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"count": count,
			"page":  page,
			"limit": limit,
		},
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Error mapping
// ──────────────────────────────────────────────────────────────────────────────

// errorCodes maps sentinels to an HTTP status and wire code.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE"},
	{domain.ErrForbidden, http.StatusForbidden, "ERR_FORBIDDEN"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
	{domain.ErrInvalidBetAmount, http.StatusBadRequest, "ERR_INVALID_AMOUNT"},
	{domain.ErrInvalidOdds, http.StatusBadRequest, "ERR_INVALID_ODDS"},
	{domain.ErrInvalidDirection, http.StatusBadRequest, "ERR_INVALID_DIRECTION"},
	{domain.ErrUnknownMarketKind, http.StatusBadRequest, "ERR_INVALID_KIND"},
	{domain.ErrInvalidTrigger, http.StatusBadRequest, "ERR_INVALID_TRIGGER"},
	{domain.ErrInvalidDuration, http.StatusBadRequest, "ERR_INVALID_DURATION"},
	{domain.ErrInvalidFilter, http.StatusBadRequest, "ERR_INVALID_FILTER"},
	{domain.ErrWrongKind, http.StatusBadRequest, "ERR_WRONG_KIND"},
	{domain.ErrBetNotFound, http.StatusNotFound, "ERR_BET_NOT_FOUND"},
	{domain.ErrMarketNotFound, http.StatusNotFound, "ERR_MARKET_NOT_FOUND"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "ERR_ACCOUNT_NOT_FOUND"},
	{domain.ErrAlreadyResolved, http.StatusConflict, "ERR_ALREADY_RESOLVED"},
	{domain.ErrMarketClosed, http.StatusConflict, "ERR_MARKET_CLOSED"},
	{domain.ErrInvalidPrice, http.StatusServiceUnavailable, "ERR_INVALID_PRICE"},
}

// respondServiceError maps a service error to the envelope.  Unknown errors
// become 500 with fallback as the message so internals do not leak.
func respondServiceError(c *gin.Context, err error, fallback string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			respondError(c, e.status, e.code, e.err.Error())
			return
		}
	}
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case domain.IsRetryable(err):
		respondError(c, http.StatusServiceUnavailable, "ERR_PRICE_UNAVAILABLE", "market data temporarily unavailable")
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
	}
}

// parsePagination reads ?page= and ?limit= with defaults 1 and 20.
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
