package api

import (
	"context"
	"net/http"

	"github.com/evetabi/betengine/internal/api/handler"
	"github.com/evetabi/betengine/internal/api/middleware"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/service"
	"github.com/evetabi/betengine/internal/ws"
	"github.com/gin-gonic/gin"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	BettingSvc *service.BettingService
	Market     service.MarketData
	Tokens     middleware.TokenParser
	Hub        *ws.Hub // optional
	Cfg        *config.Config
	// Health reports readiness for GET /health; nil means always healthy.
	Health func(ctx context.Context) error
}

// SetupRouter creates the Gin engine with all routes, CORS and rate limiting.
// ctx bounds the rate limiter's background eviction.
func SetupRouter(ctx context.Context, deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg.Server.AllowedOrigins))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	betH := handler.NewBetHandler(deps.BettingSvc)
	walletH := handler.NewWalletHandler(deps.BettingSvc)
	marketH := handler.NewMarketHandler(deps.Market, deps.Cfg)

	jwtMW := middleware.JWTMiddleware(deps.Tokens)
	betRL := middleware.RateLimitMiddleware(ctx, deps.Cfg.Server.BetRateLimit)

	api := r.Group("/api")
	{
		// ── Markets (public) ─────────────────────────────────────────────────
		markets := api.Group("/markets")
		{
			markets.GET("/odds", marketH.GetOdds)
			markets.GET("/price/:symbol", marketH.GetPrice)
			markets.GET("/event/:id", marketH.GetEvent)
		}

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			bets := authed.Group("/bets")
			bets.Use(betRL)
			{
				bets.POST("", betH.PlaceBet)
				bets.GET("", betH.ListBets)
				bets.GET("/:id", betH.GetBet)
				bets.POST("/:id/cancel", betH.CancelBet)
				bets.POST("/:id/close", betH.ClosePosition)
			}

			wallet := authed.Group("/wallet")
			{
				wallet.POST("/open", walletH.OpenAccount)
				wallet.GET("/balance", walletH.GetBalance)
				wallet.GET("/transactions", walletH.GetTransactions)
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware sets CORS headers.  With no configured origins every origin
// is allowed; otherwise only listed origins are echoed back.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case len(allowed) == 0 || allowed["*"]:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
