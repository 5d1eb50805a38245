package api

import (
	"net/http"

	"github.com/evetabi/periodsettle/internal/api/handler"
	"github.com/evetabi/periodsettle/internal/api/middleware"
	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/evetabi/periodsettle/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	Auth     middleware.TokenParser
	Items    handler.ItemQueries
	Outcomes handler.OutcomeQueries
	Wagers   handler.WagerPlacer
	Wallets  service.WalletReader
	Hub      *ws.Hub             // nil disables /ws
	Gatherer prometheus.Gatherer // nil serves the default registry
	Cfg      *config.Config
}

// SetupRouter creates the public Gin engine with all routes, CORS, and the
// per-user wager rate limit.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(deps.Cfg))

	// ── Operational endpoints ────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if deps.Hub != nil {
			body["ws_clients"] = deps.Hub.ConnectedCount()
		}
		c.JSON(http.StatusOK, body)
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// ── Handlers ─────────────────────────────────────────────────────────────
	itemH := handler.NewItemHandler(deps.Items, deps.Outcomes)
	wagerH := handler.NewWagerHandler(deps.Wagers)
	walletH := handler.NewWalletHandler(deps.Wallets)

	jwtMW := middleware.JWTMiddleware(deps.Auth)
	wagerRL := middleware.RateLimitMiddleware(deps.Cfg.Wager.RateLimitPerSecond, deps.Cfg.Wager.RateLimitBurst)

	api := r.Group("/api")
	{
		// ── Items, periods, outcomes (public) ────────────────────────────────
		items := api.Group("/items")
		{
			items.GET("", itemH.List)
			items.GET("/:id/period", itemH.Period)
			items.GET("/:id/outcomes", itemH.Outcomes)
			items.GET("/:id/outcomes/:period", itemH.Outcome)
		}

		// ── Authenticated routes ─────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			authed.GET("/me", walletH.Me)

			wagers := authed.Group("/wagers")
			{
				wagers.POST("", wagerRL, wagerH.PlaceWager)
				wagers.GET("/my", wagerH.MyWagers)
			}

			wallet := authed.Group("/wallet")
			{
				wallet.GET("/balance", walletH.GetBalance)
				wallet.GET("/transactions", walletH.GetTransactions)
			}
		}
	}

	// ── WebSocket ────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// corsMiddleware allows any origin outside production; in production only
// ALLOWED_ORIGINS are echoed back.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, o := range cfg.Origins() {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
