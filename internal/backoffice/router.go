package backoffice

import (
	"net/http"

	"github.com/evetabi/periodsettle/internal/api/middleware"
	"github.com/evetabi/periodsettle/internal/backoffice/handler"
	"github.com/evetabi/periodsettle/internal/config"
	"github.com/gin-gonic/gin"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	Auth      middleware.TokenParser
	Catalog   handler.CatalogAdmin
	Scheduler handler.SchedulerView // nil outside the scheduler's process
	Hub       handler.ClientCounter // optional
	Cfg       *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine. Every route needs a
// back-office role; writes additionally need an operator role.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.AllowedIPs()))

	itemH := handler.NewItemAdminHandler(deps.Catalog)
	outcomeH := handler.NewOutcomeAdminHandler(deps.Catalog)
	schedH := handler.NewSchedulerHandler(deps.Scheduler, deps.Hub)

	operator := middleware.OperatorMiddleware()

	admin := r.Group("/admin")
	admin.Use(middleware.JWTMiddleware(deps.Auth), middleware.BackofficeMiddleware())
	{
		admin.GET("/scheduler", schedH.Status)

		items := admin.Group("/items")
		{
			items.GET("", itemH.List)
			items.POST("", operator, itemH.Create)
			items.GET("/:id", itemH.Detail)
			items.PUT("/:id", operator, itemH.Update)
			items.POST("/:id/disable", operator, itemH.Disable)

			items.GET("/:id/outcomes", outcomeH.History)
			items.PUT("/:id/outcomes/:period", operator, outcomeH.Override)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// An empty allowlist means allow all.
func ipWhitelistMiddleware(allowedIPs []string) gin.HandlerFunc {
	if len(allowedIPs) == 0 {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool, len(allowedIPs))
	for _, ip := range allowedIPs {
		allowed[ip] = true
	}

	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "access denied: your IP is not whitelisted",
				"code":    "ERR_IP_FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}
