package httpapi

import (
	"net/http"

	"bringitback-controlplane/pkg/accesscontrol"
	"bringitback-controlplane/pkg/config"
	"bringitback-controlplane/pkg/health"
	"bringitback-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		NewRouter,
	),
	fx.Invoke(registerSystemEndpoints),
)

// Router exposes the route groups services register on.
type Router struct {
	// Public routes under /api, no identity required.
	Public *gin.RouterGroup
	// Authed routes under /api, bearer token required.
	Authed *gin.RouterGroup
	// Admin routes under /api/admin, administrator role required.
	Admin *gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})
	return r
}

func NewRouter(r *gin.Engine, cfg *config.Config, authz *accesscontrol.Enforcer) *Router {
	return Build(r, cfg.Auth.JWTSecret, authz)
}

// Build wires the groups on an engine, shared with handler tests.
func Build(r *gin.Engine, jwtSecret string, authz middleware.Authorizer) *Router {
	auth := middleware.Auth(jwtSecret)
	return &Router{
		Public: r.Group("/api"),
		Authed: r.Group("/api", auth),
		Admin:  r.Group("/api/admin", auth, middleware.RequireRole(authz, accesscontrol.RoleAdmin)),
	}
}

func registerSystemEndpoints(r *gin.Engine, h health.HealthService) {
	r.GET("/health/liveness", h.Liveness)
	r.GET("/health/readiness", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
