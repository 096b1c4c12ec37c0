package api

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// RouterConfig contains what the router needs besides the handler
type RouterConfig struct {
	AllowedOrigins []string
	NewRelicApp    *newrelic.Application
	AccessLog      bool
}

// NewRouter creates a gin engine with the middleware chain and all routes
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	if cfg.AccessLog {
		router.Use(gin.Logger())
	}
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	if cfg.NewRelicApp != nil {
		router.Use(nrgin.Middleware(cfg.NewRelicApp))
	}

	h.SetupRoutes(router)
	return router
}
