package http

import (
	"net/http"

	"github.com/astro-web3/permission-filter/internal/config"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(handler *Handler, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/tokens/validate", handler.ValidateToken)
		v1.POST("/permissions/check", handler.CheckPermission)
		v1.POST("/documents/query", handler.Query)
		v1.POST("/documents/permitted", handler.ListPermitted)
	}

	return router
}
