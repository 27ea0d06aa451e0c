package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/inspectsync"
	"github.com/blnkfinance/inspectsync/api/middleware"
	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/internal/apierror"
)

type Api struct {
	pipeline *inspectsync.Pipeline
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/health", a.Health)
	router.GET("/cycles/last", a.LastCycle)
	router.POST("/cycles", a.TriggerCycle)
	return a.router
}

func NewAPI(p *inspectsync.Pipeline) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("inspectsync-api"), requestLogger())
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.SecretKey != "" {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{pipeline: p, router: r}
}

// Health reports the configuration version the next cycle will use.
func (a Api) Health(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		respondError(c, apierror.NewAPIError(apierror.ErrUnavailable, "configuration not loaded", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "config_version": conf.Version})
}

func (a Api) LastCycle(c *gin.Context) {
	result, ok := a.pipeline.LastCycle()
	if !ok {
		respondError(c, apierror.NewAPIError(apierror.ErrNotFound, "no cycle has run yet", nil))
		return
	}
	c.JSON(http.StatusOK, result)
}

// TriggerCycle runs a cycle and answers once it has finished. It waits for a
// cycle already in progress.
func (a Api) TriggerCycle(c *gin.Context) {
	result, err := a.pipeline.RunCycle(c.Request.Context())
	if err != nil {
		respondError(c, apierror.FromCycleError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondError(c *gin.Context, err apierror.APIError) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), err)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("api request")
	}
}
