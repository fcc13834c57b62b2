package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/cellar/internal/api/handlers"
	"github.com/your-org/cellar/internal/api/ws"
	"github.com/your-org/cellar/internal/cellar"
	"github.com/your-org/cellar/internal/web"
)

type RouterConfig struct {
	Service *cellar.Service
	Pages   *web.Pages
	Hub     *ws.Hub
	// Extra readiness checks, e.g. "nats".
	Checks map[string]handlers.Pinger
	// StaticDir is served at /static/ when images are stored locally.
	StaticDir      string
	MaxUploadBytes int64
	AllowOrigins   []string
	// AI endpoints are limited per client IP.
	RatePerMinute int
	RateBurst     int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 16 << 20
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	if len(cfg.AllowOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = cfg.AllowOrigins
		r.Use(cors.New(cc))
	} else {
		r.Use(cors.Default())
	}

	// System endpoints
	systemH := handlers.NewSystemHandler(cfg.Service, cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Hub != nil {
		r.GET("/ws", cfg.Hub.HandleWS)
	}
	if cfg.StaticDir != "" {
		r.Static("/static", cfg.StaticDir)
	}

	limiter := NewRateLimiter(cfg.RatePerMinute, cfg.RateBurst)

	apiG := r.Group("/api")

	wineH := handlers.NewWineHandler(cfg.Service)
	apiG.GET("/wines", wineH.List)
	apiG.POST("/wines", wineH.Create)
	apiG.GET("/wines/:id", wineH.Get)
	apiG.PUT("/wines/:id", wineH.Update)
	apiG.POST("/wines/:id/quantity", wineH.AdjustQuantity)
	apiG.DELETE("/wines/:id", wineH.Delete)
	apiG.GET("/stats", wineH.Stats)

	aiH := handlers.NewAnalysisHandler(cfg.Service, cfg.MaxUploadBytes)
	aiG := apiG.Group("", limiter.Limit())
	aiG.POST("/analyze", aiH.Analyze)
	aiG.POST("/analyze-clarified", aiH.AnalyzeClarified)
	aiG.POST("/drink", aiH.Drink)
	aiG.POST("/pair", aiH.Pair)

	if cfg.Pages != nil {
		cfg.Pages.Register(r, cfg.MaxUploadBytes, limiter.Limit())
	}

	return r
}
