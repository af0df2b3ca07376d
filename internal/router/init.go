package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	handlers "github.com/oksasatya/go-credential-service/internal/interface/http"
	"github.com/oksasatya/go-credential-service/internal/interface/middleware"
	"github.com/oksasatya/go-credential-service/internal/router/modules"
)

type EngineConfig struct {
	AllowedOrigins []string
	AccessLog      bool
}

// NewEngine builds the Gin engine with the global middleware chain.
func NewEngine(cfg EngineConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if cfg.AccessLog {
		r.Use(gin.Logger())
	}
	return r
}

type ModuleDeps struct {
	Handler *handlers.CredentialHandler
	Auth    middleware.Authenticator
	// Metrics enables GET /metrics when set.
	Metrics prometheus.Gatherer
}

// InitModules registers every feature module with the registry.
func InitModules(r *Registry, d ModuleDeps) {
	r.Add(modules.NewCredentialModule(d.Handler, d.Auth))
	if d.Metrics != nil {
		r.Add(modules.NewMetricsModule(d.Metrics))
	}
}
