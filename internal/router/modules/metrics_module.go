package modules

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oksasatya/go-credential-service/internal/interface/middleware"
)

// MetricsModule exposes Prometheus metrics to scrapers on private networks.
type MetricsModule struct {
	Gatherer prometheus.Gatherer
}

func NewMetricsModule(g prometheus.Gatherer) *MetricsModule {
	return &MetricsModule{Gatherer: g}
}

func (m *MetricsModule) Register(rg *gin.RouterGroup) {
	rg.GET("/metrics", middleware.PrivateNetworkOnly(), gin.WrapH(promhttp.HandlerFor(m.Gatherer, promhttp.HandlerOpts{})))
}
