// Package exporters serves collected metrics over HTTP.
package exporters

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/qrgrabber/internal/version"
)

var buildInfoOnce sync.Once

// HTTPHandler serves every promauto-registered metric from the default
// registry, plus a constant qrgrabber_build_info gauge.
func HTTPHandler() http.Handler {
	buildInfoOnce.Do(registerBuildInfo)
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func registerBuildInfo() {
	info := version.Get()
	promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "qrgrabber",
		Name:      "build_info",
		Help:      "Build metadata of the running binary, always 1.",
	}, []string{"version", "commit", "goversion"}).
		WithLabelValues(info.Version, info.GitCommit, info.GoVersion).Set(1)
}
