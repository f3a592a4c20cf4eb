// Package metrics owns the rasterd Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/h3-raster-store/internal/observability"
)

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

// Provider is a private registry holding the runtime collectors, the
// rasterd_build_info gauge and every raster collector.
type Provider struct {
	reg *prometheus.Registry
}

func NewProvider(b BuildInfo) *Provider {
	if b.Version == "" {
		b.Version = "dev"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rasterd_build_info",
			Help: "rasterd build metadata, always 1.",
			ConstLabels: prometheus.Labels{
				"version":    b.Version,
				"revision":   b.Revision,
				"build_date": b.BuildDate,
			},
		}, func() float64 { return 1 }),
	)
	observability.Init(reg)
	return &Provider{reg: reg}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

// Mux serves the registry at path and nothing else.
func (p *Provider) Mux(path string) *http.ServeMux {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, p.Handler())
	return mux
}
