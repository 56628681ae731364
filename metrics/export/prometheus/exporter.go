// Package prometheus exposes gateway counters as Prometheus metrics.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tollgate "github.com/kmweir/tollgate"
)

const namespace = "tollgate"

// metricsSource is what the collector reads. *tollgate.Gateway satisfies it.
type metricsSource interface {
	MetricsSnapshot() tollgate.MetricsSnapshot
	AuditDropped() uint64
}

var counterHelp = map[tollgate.MetricID]string{
	tollgate.MetricBasicSuccess:         "Successful Basic authentications.",
	tollgate.MetricBasicFailure:         "Failed Basic authentications.",
	tollgate.MetricBasicRateLimited:     "Basic authentications rejected by lockout.",
	tollgate.MetricTokenIssued:          "Issued access/refresh token pairs.",
	tollgate.MetricBearerSuccess:        "Successful Bearer authentications.",
	tollgate.MetricBearerFailure:        "Failed Bearer authentications.",
	tollgate.MetricTokenRevokedRejected: "Tokens rejected because they were revoked.",
	tollgate.MetricRefreshSuccess:       "Successful token refreshes.",
	tollgate.MetricRefreshFailure:       "Failed token refreshes.",
	tollgate.MetricTokenRevoked:         "Explicit single-token revocations.",
	tollgate.MetricSessionCreated:       "Sessions created.",
	tollgate.MetricSessionEvicted:       "Sessions evicted by the per-user cap.",
	tollgate.MetricSessionRevoked:       "Sessions revoked.",
	tollgate.MetricSweepSessionsPurged:  "Inactive sessions removed by cleanup sweeps.",
	tollgate.MetricSweepBlacklistPurged: "Expired blacklist entries removed by cleanup sweeps.",
}

// Collector implements prometheus.Collector over a gateway snapshot.
type Collector struct {
	source      metricsSource
	descs       map[tollgate.MetricID]*prometheus.Desc
	droppedDesc *prometheus.Desc
}

// NewCollector builds a collector reading from source.
func NewCollector(source metricsSource) *Collector {
	descs := make(map[tollgate.MetricID]*prometheus.Desc, len(counterHelp))
	for _, id := range tollgate.MetricIDs() {
		help := counterHelp[id]
		if help == "" {
			help = "Gateway counter."
		}
		descs[id] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", id.Name()+"_total"),
			help,
			nil, nil,
		)
	}
	return &Collector{
		source: source,
		descs:  descs,
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "audit_events_dropped_total"),
			"Audit events dropped under backpressure.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
	ch <- c.droppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()
	for id, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snapshot.Counters[id]))
	}
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler registers the collector on a private registry and returns a
// scrape handler for it.
func Handler(source metricsSource) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
