package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ShipmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignd_shipments_total",
			Help: "Shipment terminal outcomes by result",
		},
		[]string{"result"}, // sent|failed|reconciled_failed|confirmation_requested
	)

	CampaignsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignd_campaigns_total",
			Help: "Campaign status transitions performed by the pipeline",
		},
		[]string{"status"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignd_jobs_total",
			Help: "Queue job settlements by task type and outcome",
		},
		[]string{"type", "outcome"},
	)

	SendSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaignd_send_seconds",
			Help:    "Outbound send latency through the session gateway",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		ShipmentsTotal,
		CampaignsTotal,
		JobsTotal,
		SendSeconds,
	)
}
