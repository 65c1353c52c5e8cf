package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RemoteState         *prometheus.GaugeVec     // Текущее состояние remote (1=UP, 0.5=PROBING, 0=DOWN)
	RemoteRequestsTotal *prometheus.CounterVec   // Количество запросов к конкретным remotes
	RemoteLatency       *prometheus.HistogramVec // Латентность запросов к remotes
	RemoteBytesRead     *prometheus.CounterVec   // Количество прочитанных байт с remotes
	RemoteBytesWrite    *prometheus.CounterVec   // Количество записанных байт в remotes
}

func NewMetrics() *Metrics {
	return &Metrics{
		RemoteState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "s3proxy_remote_state",
				Help: "Current state of a remote (1=UP, 0.5=PROBING, 0=DOWN)",
			},
			[]string{"remote"},
		),
		RemoteRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_remote_requests_total",
				Help: "Total number of requests sent to remotes",
			},
			[]string{"remote", "method", "code"},
		),
		RemoteLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3proxy_remote_latency_seconds",
				Help:    "Latency of requests to remotes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"remote", "method"},
		),
		RemoteBytesRead: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_remote_bytes_read_total",
				Help: "Total number of bytes read from remotes",
			},
			[]string{"remote"},
		),
		RemoteBytesWrite: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_remote_bytes_write_total",
				Help: "Total number of bytes written to remotes",
			},
			[]string{"remote"},
		),
	}
}
