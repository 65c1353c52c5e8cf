package apigw

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Общие метрики запросов, разбитые по распознанной S3-операции (GetObject,
	// PutObject, CompleteMultipartUpload, ...) - а не только по HTTP-методу,
	// чтобы fan-out и multipart операции были видны отдельно от простого чтения.
	RequestsTotal  *prometheus.CounterVec   // Общее количество обработанных S3 запросов
	RequestLatency *prometheus.HistogramVec // Латентность S3 запросов

	// ParseErrorsTotal считает запросы, которые не удалось распознать как
	// валидную S3-операцию (до того, как появится Operation для лейбла).
	ParseErrorsTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3proxy_apigw_requests_total",
				Help: "Total number of processed S3 requests",
			},
			[]string{"operation", "code"},
		),
		RequestLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3proxy_apigw_request_latency_seconds",
				Help:    "Latency of S3 requests in seconds",
				Buckets: prometheus.DefBuckets, // Стандартные бакеты времени
			},
			[]string{"operation"},
		),
		ParseErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "s3proxy_apigw_parse_errors_total",
				Help: "Total number of requests that could not be parsed as a valid S3 operation",
			},
		),
	}
}
