// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chigozzdevv/tossr/internal/domain"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tossr_operations_total",
		Help: "Engine operations by name and result code",
	}, []string{"op", "code"})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tossr_http_request_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})

	AttestationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tossr_attestations_total",
		Help: "Attestations produced by market type",
	}, []string{"market_type"})

	OperatorJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tossr_operator_jobs_total",
		Help: "Operator job runs by job and result",
	}, []string{"job", "result"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tossr_ws_clients",
		Help: "Connected websocket clients",
	})
)

// ResultCode maps an operation error to the label used on OperationsTotal.
func ResultCode(err error) string {
	if err == nil {
		return "ok"
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "error"
}
