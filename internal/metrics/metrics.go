// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"karaoke-service/internal/apperr"
)

var (
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karaoke_mutations_total",
			Help: "Playlist and session mutations by operation and result code",
		},
		[]string{"op", "result"},
	)

	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karaoke_broadcast_failures_total",
			Help: "Committed mutations whose fanout publish failed",
		},
	)

	SweepTerminated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karaoke_sweep_terminated_total",
			Help: "Sessions terminated by the expiry sweeper",
		},
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karaoke_sweep_errors_total",
			Help: "Per-session failures during sweep passes",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "karaoke_ws_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "karaoke_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karaoke_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"},
	)
)

// RecordMutation counts one operation outcome. A nil error is "ok";
// otherwise the apperr code is used, so a committed mutation whose publish
// failed shows up as BROADCAST_FAILED.
func RecordMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).Code()
	}
	Mutations.WithLabelValues(op, result).Inc()
	if err != nil && apperr.KindOf(err) == apperr.KindBroadcastFailed {
		BroadcastFailures.Inc()
	}
}

func RecordSweep(terminated, failed int) {
	SweepTerminated.Add(float64(terminated))
	SweepErrors.Add(float64(failed))
}

// TrackConnection moves the open-connection gauge.
func TrackConnection(open bool) {
	if open {
		WSConnections.Inc()
		return
	}
	WSConnections.Dec()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
