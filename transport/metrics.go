package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds the interceptor's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	replays      prometheus.Counter
	breakerState *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kodjadmin_api_requests_total",
			Help: "Backend API requests sent through the interceptor, by outcome",
		}, []string{"outcome"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kodjadmin_credential_refreshes_total",
			Help: "Credential refresh exchanges, by outcome",
		}, []string{"outcome"}),
		replays: f.NewCounter(prometheus.CounterOpts{
			Name: "kodjadmin_request_replays_total",
			Help: "Requests replayed after a 401 with a renewed credential",
		}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kodjadmin_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}
}

// ObserveRefresh implements authapi.RefreshObserver.
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) replay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

func (m *Metrics) breaker(name string, state gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(stateToFloat(state))
}

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
