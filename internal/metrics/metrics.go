// Package metrics exports session lifecycle counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wagate/gateway/internal/models"
)

const Namespace = "wagate"

// Recorder implements the session observer interfaces on top of a set of
// Prometheus collectors.
type Recorder struct {
	gatherer prometheus.Gatherer

	sessions    *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	messages    *prometheus.CounterVec
	qrWaits     *prometheus.CounterVec
	cleanups    *prometheus.CounterVec
}

// New registers the gateway collectors on a fresh registry. The registry also
// carries the Go runtime and process collectors.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(registry, registry)
}

func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	factory := promauto.With(registerer)

	r := &Recorder{
		gatherer: gatherer,

		sessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions",
			Help:      "Number of resident sessions by state",
		}, []string{"state"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "session_transitions_total",
			Help:      "Total number of session state transitions by target state",
		}, []string{"to"}),

		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Total number of outbound messages by result",
		}, []string{"result"}),

		qrWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "qr_waits_total",
			Help:      "Total number of QR code waits by outcome",
		}, []string{"outcome"}),

		cleanups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cleanups_total",
			Help:      "Total number of credential cleanups by result",
		}, []string{"result"}),
	}

	// Expose every state from the start so dashboards see zeros.
	for _, state := range models.AllSessionStates {
		if resident(state) {
			r.sessions.WithLabelValues(string(state)).Set(0)
		}
	}

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) OnTransition(t models.Transition) {
	r.transitions.WithLabelValues(string(t.To)).Inc()

	if resident(t.From) {
		r.sessions.WithLabelValues(string(t.From)).Dec()
	}
	if resident(t.To) {
		r.sessions.WithLabelValues(string(t.To)).Inc()
	}
}

func (r *Recorder) OnMessage(_ string, err error) {
	r.messages.WithLabelValues(result(err)).Inc()
}

func (r *Recorder) OnHandshake(_ string, err error) {
	r.qrWaits.WithLabelValues(handshakeOutcome(err)).Inc()
}

func (r *Recorder) OnCleanup(_ string, err error) {
	r.cleanups.WithLabelValues(result(err)).Inc()
}

// resident reports whether sessions in state occupy the registry.
func resident(state models.SessionState) bool {
	return state != models.SessionStateAbsent && !state.IsTerminal() && len(state) > 0
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
