package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventos"

// Registry holds every collector exposed at /metrics.
var Registry = prometheus.NewRegistry()

// RegistrationsTotal counts registration attempts by requested role and outcome.
// outcome: created|invalid|duplicate|invalid_role|error
var RegistrationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of user registration attempts",
	},
	[]string{"role", "outcome"},
)

// LoginsTotal counts login attempts by outcome.
// outcome: success|invalid|not_found|bad_password|error
var LoginsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts",
	},
	[]string{"outcome"},
)

// EventsPublishedTotal counts domain events handed to the message queue.
var EventsPublishedTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of domain events published",
	},
	[]string{"type", "status"},
)

var initOnce sync.Once

// Init registers the Go runtime and process collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
