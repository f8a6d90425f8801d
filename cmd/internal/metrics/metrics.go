// Package metrics defines the Prometheus instruments shared across the
// auth surface. Collectors register on the default registry; the app
// mounts promhttp to expose them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registrations counts successful account creations.
	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wren_registrations_total",
		Help: "Successful account registrations.",
	})

	// Logins counts login attempts by result (success, invalid_credentials,
	// rate_limited, error).
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wren_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	// Refreshes counts refresh attempts by result (success, invalid,
	// expired, error).
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wren_refreshes_total",
		Help: "Refresh-token rotations by result.",
	}, []string{"result"})

	// EmailsSent counts outbound transactional emails by kind.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wren_emails_sent_total",
		Help: "Transactional emails dispatched by kind.",
	}, []string{"kind"})
)

// HTTPHandler returns the /metrics endpoint handler.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
