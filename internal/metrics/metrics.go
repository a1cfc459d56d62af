package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsSniffed counts inbound multiplexer connections by the
	// protocol they were classified as (tls, http, unknown).
	ConnectionsSniffed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumina_mux_connections_total",
		Help: "Inbound connections by sniffed protocol.",
	}, []string{"protocol"})

	// RedirectsServed counts synthesized HTTP redirects.
	RedirectsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumina_mux_redirects_total",
		Help: "Plaintext connections answered with an HTTPS redirect.",
	})

	// RelayFailures counts relay attempts that never reached the upstream.
	RelayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumina_mux_relay_failures_total",
		Help: "TLS relays aborted because the upstream dial failed.",
	})

	// ActiveRelays tracks currently open TLS relays.
	ActiveRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lumina_mux_active_relays",
		Help: "TLS relays currently being pumped.",
	})

	// LoginAttempts counts panel logins by outcome (success, invalid,
	// throttled).
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumina_auth_login_attempts_total",
		Help: "Panel login attempts by outcome.",
	}, []string{"outcome"})
)

// Handler exposes the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
