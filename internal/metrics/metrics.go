// Package metrics holds the gateway's Prometheus collectors on a private
// registry, exposed through the web portal's /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry used by this package.
var Registry = prometheus.NewRegistry()

var (
	// SessionsActive tracks currently connected XMPP sessions.
	SessionsActive = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "xmpp_sessions_active",
		Help: "Currently connected XMPP sessions",
	})

	// StanzasReceived counts inbound stanzas by kind.
	StanzasReceived = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "xmpp_stanzas_received_total",
		Help: "Inbound stanzas by stanza name",
	}, []string{"name"})

	// StanzasSent counts outbound stanzas by kind.
	StanzasSent = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "xmpp_stanzas_sent_total",
		Help: "Outbound stanzas by stanza name",
	}, []string{"name"})

	// AuthFailures counts failed authentication attempts by mechanism.
	AuthFailures = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "xmpp_auth_failures_total",
		Help: "Failed authentication attempts by mechanism",
	}, []string{"mechanism"})

	// IRCEvents counts IRC-origin events translated to stanzas.
	IRCEvents = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "xmpp_irc_events_total",
		Help: "IRC events translated into XMPP stanzas, by event",
	}, []string{"event"})

	// PendingJoins tracks room joins waiting on IRC names completion.
	PendingJoins = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "xmpp_pending_joins",
		Help: "Room joins awaiting IRC channel membership",
	})
)
