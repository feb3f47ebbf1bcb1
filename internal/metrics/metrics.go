package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dmchat"

// Delivery targets.
const (
	TargetReceiver = "receiver"
	TargetSender   = "sender"
)

// Delivery outcomes.
const (
	OutcomePushed  = "pushed"
	OutcomeOffline = "offline"
	OutcomeDropped = "dropped"
)

type Metrics struct {
	ConnectionsActive  prometheus.Gauge
	UsersOnline        prometheus.Gauge
	PresenceBroadcasts prometheus.Counter
	Deliveries         *prometheus.CounterVec
}

// New registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so that repeated construction does not panic.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open WebSocket connections",
		}),
		UsersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_online",
			Help:      "Number of users registered in the presence registry",
		}),
		PresenceBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_broadcasts_total",
			Help:      "Total number of presence snapshots broadcast",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Real-time message pushes by target and outcome",
		}, []string{"target", "outcome"}),
	}
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
