package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "christmas_tree"

var (
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Live sessions in the registry.",
	})

	Clients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clients",
		Help:      "Connected websocket clients.",
	})

	Inbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_inbound_total",
		Help:      "Messages received from clients, by type.",
	}, []string{"type"})

	Dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dropped_total",
		Help:      "Messages dropped without a reply, by reason.",
	}, []string{"reason"})

	Relayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_relayed_total",
		Help:      "Negotiation messages forwarded by the relay, by type.",
	}, []string{"type"})

	ControlChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "control_changes_total",
		Help:      "Controller changes, by cause (accept, failover).",
	}, []string{"cause"})

	SlowClients = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slow_clients_total",
		Help:      "Clients disconnected because their send buffer was full.",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
