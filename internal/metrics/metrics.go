// Package metrics exposes the broker's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the broker updates on its hot path and
// from the acceptor/router actor.
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsOpen      prometheus.Gauge
	FramesForwarded      prometheus.Counter
	BytesForwarded       prometheus.Counter
	PeersEvicted         prometheus.Counter
	ChannelsActive       prometheus.Gauge
	PeersActive          prometheus.Gauge
}

// New registers and returns a fresh Metrics set against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chanbus", Name: "connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		ConnectionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chanbus", Name: "connections_open",
			Help: "Currently open connections.",
		}),
		FramesForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chanbus", Name: "frames_forwarded_total",
			Help: "Total ChannelMsg frames successfully delivered to a subscriber.",
		}),
		BytesForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chanbus", Name: "bytes_forwarded_total",
			Help: "Total raw frame bytes successfully delivered to a subscriber.",
		}),
		PeersEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chanbus", Name: "peers_evicted_total",
			Help: "Total subscriber evictions due to a full or closed egress queue.",
		}),
		ChannelsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chanbus", Name: "channels_active",
			Help: "Currently live channels, including ones with no subscriber (created by a publish or emptied by eviction).",
		}),
		PeersActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chanbus", Name: "peers_active",
			Help: "Currently connected peers.",
		}),
	}
}

// Handler returns the promhttp handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
