// Package metrics exposes the Prometheus view of the signaling server.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var gaugesOnce sync.Once

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echoroom_rooms_created_total",
		Help: "Rooms allocated by the registry.",
	})
	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echoroom_messages_relayed_total",
		Help: "Chat messages accepted for broadcast.",
	})
	SignalsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echoroom_signals_relayed_total",
		Help: "WebRTC signaling envelopes accepted for relay.",
	})
)

// RegisterRegistryGauges publishes live room/participant counts straight
// off the registry, so the gauges can never drift from the source of truth.
func RegisterRegistryGauges(counts func() (rooms, participants int)) {
	gaugesOnce.Do(func() {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "echoroom_active_rooms",
			Help: "Rooms currently live in the registry.",
		}, func() float64 {
			rooms, _ := counts()
			return float64(rooms)
		})
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "echoroom_active_participants",
			Help: "Participants currently bound to any room.",
		}, func() float64 {
			_, participants := counts()
			return float64(participants)
		})
	})
}

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
