package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueuePlayers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pickup_queue_players",
			Help: "Number of players currently occupying queue slots",
		},
	)

	QueueStateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_queue_state_transitions_total",
			Help: "Queue state machine transitions",
		},
		[]string{"state"}, // waiting|ready|launching
	)

	ServerAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_server_assignments_total",
			Help: "Game server assignment attempts",
		},
		[]string{"result"}, // success|failure
	)

	AssignmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pickup_server_assignment_duration_seconds",
			Help:    "Duration of game server assignment",
			Buckets: prometheus.DefBuckets,
		},
	)

	RconCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_rcon_commands_total",
			Help: "RCON commands sent to game servers",
		},
		[]string{"result"}, // success|failure
	)
)

func init() {
	prometheus.MustRegister(QueuePlayers)
	prometheus.MustRegister(QueueStateTransitions)
	prometheus.MustRegister(ServerAssignments)
	prometheus.MustRegister(AssignmentDuration)
	prometheus.MustRegister(RconCommands)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
