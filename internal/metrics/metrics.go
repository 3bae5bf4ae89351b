package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Submitted answers by outcome",
		},
		[]string{"result"},
	)

	CompletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_completions_total",
			Help: "Final attempts created",
		},
	)

	LeaderboardsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_leaderboards_total",
			Help: "Leaderboard snapshots computed",
		},
	)

	RewardCoinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_reward_coins_total",
			Help: "Coins credited by leaderboard reward allocation",
		},
	)

	SweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_scheduler_sweeps_total",
			Help: "Lifecycle scheduler sweeps",
		},
	)

	SweepFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_scheduler_session_failures_total",
			Help: "Sessions whose evaluation failed during a sweep",
		},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_session_transitions_total",
			Help: "Session status transitions",
		},
		[]string{"status"},
	)

	BroadcastDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_broadcast_drops_total",
			Help: "Room messages discarded because a client buffer was full",
		},
	)

	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_connected_clients",
			Help: "Open websocket connections",
		},
	)
)

// Register adds all collectors to reg. Call once per process.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		AnswersTotal,
		CompletionsTotal,
		LeaderboardsTotal,
		RewardCoinsTotal,
		SweepsTotal,
		SweepFailuresTotal,
		TransitionsTotal,
		BroadcastDropsTotal,
		ConnectedClients,
	)
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
