package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 标签取值都是有限集合，不按玩家打标签
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridclaim_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05},
	})

	slowTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridclaim_slow_ticks_total",
		Help: "Ticks that exceeded the slow tick threshold",
	})

	playerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridclaim_players",
		Help: "Players currently registered in the arena",
	})

	sessionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridclaim_sessions_active",
		Help: "Open connections, including ones still in the handshake",
	})

	// reason: rate_limit, bad_signature, malformed_join, bad_direction,
	// duplicate_color, duplicate_username
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridclaim_connection_rejected_total",
		Help: "Connections rejected or closed for protocol reasons",
	}, []string{"reason"})

	// cause: boundary, self_trail
	playerDeaths = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridclaim_player_deaths_total",
		Help: "Players killed by the simulation",
	}, []string{"cause"})

	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridclaim_frames_sent_total",
		Help: "Delta frames flushed to clients",
	})

	bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridclaim_frame_bytes_sent_total",
		Help: "Bytes of delta frames flushed to clients",
	})
)

// RecordTick 记录一次 Tick 的耗时
func RecordTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }

func RecordSlowTick() { slowTicks.Inc() }

func UpdatePlayerCount(n int) { playerCount.Set(float64(n)) }

func UpdateSessionCount(n int) { sessionCount.Set(float64(n)) }

// RecordConnectionRejected reason 必须取自上面列出的有限集合
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

func RecordDeath(cause string) { playerDeaths.WithLabelValues(cause).Inc() }

func RecordFrame(bytes int) {
	framesSent.Inc()
	bytesSent.Add(float64(bytes))
}
