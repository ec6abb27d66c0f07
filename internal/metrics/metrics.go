// Package metrics – Prometheus instrumentation for the trading floor.
//
//   - pit_commands_total{type}   – inbound commands by type
//   - pit_trades_total{symbol}   – fills by symbol
//   - pit_rejects_total{reason}  – order rejections by reason
//   - pit_clients_connected      – live websocket connections (gauge)
//   - pit_sessions_active        – live sessions (gauge)
//
// Registered in init() and served by the HTTP handler at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_commands_total",
			Help: "Inbound commands by type",
		},
		[]string{"type"},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_trades_total",
			Help: "Fills by symbol",
		},
		[]string{"symbol"},
	)

	Rejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_rejects_total",
			Help: "Order rejections by reason",
		},
		[]string{"reason"},
	)

	ClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pit_clients_connected",
			Help: "Live websocket connections",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pit_sessions_active",
			Help: "Live sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Commands,
		Trades,
		Rejects,
		ClientsConnected,
		SessionsActive,
	)
}
