// Package metrics exposes Prometheus counters and gauges for the
// trading engine, served at /metrics in the text exposition format.
//
//   - edgebot_signals_total{zone,admitted}  – gate decisions
//   - edgebot_attempts_total{status}        – terminal attempt statuses
//   - edgebot_fills_total{zone,degraded}    – fills split by zone and quality
//   - edgebot_settlements_total{result}     – settlements (win|loss)
//   - edgebot_cumulative_pnl_usd            – realized PnL gauge
//   - edgebot_balance_usd                   – tracked balance gauge
//   - edgebot_kill_switch                   – 1 while the latch is set
//   - edgebot_slippage_bps                  – slippage distribution
//   - edgebot_submit_latency_seconds        – submission round trips
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	signals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebot_signals_total",
			Help: "Gate decisions on candidate signals",
		},
		[]string{"zone", "admitted"},
	)

	attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebot_attempts_total",
			Help: "Order attempts by terminal status",
		},
		[]string{"status"},
	)

	fills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebot_fills_total",
			Help: "Fills by zone and degradation",
		},
		[]string{"zone", "degraded"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgebot_settlements_total",
			Help: "Settlements by result",
		},
		[]string{"result"},
	)

	cumulativePnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgebot_cumulative_pnl_usd",
			Help: "Realized PnL since start",
		},
	)

	balance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgebot_balance_usd",
			Help: "Tracked collateral balance",
		},
	)

	killSwitch = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgebot_kill_switch",
			Help: "1 while the kill-switch latch is set",
		},
	)

	slippage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgebot_slippage_bps",
			Help:    "Fill slippage in basis points",
			Buckets: []float64{-50, 0, 25, 50, 100, 150, 250, 500},
		},
	)

	submitLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgebot_submit_latency_seconds",
			Help:    "Order submission round-trip latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Signal counts one gate decision.
func Signal(zone string, admitted bool) {
	signals.WithLabelValues(zone, strconv.FormatBool(admitted)).Inc()
}

// Attempt counts one terminal attempt status.
func Attempt(status string) {
	attempts.WithLabelValues(status).Inc()
}

// Fill counts one fill and observes its slippage and latency.
func Fill(zone string, degraded bool, slippageBps, latencySeconds float64) {
	fills.WithLabelValues(zone, strconv.FormatBool(degraded)).Inc()
	slippage.Observe(slippageBps)
	submitLatency.Observe(latencySeconds)
}

// Settlement counts one realized outcome and updates the PnL gauge.
func Settlement(won bool, cumPnL float64) {
	result := "loss"
	if won {
		result = "win"
	}
	settlements.WithLabelValues(result).Inc()
	cumulativePnL.Set(cumPnL)
}

// SetBalance updates the balance gauge.
func SetBalance(v float64) {
	balance.Set(v)
}

// SetKillSwitch flips the latch gauge.
func SetKillSwitch(active bool) {
	if active {
		killSwitch.Set(1)
	} else {
		killSwitch.Set(0)
	}
}
