// metrics.go - Prometheus metrics for the pool daemon.
//
// Operation counters are driven off the engine's event feed rather than the
// HTTP handlers, so internally triggered transitions are counted too.
package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xr10t/zyncx/internal/zyncx"
)

// Metrics holds the daemons's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	deposits     prometheus.Counter
	withdrawals  prometheus.Counter
	swaps        prometheus.Counter
	leaves       prometheus.Counter
	queued       prometheus.Counter
	finished     *prometheus.CounterVec
	cancelled    prometheus.Counter
	treeSize     *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zyncx_deposits_total",
			Help: "Accepted shielded deposits.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zyncx_withdrawals_total",
			Help: "Executed withdrawals.",
		}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zyncx_swaps_total",
			Help: "Executed swaps, same-vault and cross-pool.",
		}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zyncx_tree_leaves_total",
			Help: "Commitments appended across all vault trees.",
		}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zyncx_computations_queued_total",
			Help: "Confidential computations admitted to the queue.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zyncx_computations_finished_total",
			Help: "Confidential computations settled by callback.",
		}, []string{"outcome"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zyncx_computations_cancelled_total",
			Help: "Confidential computations cancelled after expiry.",
		}),
		treeSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zyncx_tree_size",
			Help: "Current commitment count per vault.",
		}, []string{"asset"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zyncx_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zyncx_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.deposits, m.withdrawals, m.swaps, m.leaves,
		m.queued, m.finished, m.cancelled,
		m.treeSize, m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe subscribes to the engine feed and keeps the operation counters
// current until stop is closed.
func (m *Metrics) Observe(feed *zyncx.Feed, stop <-chan struct{}) {
	deposits := make(chan zyncx.DepositedEvent, 16)
	withdrawals := make(chan zyncx.WithdrawnEvent, 16)
	swaps := make(chan zyncx.SwappedEvent, 16)
	leaves := make(chan zyncx.LeafAppendedEvent, 16)
	queued := make(chan zyncx.ComputationQueuedEvent, 16)
	finished := make(chan zyncx.ComputationFinishedEvent, 16)
	cancelled := make(chan zyncx.ComputationCancelledEvent, 16)

	subs := []interface{ Unsubscribe() }{
		feed.SubscribeDeposited(deposits),
		feed.SubscribeWithdrawn(withdrawals),
		feed.SubscribeSwapped(swaps),
		feed.SubscribeLeafAppended(leaves),
		feed.SubscribeComputationQueued(queued),
		feed.SubscribeComputationFinished(finished),
		feed.SubscribeComputationCancelled(cancelled),
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	for {
		select {
		case <-deposits:
			m.deposits.Inc()
		case <-withdrawals:
			m.withdrawals.Inc()
		case <-swaps:
			m.swaps.Inc()
		case ev := <-leaves:
			m.leaves.Inc()
			m.treeSize.WithLabelValues(ev.Asset.Hex()).Set(float64(ev.LeafIndex + 1))
		case <-queued:
			m.queued.Inc()
		case ev := <-finished:
			outcome := "failure"
			if ev.Success {
				outcome = "success"
			}
			m.finished.WithLabelValues(outcome).Inc()
		case <-cancelled:
			m.cancelled.Inc()
		case <-stop:
			return
		}
	}
}
