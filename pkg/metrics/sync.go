package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync results.
const (
	SyncResultSuccess    = "success"
	SyncResultFetchError = "fetch_error"
	SyncResultPersist    = "persistence_error"
	SyncResultContended  = "contended"
)

// SyncMetrics records reconciliation runs and the resulting stock levels.
type SyncMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	orders    prometheus.Counter
	material  prometheus.Counter
	skipped   *prometheus.CounterVec
	stock     *prometheus.GaugeVec
	lastRunAt prometheus.Gauge
}

// NewSyncMetrics registers the reconciliation metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Reconciliation runs by trigger and result.",
		}, []string{"trigger", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		orders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_orders_ingested_total",
			Help:      "Orders whose deductions were appended to the ledger.",
		}),
		material: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_material_deducted_total",
			Help:      "Material units deducted by ingested orders.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_orders_skipped_total",
			Help:      "Fetched orders that produced no movements, by reason.",
		}, []string{"reason"}),
		stock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_quantity",
			Help:      "Reconstructed on-hand quantity per stock item.",
		}, []string{"item"}),
		lastRunAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful reconciliation.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.orders, m.material, m.skipped, m.stock, m.lastRunAt)
	return m
}

// ObserveRun records one finished run.
func (m *SyncMetrics) ObserveRun(trigger, result string, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	trigger = normalizeLabel(trigger)
	m.runs.WithLabelValues(trigger, normalizeLabel(result)).Inc()
	m.duration.WithLabelValues(trigger).Observe(duration.Seconds())
	if result == SyncResultSuccess {
		m.lastRunAt.SetToCurrentTime()
	}
}

// AddIngested counts newly ingested orders and the material they consumed.
func (m *SyncMetrics) AddIngested(orders, material int) {
	if m == nil || m.orders == nil {
		return
	}
	if orders > 0 {
		m.orders.Add(float64(orders))
	}
	if material > 0 {
		m.material.Add(float64(material))
	}
}

// AddSkipped counts orders skipped for reason.
func (m *SyncMetrics) AddSkipped(reason string, count int) {
	if m == nil || m.skipped == nil || count <= 0 {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(reason)).Add(float64(count))
}

// SetStockLevel publishes the reconstructed quantity for item.
func (m *SyncMetrics) SetStockLevel(item string, quantity int) {
	if m == nil || m.stock == nil {
		return
	}
	m.stock.WithLabelValues(normalizeLabel(item)).Set(float64(quantity))
}
