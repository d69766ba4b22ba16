package metrics

import "github.com/prometheus/client_golang/prometheus"

// SurfaceMetrics exposes counters/histograms for surface reconciliation and
// action dispatch.
type SurfaceMetrics struct {
	eventsTotal     *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	snapshotLatency *prometheus.HistogramVec
	reconcilersLive prometheus.Gauge
	feedConnections prometheus.Gauge
}

func NewSurfaceMetrics(reg prometheus.Registerer) *SurfaceMetrics {
	m := &SurfaceMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surface",
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Inbound realtime events by outcome",
		}, []string{"operation", "outcome"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surface",
			Subsystem: "dispatch",
			Name:      "actions_total",
			Help:      "Dispatched user actions by outcome",
		}, []string{"action", "outcome"}),
		snapshotLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "surface",
			Subsystem: "reconcile",
			Name:      "snapshot_fetch_seconds",
			Help:      "Latency of authoritative snapshot fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		reconcilersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "surface",
			Subsystem: "reconcile",
			Name:      "live_reconcilers",
			Help:      "Reconcilers currently in the Live state",
		}),
		feedConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "surface",
			Subsystem: "feed",
			Name:      "connections",
			Help:      "Open websocket feed connections",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.actionsTotal, m.snapshotLatency, m.reconcilersLive, m.feedConnections)
	return m
}

func (m *SurfaceMetrics) ObserveEvent(operation, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *SurfaceMetrics) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *SurfaceMetrics) ObserveSnapshotFetch(result string, seconds float64) {
	if m == nil {
		return
	}
	m.snapshotLatency.WithLabelValues(result).Observe(seconds)
}

func (m *SurfaceMetrics) ReconcilerStarted() {
	if m == nil {
		return
	}
	m.reconcilersLive.Inc()
}

func (m *SurfaceMetrics) ReconcilerStopped() {
	if m == nil {
		return
	}
	m.reconcilersLive.Dec()
}

func (m *SurfaceMetrics) FeedOpened() {
	if m == nil {
		return
	}
	m.feedConnections.Inc()
}

func (m *SurfaceMetrics) FeedClosed() {
	if m == nil {
		return
	}
	m.feedConnections.Dec()
}
