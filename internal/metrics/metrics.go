package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the order sync engine.
var (
	// MergeOutcomes counts every merge decision by input source and outcome.
	MergeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordersync_merge_outcomes_total",
			Help: "Merge decisions taken by the reconciliation engine",
		},
		[]string{"source", "outcome"},
	)

	ChannelMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordersync_channel_messages_total",
			Help: "Total number of push channel payloads received",
		},
	)

	DecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordersync_decode_errors_total",
			Help: "Total number of push payloads and bulk-read records dropped as malformed",
		},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordersync_channel_reconnects_total",
			Help: "Total number of push channel reconnect attempts",
		},
	)

	HeartbeatTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordersync_channel_heartbeat_timeouts_total",
			Help: "Total number of connections dropped for a missed inbound heartbeat",
		},
	)

	// ChannelState is 0 disconnected, 1 connecting, 2 connected.
	ChannelState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ordersync_channel_state",
			Help: "Current push channel state (0 disconnected, 1 connecting, 2 connected)",
		},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ordersync_snapshot_duration_seconds",
			Help:    "Duration of bulk order reads",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordersync_snapshot_failures_total",
			Help: "Total number of failed bulk order reads",
		},
	)

	StatusChangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ordersync_status_change_duration_seconds",
			Help:    "Duration of operator status change requests by result",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	PendingActions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ordersync_pending_actions",
			Help: "Status changes awaiting confirmation",
		},
	)
)

// Register registers all ordersync metrics with reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		MergeOutcomes,
		ChannelMessagesTotal,
		DecodeErrorsTotal,
		ReconnectsTotal,
		HeartbeatTimeoutsTotal,
		ChannelState,
		SnapshotDuration,
		SnapshotFailuresTotal,
		StatusChangeDuration,
		PendingActions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
