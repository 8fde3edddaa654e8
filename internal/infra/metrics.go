package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported on the ops server
type Metrics struct {
	AccrualRuns         prometheus.Counter
	AccrualFailures     prometheus.Counter
	AccrualDuration     prometheus.Histogram
	InvestmentsAccrued  prometheus.Counter
	InvestmentsComplete prometheus.Counter

	TransactionsSubmitted *prometheus.CounterVec
	TransactionsSettled   *prometheus.CounterVec
	LedgerConflicts       prometheus.Counter

	NotificationsPushed  *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	WebsocketSessions    prometheus.Gauge

	BackupSyncs        *prometheus.CounterVec
	BackupSyncDuration prometheus.Histogram
	Promotions         prometheus.Counter
}

// NewMetrics registers all collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AccrualRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "yieldvault_accrual_runs_total",
			Help: "Accrual ticks executed",
		}),
		AccrualFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "yieldvault_accrual_failures_total",
			Help: "Investments whose accrual failed and will be retried next tick",
		}),
		AccrualDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yieldvault_accrual_duration_seconds",
			Help:    "Wall time of one accrual tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		InvestmentsAccrued: f.NewCounter(prometheus.CounterOpts{
			Name: "yieldvault_investments_accrued_total",
			Help: "Investment profit updates written",
		}),
		InvestmentsComplete: f.NewCounter(prometheus.CounterOpts{
			Name: "yieldvault_investments_completed_total",
			Help: "Investments that reached their end date and paid out",
		}),
		TransactionsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvault_transactions_submitted_total",
			Help: "Transactions created by type",
		}, []string{"type"}),
		TransactionsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvault_transactions_settled_total",
			Help: "Transactions moved to a terminal status",
		}, []string{"type", "status"}),
		LedgerConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "yieldvault_ledger_conflicts_total",
			Help: "Ledger transactions aborted by serialization failures",
		}),
		NotificationsPushed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvault_events_pushed_total",
			Help: "Events delivered to websocket sessions or the bus",
		}, []string{"kind"}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "yieldvault_events_dropped_total",
			Help: "Events dropped because a session buffer was full",
		}),
		WebsocketSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "yieldvault_websocket_sessions",
			Help: "Currently connected websocket sessions",
		}),
		BackupSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvault_backup_syncs_total",
			Help: "Backup sync attempts by result",
		}, []string{"result"}),
		BackupSyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yieldvault_backup_sync_duration_seconds",
			Help:    "Wall time of a full backup sync",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		Promotions: f.NewCounter(prometheus.CounterOpts{
			Name: "yieldvault_backup_promotions_total",
			Help: "Backup targets promoted to primary",
		}),
	}
}
