package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtcoin_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wtcoin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtcoin_ledger_transfers_total",
			Help: "Total number of completed ledger transfers",
		},
		[]string{"type", "fee_type"},
	)

	FeesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtcoin_ledger_fees_collected",
			Help: "Fees deducted from transfers, in coin units",
		},
		[]string{"coin_id"},
	)

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtcoin_withdrawals_total",
			Help: "Withdrawal request transitions by resulting status",
		},
		[]string{"status"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtcoin_webhook_events_total",
			Help: "Provider webhook deliveries by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CompensationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wtcoin_compensation_failures_total",
			Help: "Failed attempts to return locked funds; every increment is stuck funds",
		},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wtcoin_provider_call_duration_seconds",
			Help:    "Payment provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wtcoin_notifications_total",
			Help: "Total number of notifications processed",
		},
		[]string{"status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wtcoin_notification_queue_length",
			Help: "Current length of the notification queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransfer(txType, feeType string, coinID int64, fee decimal.Decimal) {
	TransfersTotal.WithLabelValues(txType, feeType).Inc()
	if fee.IsPositive() {
		FeesCollected.WithLabelValues(strconv.FormatInt(coinID, 10)).Add(fee.InexactFloat64())
	}
}

func RecordWithdrawal(status string) {
	WithdrawalsTotal.WithLabelValues(status).Inc()
}

func RecordWebhook(kind, outcome string) {
	WebhookEventsTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordCompensationFailure() {
	CompensationFailuresTotal.Inc()
}

func RecordProviderCall(operation, outcome string, duration float64) {
	ProviderCallDuration.WithLabelValues(operation, outcome).Observe(duration)
}

func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}
