// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Connection metrics
	ConnectionsActive *prometheus.GaugeVec
	MessagesIn        *prometheus.CounterVec
	MessagesOut       *prometheus.CounterVec
	ProtocolErrors    *prometheus.CounterVec

	// Refresh cycle metrics
	RefreshCycles   *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	FetchErrors     *prometheus.CounterVec

	// State metrics
	MetadataTokens   *prometheus.GaugeVec
	CachedPrices     *prometheus.GaugeVec
	MergedBalances   *prometheus.GaugeVec
	WatchedUsers     *prometheus.GaugeVec
	WatchedContracts *prometheus.GaugeVec

	// Broadcast metrics
	PriceUpdatesEmitted   *prometheus.CounterVec
	BalanceUpdatesEmitted *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "charisma_sub000"
	}

	return &Metrics{
		ConnectionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "connections_active",
			Help:      "Current number of WebSocket connections per room",
		}, []string{"room"}),
		MessagesIn: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "messages_in_total",
			Help:      "Total inbound messages by type",
		}, []string{"room", "type"}),
		MessagesOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "messages_out_total",
			Help:      "Total outbound messages by type",
		}, []string{"room", "type"}),
		ProtocolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "protocol_errors_total",
			Help:      "Total protocol errors surfaced to clients",
		}, []string{"room"}),

		RefreshCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Total refresh cycles by trigger and status",
		}, []string{"room", "trigger", "status"}),
		RefreshDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"room"}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "fetch_errors_total",
			Help:      "Total upstream fetch errors by source",
		}, []string{"room", "source"}),

		MetadataTokens: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "metadata_tokens",
			Help:      "Current number of tokens in the metadata snapshot",
		}, []string{"room"}),
		CachedPrices: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "cached_prices",
			Help:      "Current number of cached prices",
		}, []string{"room"}),
		MergedBalances: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "merged_balances",
			Help:      "Current number of merged balance entries",
		}, []string{"room"}),
		WatchedUsers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "watched_users",
			Help:      "Current size of the room-wide watched-user set",
		}, []string{"room"}),
		WatchedContracts: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "watched_contracts",
			Help:      "Current size of the room-wide watched-contract set",
		}, []string{"room"}),

		PriceUpdatesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "price_updates_total",
			Help:      "Total price updates emitted after delta suppression",
		}, []string{"room"}),
		BalanceUpdatesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "balance_updates_total",
			Help:      "Total merged-balance updates emitted",
		}, []string{"room"}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
