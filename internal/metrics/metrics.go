// Package metrics exposes Prometheus counters the reconciliation pipeline
// updates during operation, served at /metrics when the listener is enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmc_cycles_total",
			Help: "Reconciliation cycles by outcome",
		},
		[]string{"outcome"}, // clean|partial|skipped
	)

	mtxWalletsSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tmc_wallets_synced_total",
			Help: "Wallets synced across all cycles",
		},
	)

	mtxAlertsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tmc_alerts_sent_total",
			Help: "Volatility alerts dispatched",
		},
	)

	mtxPriceBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tmc_price_batches_total",
			Help: "Price batch requests issued",
		},
	)

	mtxRateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tmc_rate_limit_hits_total",
			Help: "Upstream rate-limit responses observed",
		},
	)

	gaugeAssetsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmc_assets_tracked",
			Help: "Distinct assets held across all users",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxCycles,
		mtxWalletsSynced,
		mtxAlertsSent,
		mtxPriceBatches,
		mtxRateLimitHits,
		gaugeAssetsTracked,
	)
}

// IncCycle records a finished (or skipped) cycle.
func IncCycle(outcome string) { mtxCycles.WithLabelValues(outcome).Inc() }

// AddWalletsSynced records wallets synced in a cycle.
func AddWalletsSynced(n int) { mtxWalletsSynced.Add(float64(n)) }

// AddAlertsSent records alerts dispatched in a cycle.
func AddAlertsSent(n int) { mtxAlertsSent.Add(float64(n)) }

// IncPriceBatch records one price batch request.
func IncPriceBatch() { mtxPriceBatches.Inc() }

// IncRateLimitHit records one upstream 429.
func IncRateLimitHit() { mtxRateLimitHits.Inc() }

// SetAssetsTracked records the distinct-asset count observed in a cycle.
func SetAssetsTracked(n int) { gaugeAssetsTracked.Set(float64(n)) }

// Serve starts the metrics listener in the background.
func Serve(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics listener failed")
		}
	}()

	return srv
}
