package obs

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ValidatorOutcomesTotal counts reservation checks by outcome and binding constraint.
	ValidatorOutcomesTotal *prometheus.CounterVec
	// CreditVerdictsTotal counts credit evaluations at checkout.
	CreditVerdictsTotal *prometheus.CounterVec
	// CheckoutCommitsTotal counts checkout commit outcomes.
	CheckoutCommitsTotal *prometheus.CounterVec
	// CheckoutCommitDuration records commit latency in milliseconds.
	CheckoutCommitDuration *prometheus.HistogramVec
	// SnapshotRefreshTotal counts product and ledger refreshes.
	SnapshotRefreshTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ValidatorOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validator_outcomes_total",
			Help:      "Count of reservation validation outcomes.",
		}, []string{"outcome", "reason"})
		CreditVerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_verdicts_total",
			Help:      "Count of credit verdicts by channel and status.",
		}, []string{"channel", "status", "eligible"})
		CheckoutCommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_commits_total",
			Help:      "Count of checkout commit outcomes.",
		}, []string{"channel", "result"})
		CheckoutCommitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_commit_duration_ms",
			Help:      "Latency of checkout commits in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"result"})
		SnapshotRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_refresh_total",
			Help:      "Count of product and ledger snapshot refreshes.",
		}, []string{"result"})

		mustRegisterCollector(reg, ValidatorOutcomesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ValidatorOutcomesTotal = v
			}
		})
		mustRegisterCollector(reg, CreditVerdictsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CreditVerdictsTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutCommitsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutCommitsTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutCommitDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CheckoutCommitDuration = v
			}
		})
		mustRegisterCollector(reg, SnapshotRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SnapshotRefreshTotal = v
			}
		})
	})
}

// ObserveValidation records one reservation check. Safe before registration.
func ObserveValidation(outcome, reason string) {
	if ValidatorOutcomesTotal == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	ValidatorOutcomesTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveCreditVerdict records a credit decision.
func ObserveCreditVerdict(channel, status string, eligible bool) {
	if CreditVerdictsTotal == nil {
		return
	}
	CreditVerdictsTotal.WithLabelValues(channel, status, strconv.FormatBool(eligible)).Inc()
}

// ObserveCommit records a checkout commit and its latency.
func ObserveCommit(channel, result string, elapsed time.Duration) {
	if CheckoutCommitsTotal != nil {
		CheckoutCommitsTotal.WithLabelValues(channel, result).Inc()
	}
	if CheckoutCommitDuration != nil {
		CheckoutCommitDuration.WithLabelValues(result).Observe(float64(elapsed.Milliseconds()))
	}
}

// ObserveSnapshot records a snapshot refresh result.
func ObserveSnapshot(result string) {
	if SnapshotRefreshTotal == nil {
		return
	}
	SnapshotRefreshTotal.WithLabelValues(result).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
