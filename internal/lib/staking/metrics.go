package staking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	promValidatorCount = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakingmgr",
		Name:      "validator_count",
	})
	promTotalDelegated = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakingmgr",
		Name:      "delegated_total",
	})
	promNotAllowedDelegated = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakingmgr",
		Name:      "delegated_not_allowed_total",
	})
	promBoostedTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "stakingmgr",
		Name:      "boosted_total",
	})
)

// UpdateMetrics publishes gauge values (whole tokens) from the latest
// allocation pass.
func (s *AllocationSet) UpdateMetrics() {
	promValidatorCount.Set(float64(len(s.Allocations)))
	promTotalDelegated.Set(TokensFromWei(s.TotalDelegated).InexactFloat64())
	promBoostedTotal.Set(TokensFromWei(s.TotalBoosted).InexactFloat64())

	notAllowed := decimal.Zero
	for _, a := range s.Allocations {
		if a.Status == StatusNotAllowed {
			notAllowed = notAllowed.Add(TokensFromWei(a.Current))
		}
	}
	promNotAllowedDelegated.Set(notAllowed.InexactFloat64())
}
