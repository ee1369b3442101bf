package staking

import (
	"math/big"
	"slices"

	"github.com/shopspring/decimal"
)

// ValidatorMeta carries the on-chain facts the advisor needs beyond the
// allocation itself: whether the validator is accepting stake and how much
// more it can receive before hitting its delegation ceiling.
type ValidatorMeta struct {
	IsActive bool
	// MaxDelegated is the ceiling on total delegated stake (wei), derived from
	// self-stake and the SFC max delegation ratio.  Nil means unknown.
	MaxDelegated *big.Int
}

// StakeRecommendation is one entry of the stake-more / avoid-staking lists.
// Amounts are whole tokens, rounded to 2 decimal places.
type StakeRecommendation struct {
	ValidatorID string          `json:"validatorId"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

// ValidatorView is the per-validator breakdown entry, in whole tokens.
type ValidatorView struct {
	ValidatorID string          `json:"validatorId"`
	Current     decimal.Decimal `json:"currentDelegation"`
	Expected    decimal.Decimal `json:"expectedDelegation"`
	Diff        decimal.Decimal `json:"difference"`
}

// AdviceSummary totals up the classification for quick reading.
type AdviceSummary struct {
	TotalDelegated      decimal.Decimal `json:"totalDelegated"`
	TotalBoosted        decimal.Decimal `json:"totalBoosted"`
	ValidatorCount      int             `json:"validatorCount"`
	OverDelegatedCount  int             `json:"overDelegated"`
	UnderDelegatedCount int             `json:"underDelegated"`
	BalancedCount       int             `json:"balanced"`
	NotAllowedCount     int             `json:"notAllowed"`
}

// Advice is the full staking recommendation output.
type Advice struct {
	Summary        AdviceSummary
	StakeMore      []StakeRecommendation
	AvoidStaking   []StakeRecommendation
	OverDelegated  []ValidatorView
	UnderDelegated []ValidatorView
	Balanced       []ValidatorView
	NotAllowed     []ValidatorView
}

// BuildStakingAdvice turns an allocation set into stake-more / avoid-staking
// recommendations.  Not-allowed validators appear only in the breakdown,
// never in either recommendation list.
func BuildStakingAdvice(set *AllocationSet, meta map[string]ValidatorMeta) *Advice {
	advice := &Advice{
		Summary: AdviceSummary{
			TotalDelegated: TokensFromWei(set.TotalDelegated).Round(2),
			TotalBoosted:   TokensFromWei(set.TotalBoosted).Round(2),
			ValidatorCount: len(set.Allocations),
		},
	}

	for _, a := range set.Allocations {
		view := ValidatorView{
			ValidatorID: a.ValidatorID,
			Current:     TokensFromWei(a.Current).Round(2),
			Expected:    TokensFromWei(a.Expected).Round(2),
			Diff:        TokensFromWei(a.Diff).Round(2),
		}
		switch a.Status {
		case StatusNotAllowed:
			advice.Summary.NotAllowedCount++
			advice.NotAllowed = append(advice.NotAllowed, view)
		case StatusBalanced:
			advice.Summary.BalancedCount++
			advice.Balanced = append(advice.Balanced, view)
		case StatusOverDelegated:
			advice.Summary.OverDelegatedCount++
			advice.OverDelegated = append(advice.OverDelegated, view)
			advice.AvoidStaking = append(advice.AvoidStaking, StakeRecommendation{
				ValidatorID: a.ValidatorID,
				Amount:      TokensFromWei(a.Diff).Round(2),
				Reason:      "above target allocation",
			})
		case StatusUnderDelegated:
			advice.Summary.UnderDelegatedCount++
			advice.UnderDelegated = append(advice.UnderDelegated, view)
			advice.adviseUnderDelegated(a, meta[a.ValidatorID])
		}
	}

	for _, views := range [][]ValidatorView{advice.OverDelegated, advice.UnderDelegated, advice.Balanced, advice.NotAllowed} {
		slices.SortFunc(views, func(a, b ValidatorView) int {
			return CompareValidatorIDs(a.ValidatorID, b.ValidatorID)
		})
	}
	// biggest opportunity / biggest problem first
	slices.SortStableFunc(advice.StakeMore, func(a, b StakeRecommendation) int {
		return b.Amount.Cmp(a.Amount)
	})
	slices.SortStableFunc(advice.AvoidStaking, func(a, b StakeRecommendation) int {
		return b.Amount.Cmp(a.Amount)
	})
	return advice
}

func (adv *Advice) adviseUnderDelegated(a Allocation, meta ValidatorMeta) {
	shortfall := new(big.Int).Neg(a.Diff)
	if !meta.IsActive {
		adv.AvoidStaking = append(adv.AvoidStaking, StakeRecommendation{
			ValidatorID: a.ValidatorID,
			Amount:      TokensFromWei(shortfall).Round(2),
			Reason:      "validator is not active",
		})
		return
	}
	amount := shortfall
	if meta.MaxDelegated != nil {
		headroom := new(big.Int).Sub(meta.MaxDelegated, a.Current)
		if headroom.Sign() <= 0 {
			adv.AvoidStaking = append(adv.AvoidStaking, StakeRecommendation{
				ValidatorID: a.ValidatorID,
				Amount:      TokensFromWei(shortfall).Round(2),
				Reason:      "at delegation capacity",
			})
			return
		}
		if headroom.Cmp(amount) < 0 {
			amount = headroom
		}
	}
	adv.StakeMore = append(adv.StakeMore, StakeRecommendation{
		ValidatorID: a.ValidatorID,
		Amount:      TokensFromWei(amount).Round(2),
		Reason:      "below target allocation",
	})
}
