package staking

import (
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
)

var oneHundred = decimal.NewFromInt(100)

// ComputeAllocations runs the allocation formula over the full delegation
// snapshot and classifies every validator.
//
// Half of the non-boosted capital is distributed evenly across the allowed
// validators, the boosted pool (that even half plus the boost capital itself)
// is distributed by boost weight.  Validators outside the allowed set always
// have an expected delegation of zero.
func ComputeAllocations(logger *slog.Logger, boosts []BoostRecord, delegations []Delegation, cfg Config) (*AllocationSet, error) {
	if len(delegations) == 0 {
		return nil, ErrNoDelegations
	}
	if len(boosts) == 0 {
		return nil, ErrNoBoostData
	}

	totalDelegated := new(big.Int)
	for _, d := range delegations {
		totalDelegated.Add(totalDelegated, d.Amount)
	}

	totalS := decimal.Zero
	boostByID := make(map[string]BoostRecord, len(boosts))
	for _, b := range boosts {
		totalS = totalS.Add(b.SBalance)
		boostByID[b.ValidatorID] = b
	}
	totalBoosted := WeiFromTokens(totalS)

	// Half the pool above the boosted capital gets spread evenly, the boosted
	// half rides the weights.  If the boosted capital exceeds total delegation
	// this goes negative and pulls the even shares below zero - deliberately
	// not clamped, see the withdraw planner which only ever acts on holdings.
	evenlyDistributed := new(big.Int).Sub(totalDelegated, totalBoosted)
	evenlyDistributed.Quo(evenlyDistributed, big.NewInt(2))
	if evenlyDistributed.Sign() < 0 {
		misc.Warnf(logger, "boosted capital %s exceeds total delegation %s - even shares are negative",
			TokensFromWei(totalBoosted), TokensFromWei(totalDelegated))
	}
	boostedPool := new(big.Int).Add(evenlyDistributed, totalBoosted)

	allowed := cfg.allowedSet()
	eligible := 0
	for _, d := range delegations {
		if allowed[d.ValidatorID] {
			eligible++
		}
	}
	if eligible == 0 {
		return nil, ErrNoAllowedValidators
	}
	evenShare := new(big.Int).Quo(evenlyDistributed, big.NewInt(int64(eligible)))

	set := &AllocationSet{
		Allocations:    make([]Allocation, 0, len(delegations)),
		TotalDelegated: totalDelegated,
		TotalBoosted:   totalBoosted,
		EvenShare:      evenShare,
		BoostedPool:    boostedPool,
	}
	for _, d := range delegations {
		expected := new(big.Int)
		if allowed[d.ValidatorID] {
			expected.Set(evenShare)
			if b, ok := boostByID[d.ValidatorID]; ok && b.Weight.IsPositive() {
				share := decimal.NewFromBigInt(boostedPool, 0).Mul(b.Weight).Div(oneHundred)
				expected.Add(expected, share.BigInt())
			}
		}
		diff := new(big.Int).Sub(d.Amount, expected)
		set.Allocations = append(set.Allocations, Allocation{
			ValidatorID: d.ValidatorID,
			Current:     new(big.Int).Set(d.Amount),
			Expected:    expected,
			Diff:        diff,
			Status:      classify(allowed[d.ValidatorID], diff),
		})
	}
	return set, nil
}

func classify(isAllowed bool, diff *big.Int) Status {
	switch {
	case !isAllowed:
		return StatusNotAllowed
	case diff.CmpAbs(weiPerToken) < 0:
		return StatusBalanced
	case diff.Sign() > 0:
		return StatusOverDelegated
	default:
		return StatusUnderDelegated
	}
}
