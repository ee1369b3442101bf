package staking

import (
	"fmt"
	"log/slog"
	"math/big"
	"slices"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
)

// PlanWithdrawal splits a requested withdrawal amount (wei) across validators.
//
// Three tiers, in strict priority order:
//  1. validators outside the allowed set, drained to zero, largest first
//  2. over-delegated allowed validators, shaved down to their expected
//     delegation, largest surplus first
//  3. any allowed validator, by current delegation, largest first
//
// Our own validator is never a withdrawal source.  Within a tier, ties keep
// snapshot order.  The returned legs are in processing order and always sum
// to exactly the requested amount; if the request can't be satisfied no plan
// is returned at all.
func PlanWithdrawal(logger *slog.Logger, amount *big.Int, set *AllocationSet, cfg Config) ([]WithdrawalRecommendation, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %v", amount)
	}

	var (
		remaining = new(big.Int).Set(amount)
		taken     = map[string]*big.Int{}
		plan      []WithdrawalRecommendation
	)
	withdraw := func(id string, capacity *big.Int) {
		if remaining.Sign() <= 0 || capacity.Sign() <= 0 {
			return
		}
		amt := new(big.Int).Set(capacity)
		if amt.Cmp(remaining) > 0 {
			amt.Set(remaining)
		}
		plan = append(plan, WithdrawalRecommendation{ValidatorID: id, Amount: amt})
		remaining.Sub(remaining, amt)
		prev, ok := taken[id]
		if !ok {
			prev = new(big.Int)
			taken[id] = prev
		}
		prev.Add(prev, amt)
	}

	// Tier 1: validators that should never hold stake get cleared out first,
	// even sub-token remainders.
	tier1 := filterAllocations(set, func(a Allocation) bool {
		return a.Status == StatusNotAllowed && a.Current.Sign() > 0
	})
	slices.SortStableFunc(tier1, func(a, b Allocation) int {
		return b.Current.Cmp(a.Current)
	})
	for _, a := range tier1 {
		withdraw(a.ValidatorID, a.Current)
	}

	// Tier 2: shave surpluses of over-delegated validators that are more than
	// one whole token over target.
	if remaining.Sign() > 0 {
		tier2 := filterAllocations(set, func(a Allocation) bool {
			return a.Status == StatusOverDelegated &&
				a.ValidatorID != cfg.OwnValidatorID &&
				a.Diff.Cmp(weiPerToken) > 0
		})
		slices.SortStableFunc(tier2, func(a, b Allocation) int {
			return b.Diff.Cmp(a.Diff)
		})
		for _, a := range tier2 {
			withdraw(a.ValidatorID, a.Diff)
		}
	}

	// Tier 3 fallback: pull from any allowed validator, biggest holdings
	// first, regardless of surplus.
	if remaining.Sign() > 0 {
		misc.Warnf(logger, "withdrawal of %s exceeds surplus capacity, %s falls to under-target validators", amount, remaining)
		tier3 := filterAllocations(set, func(a Allocation) bool {
			return a.Status != StatusNotAllowed && a.ValidatorID != cfg.OwnValidatorID
		})
		slices.SortStableFunc(tier3, func(a, b Allocation) int {
			return b.Current.Cmp(a.Current)
		})
		for _, a := range tier3 {
			capacity := new(big.Int).Set(a.Current)
			if prev, ok := taken[a.ValidatorID]; ok {
				capacity.Sub(capacity, prev)
			}
			withdraw(a.ValidatorID, capacity)
		}
	}

	if remaining.Sign() > 0 {
		return nil, &UnsatisfiableError{Requested: new(big.Int).Set(amount), Missing: remaining}
	}

	// Paranoia: the plan must account for the request exactly.  Anything else
	// is a bug, not bad input.
	total := new(big.Int)
	for _, leg := range plan {
		total.Add(total, leg.Amount)
	}
	if total.Cmp(amount) != 0 {
		return nil, fmt.Errorf("%w: planned %s for requested %s", ErrConservation, total, amount)
	}
	return plan, nil
}

func filterAllocations(set *AllocationSet, keep func(Allocation) bool) []Allocation {
	var out []Allocation
	for _, a := range set.Allocations {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
