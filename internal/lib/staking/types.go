package staking

import (
	"cmp"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of base units per whole S token (wei equivalent).
const TokenDecimals = 18

// weiPerToken is the 'balanced' band: validators within one whole token of
// their expected delegation aren't worth rebalancing.
var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// Status classifies a validator's current delegation relative to its expected
// delegation under the boost-weighted allocation formula.
type Status string

const (
	StatusOverDelegated  Status = "overDelegated"
	StatusUnderDelegated Status = "underDelegated"
	StatusBalanced       Status = "balanced"
	StatusNotAllowed     Status = "notAllowed"
)

// Config is passed explicitly into every computation so callers (and tests)
// can run different validator sets without touching process state.
type Config struct {
	// AllowedValidators are the only validators eligible to receive expected
	// delegation.  Anything delegated to a validator outside this set is a
	// withdrawal candidate.
	AllowedValidators []string
	// OwnValidatorID is our operator's validator - it can receive delegation
	// but is never a withdrawal source.
	OwnValidatorID string
}

func (c Config) allowedSet() map[string]bool {
	set := make(map[string]bool, len(c.AllowedValidators))
	for _, id := range c.AllowedValidators {
		set[id] = true
	}
	return set
}

func (c Config) IsAllowed(id string) bool {
	for _, allowed := range c.AllowedValidators {
		if allowed == id {
			return true
		}
	}
	return false
}

// BoostRecord is one validator's share of the tracked boost capital, as
// produced by the wallet-balance tracker.  Balances are whole-token decimals,
// Weight is a percentage (0..100).  Weights across all records are not
// guaranteed to sum exactly to 100.
type BoostRecord struct {
	ValidatorID string
	STSBalance  decimal.Decimal
	SBalance    decimal.Decimal
	Weight      decimal.Decimal
}

// Delegation is the currently delegated stake of one validator, in wei.
// The set of Delegations defines the validator universe - slice order is the
// snapshot order and is the stable tie-break key for the withdrawal planner.
type Delegation struct {
	ValidatorID string
	Amount      *big.Int
}

// Allocation is the engine's verdict for a single validator.
type Allocation struct {
	ValidatorID string
	// Current is the delegated stake right now, in wei.
	Current *big.Int
	// Expected is what the allocation formula says this validator should hold,
	// in wei.  Always zero for not-allowed validators.
	Expected *big.Int
	// Diff is Current - Expected.
	Diff   *big.Int
	Status Status
}

// AllocationSet is the full engine output - one Allocation per validator in
// the delegation snapshot, in snapshot order.
type AllocationSet struct {
	Allocations    []Allocation
	TotalDelegated *big.Int
	TotalBoosted   *big.Int
	EvenShare      *big.Int
	BoostedPool    *big.Int
}

// Get returns the allocation for a validator id, if present.
func (s *AllocationSet) Get(id string) (Allocation, bool) {
	for _, a := range s.Allocations {
		if a.ValidatorID == id {
			return a, true
		}
	}
	return Allocation{}, false
}

// WithdrawalRecommendation is one (validator, amount) leg of a withdrawal
// plan.  Amount is wei and always positive.
type WithdrawalRecommendation struct {
	ValidatorID string
	Amount      *big.Int
}

// CompareValidatorIDs orders validator ids by numeric value (ids are numeric
// strings on chain).  Non-numeric ids sort after numeric ones, amongst
// themselves lexicographically.
func CompareValidatorIDs(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// TokensFromWei converts a wei amount to whole-token decimal units.
func TokensFromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -TokenDecimals)
}

// WeiFromTokens converts a whole-token decimal amount to wei, truncating any
// sub-wei fraction.
func WeiFromTokens(tokens decimal.Decimal) *big.Int {
	return tokens.Shift(TokenDecimals).BigInt()
}
