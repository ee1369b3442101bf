package staking

import (
	"log/slog"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), weiPerToken)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeAllocationsExpectedDelegation(t *testing.T) {
	// Weights summing to 100 across fully-allowed validators must reproduce
	// the total delegation exactly.
	cfg := Config{AllowedValidators: []string{"1", "2"}, OwnValidatorID: "1"}
	boosts := []BoostRecord{
		{ValidatorID: "1", SBalance: dec("100"), Weight: dec("60")},
		{ValidatorID: "2", SBalance: dec("100"), Weight: dec("40")},
	}
	delegations := []Delegation{
		{ValidatorID: "1", Amount: tokens(1000)},
		{ValidatorID: "2", Amount: tokens(500)},
	}

	set, err := ComputeAllocations(testLogger(), boosts, delegations, cfg)
	require.NoError(t, err)

	// totalBoosted=200, evenlyDistributed=(1500-200)/2=650, evenShare=325,
	// boostedPool=850
	assert.Equal(t, tokens(1500), set.TotalDelegated)
	assert.Equal(t, tokens(200), set.TotalBoosted)
	assert.Equal(t, tokens(325), set.EvenShare)
	assert.Equal(t, tokens(850), set.BoostedPool)

	a1, ok := set.Get("1")
	require.True(t, ok)
	assert.Equal(t, tokens(835), a1.Expected, "325 even + 60%% of 850")
	assert.Equal(t, tokens(165), a1.Diff)
	assert.Equal(t, StatusOverDelegated, a1.Status)

	a2, ok := set.Get("2")
	require.True(t, ok)
	assert.Equal(t, tokens(665), a2.Expected, "325 even + 40%% of 850")
	assert.Equal(t, tokens(-165), a2.Diff)
	assert.Equal(t, StatusUnderDelegated, a2.Status)

	sum := new(big.Int)
	for _, a := range set.Allocations {
		sum.Add(sum, a.Expected)
	}
	assert.Equal(t, set.TotalDelegated, sum)
}

func TestComputeAllocationsNoBoostWeights(t *testing.T) {
	// Three allowed validators holding [100, 0, 0] with no boost capital: half
	// of the 100 spreads evenly, so everyone is expected to hold ~16.67.
	cfg := Config{AllowedValidators: []string{"1", "2", "3"}, OwnValidatorID: "1"}
	boosts := []BoostRecord{
		{ValidatorID: "1", SBalance: decimal.Zero, Weight: decimal.Zero},
	}
	delegations := []Delegation{
		{ValidatorID: "1", Amount: tokens(100)},
		{ValidatorID: "2", Amount: big.NewInt(0)},
		{ValidatorID: "3", Amount: big.NewInt(0)},
	}

	set, err := ComputeAllocations(testLogger(), boosts, delegations, cfg)
	require.NoError(t, err)

	expectedEach := new(big.Int).Quo(tokens(50), big.NewInt(3))
	wantStatus := map[string]Status{
		"1": StatusOverDelegated,
		"2": StatusUnderDelegated,
		"3": StatusUnderDelegated,
	}
	for _, a := range set.Allocations {
		assert.Equal(t, expectedEach, a.Expected, "validator %s", a.ValidatorID)
		assert.Equal(t, wantStatus[a.ValidatorID], a.Status, "validator %s", a.ValidatorID)
	}
}

func TestComputeAllocationsNotAllowedExpectZero(t *testing.T) {
	cfg := Config{AllowedValidators: []string{"1"}, OwnValidatorID: "1"}
	boosts := []BoostRecord{
		{ValidatorID: "1", SBalance: dec("10"), Weight: dec("100")},
		// boost record for a disallowed validator must not earn it anything
		{ValidatorID: "9", SBalance: dec("10"), Weight: dec("50")},
	}
	delegations := []Delegation{
		{ValidatorID: "1", Amount: tokens(100)},
		{ValidatorID: "9", Amount: tokens(40)},
	}

	set, err := ComputeAllocations(testLogger(), boosts, delegations, cfg)
	require.NoError(t, err)

	a9, ok := set.Get("9")
	require.True(t, ok)
	assert.Zero(t, a9.Expected.Sign())
	assert.Equal(t, tokens(40), a9.Diff)
	assert.Equal(t, StatusNotAllowed, a9.Status)
}

func TestComputeAllocationsBalancedBand(t *testing.T) {
	testCases := []struct {
		name    string
		diffWei *big.Int
		status  Status
	}{
		{"exactly on target", big.NewInt(0), StatusBalanced},
		{"just under a token over", new(big.Int).Sub(weiPerToken, big.NewInt(1)), StatusBalanced},
		{"a full token over", new(big.Int).Set(weiPerToken), StatusOverDelegated},
		{"just under a token short", new(big.Int).Add(new(big.Int).Neg(weiPerToken), big.NewInt(1)), StatusBalanced},
		{"a full token short", new(big.Int).Neg(weiPerToken), StatusUnderDelegated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, classify(true, tc.diffWei))
		})
	}
}

func TestComputeAllocationsNegativeEvenShare(t *testing.T) {
	// Boosted capital above the total delegation pulls the even shares
	// negative - the formula must carry that through untouched.
	cfg := Config{AllowedValidators: []string{"1", "2"}, OwnValidatorID: "1"}
	boosts := []BoostRecord{
		{ValidatorID: "1", SBalance: dec("300"), Weight: dec("100")},
	}
	delegations := []Delegation{
		{ValidatorID: "1", Amount: tokens(60)},
		{ValidatorID: "2", Amount: tokens(40)},
	}

	set, err := ComputeAllocations(testLogger(), boosts, delegations, cfg)
	require.NoError(t, err)

	// evenlyDistributed = (100-300)/2 = -100, split across 2 eligible
	assert.Equal(t, tokens(-50), set.EvenShare)
	assert.Equal(t, tokens(200), set.BoostedPool)

	a2, ok := set.Get("2")
	require.True(t, ok)
	assert.Negative(t, a2.Expected.Sign(), "no weight means only the negative even share")
}

func TestComputeAllocationsIdempotent(t *testing.T) {
	cfg := Config{AllowedValidators: []string{"1", "2"}, OwnValidatorID: "1"}
	boosts := []BoostRecord{
		{ValidatorID: "1", SBalance: dec("12.5"), Weight: dec("33.3333")},
		{ValidatorID: "2", SBalance: dec("7.25"), Weight: dec("66.6667")},
	}
	delegations := []Delegation{
		{ValidatorID: "1", Amount: big.NewInt(123456789123456789)},
		{ValidatorID: "2", Amount: tokens(77)},
	}

	first, err := ComputeAllocations(testLogger(), boosts, delegations, cfg)
	require.NoError(t, err)
	second, err := ComputeAllocations(testLogger(), boosts, delegations, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeAllocationsErrors(t *testing.T) {
	cfg := Config{AllowedValidators: []string{"1"}, OwnValidatorID: "1"}
	boosts := []BoostRecord{{ValidatorID: "1", SBalance: dec("1"), Weight: dec("100")}}
	delegations := []Delegation{{ValidatorID: "1", Amount: tokens(10)}}

	_, err := ComputeAllocations(testLogger(), boosts, nil, cfg)
	assert.ErrorIs(t, err, ErrNoDelegations)

	_, err = ComputeAllocations(testLogger(), nil, delegations, cfg)
	assert.ErrorIs(t, err, ErrNoBoostData)

	_, err = ComputeAllocations(testLogger(), boosts,
		[]Delegation{{ValidatorID: "9", Amount: tokens(10)}}, cfg)
	assert.ErrorIs(t, err, ErrNoAllowedValidators)
}
