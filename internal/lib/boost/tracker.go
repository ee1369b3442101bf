package boost

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/mailgun/holster/v4/syncutil"
	"github.com/shopspring/decimal"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
	"github.com/beetslabs/stakingmgr/internal/lib/staking"
)

// ChainReader is the slice of the chain client the tracker needs.
type ChainReader interface {
	// TokenBalance returns the ERC-20 balance (wei) of wallet for token.
	TokenBalance(ctx context.Context, token, wallet string) (*big.Int, error)
	// STSRate returns the current stS -> S conversion rate.
	STSRate(ctx context.Context) (decimal.Decimal, error)
}

// Tracker recomputes per-validator boost weights from the token balances of
// validator-affiliated wallets.
type Tracker struct {
	logger   *slog.Logger
	chain    ChainReader
	stsToken string
	sToken   string
	// wallets maps validator id -> affiliated wallet addresses
	wallets map[string][]string
}

func NewTracker(logger *slog.Logger, chain ChainReader, stsToken, sToken string, wallets map[string][]string) *Tracker {
	return &Tracker{
		logger:   logger,
		chain:    chain,
		stsToken: stsToken,
		sToken:   sToken,
		wallets:  wallets,
	}
}

type walletBalances struct {
	sts *big.Int
	s   *big.Int
}

// Collect fetches the stS and S balances of every tracked wallet in parallel
// and aggregates them into one BoostRecord per configured validator.  A
// validator's weight is its share of the total tracked S-equivalent capital,
// as a percentage.
func (t *Tracker) Collect(ctx context.Context) ([]staking.BoostRecord, error) {
	if len(t.wallets) == 0 {
		return nil, fmt.Errorf("no affiliated wallets configured")
	}
	rate, err := t.chain.STSRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch stS rate: %w", err)
	}

	var (
		fanOut     = syncutil.NewFanOut(8)
		mapLock    sync.Mutex
		perWallet  = map[string]walletBalances{}
		walletToID = map[string]string{}
	)
	for validatorID, wallets := range t.wallets {
		for _, wallet := range wallets {
			walletToID[wallet] = validatorID
			fanOut.Run(func(val any) error {
				addr := val.(string)
				sts, err := t.chain.TokenBalance(ctx, t.stsToken, addr)
				if err != nil {
					return fmt.Errorf("unable to fetch stS balance of %s: %w", addr, err)
				}
				s, err := t.chain.TokenBalance(ctx, t.sToken, addr)
				if err != nil {
					return fmt.Errorf("unable to fetch S balance of %s: %w", addr, err)
				}
				mapLock.Lock()
				perWallet[addr] = walletBalances{sts: sts, s: s}
				mapLock.Unlock()
				return nil
			}, wallet)
		}
	}
	if errs := fanOut.Wait(); len(errs) > 0 {
		return nil, fmt.Errorf("error fetching wallet balances: %w", errs[0])
	}

	// Aggregate per validator, stS converted to S terms at the current rate.
	type totals struct {
		sts decimal.Decimal
		s   decimal.Decimal
	}
	perValidator := map[string]totals{}
	for wallet, bal := range perWallet {
		id := walletToID[wallet]
		agg := perValidator[id]
		agg.sts = agg.sts.Add(staking.TokensFromWei(bal.sts))
		agg.s = agg.s.Add(staking.TokensFromWei(bal.s))
		perValidator[id] = agg
	}

	grandTotal := decimal.Zero
	for id := range t.wallets {
		agg := perValidator[id]
		grandTotal = grandTotal.Add(agg.s).Add(agg.sts.Mul(rate))
	}
	if grandTotal.IsZero() {
		return nil, fmt.Errorf("tracked wallets hold no stS or S balance")
	}

	var records []staking.BoostRecord
	for id := range t.wallets {
		agg := perValidator[id]
		sEquivalent := agg.s.Add(agg.sts.Mul(rate))
		records = append(records, staking.BoostRecord{
			ValidatorID: id,
			STSBalance:  agg.sts.Round(6),
			SBalance:    sEquivalent.Round(6),
			Weight:      sEquivalent.Div(grandTotal).Mul(decimal.NewFromInt(100)).Round(4),
		})
	}
	misc.Infof(t.logger, "boost weights recomputed, validators:%d, wallets:%d, total tracked:%s S",
		len(records), len(walletToID), grandTotal.Round(2))
	return records, nil
}

// Refresh recomputes boost weights and persists them to the CSV at path.
func (t *Tracker) Refresh(ctx context.Context, path string) error {
	records, err := t.Collect(ctx)
	if err != nil {
		return err
	}
	return SaveRecords(t.logger, path, records)
}
