package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"

	"github.com/beetslabs/stakingmgr/internal/lib/staking"
)

func GetAdviseCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "advise",
		Aliases: []string{"a"},
		Usage:   "One-shot delegation advice against current chain state",
		Commands: []*cli.Command{
			{
				Name:   "stake",
				Usage:  "Show which validators should receive more stake and which to avoid",
				Action: AdviseStake,
			},
			{
				Name:   "unstake",
				Usage:  "Plan how a withdrawal should be split across validators",
				Action: AdviseUnstake,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Amount to withdraw, in whole S (or wei with --wei)",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "wei",
						Usage: "Interpret --amount as raw base units",
						Value: false,
					},
				},
			},
		},
	}
}

func AdviseStake(ctx context.Context, _ *cli.Command) error {
	operCfg, err := App.requireOperatorConfig()
	if err != nil {
		return err
	}
	snap, err := newDaemon(operCfg).buildSnapshot(ctx)
	if err != nil {
		return err
	}
	advice := staking.BuildStakingAdvice(snap.allocations, snap.validatorMeta())

	fmt.Printf("Total delegated: %s S, boosted: %s S, validators: %d (over:%d under:%d balanced:%d not-allowed:%d)\n\n",
		advice.Summary.TotalDelegated, advice.Summary.TotalBoosted, advice.Summary.ValidatorCount,
		advice.Summary.OverDelegatedCount, advice.Summary.UnderDelegatedCount,
		advice.Summary.BalancedCount, advice.Summary.NotAllowedCount)

	out := new(tabwriter.Writer)
	out.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(out, "STAKE MORE\t")
	fmt.Fprintln(out, "Validator\tAmount (S)\tReason")
	for _, rec := range advice.StakeMore {
		fmt.Fprintf(out, "%s\t%s\t%s\n", rec.ValidatorID, rec.Amount, rec.Reason)
	}
	fmt.Fprintln(out, "\t")
	fmt.Fprintln(out, "AVOID STAKING\t")
	fmt.Fprintln(out, "Validator\tAmount (S)\tReason")
	for _, rec := range advice.AvoidStaking {
		fmt.Fprintf(out, "%s\t%s\t%s\n", rec.ValidatorID, rec.Amount, rec.Reason)
	}
	return out.Flush()
}

func AdviseUnstake(ctx context.Context, cmd *cli.Command) error {
	operCfg, err := App.requireOperatorConfig()
	if err != nil {
		return err
	}
	amount, err := parseAmount(cmd.String("amount"), cmd.Bool("wei"))
	if err != nil {
		return err
	}
	snap, err := newDaemon(operCfg).buildSnapshot(ctx)
	if err != nil {
		return err
	}
	plan, err := staking.PlanWithdrawal(App.logger, amount, snap.allocations, operCfg.StakingConfig())
	if err != nil {
		return err
	}

	fmt.Printf("Withdrawal of %s S across %d validators:\n\n", staking.TokensFromWei(amount).Round(2), len(plan))
	out := new(tabwriter.Writer)
	out.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(out, "Validator\tAmount (S)\tAmount (wei)")
	for _, leg := range plan {
		fmt.Fprintf(out, "%s\t%s\t%s\n", leg.ValidatorID, staking.TokensFromWei(leg.Amount).Round(6), leg.Amount)
	}
	return out.Flush()
}

func parseAmount(amountStr string, isWei bool) (*big.Int, error) {
	if isWei {
		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("amount must be a positive wei integer, got %q", amountStr)
		}
		return amount, nil
	}
	tokens, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amountStr, err)
	}
	if !tokens.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", tokens)
	}
	return staking.WeiFromTokens(tokens), nil
}
