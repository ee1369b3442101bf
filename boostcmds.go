package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/beetslabs/stakingmgr/internal/lib/boost"
)

func GetBoostCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "boost",
		Aliases: []string{"b"},
		Usage:   "Manage boost weights derived from affiliated wallet balances",
		Commands: []*cli.Command{
			{
				Name:   "update",
				Usage:  "Recompute boost weights from current wallet balances and save them",
				Action: BoostUpdate,
			},
			{
				Name:    "show",
				Aliases: []string{"s"},
				Usage:   "Show the stored boost weights",
				Action:  BoostShow,
			},
		},
	}
}

func BoostUpdate(ctx context.Context, _ *cli.Command) error {
	operCfg, err := App.requireOperatorConfig()
	if err != nil {
		return err
	}
	if len(operCfg.Wallets) == 0 {
		return fmt.Errorf("no affiliated wallets configured - nothing to track")
	}
	tracker := boost.NewTracker(App.logger, App.sonicClient,
		App.netCfg.STSAddress, App.netCfg.STokenAddress, operCfg.Wallets)
	return tracker.Refresh(ctx, operCfg.boostCSVPath())
}

func BoostShow(ctx context.Context, _ *cli.Command) error {
	operCfg, err := App.requireOperatorConfig()
	if err != nil {
		return err
	}
	records, err := boost.LoadRecords(App.logger, operCfg.boostCSVPath())
	if err != nil {
		return err
	}
	out := new(tabwriter.Writer)
	out.Init(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(out, "Validator\tstS\tS equiv\tWeight %")
	for _, rec := range records {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", rec.ValidatorID, rec.STSBalance, rec.SBalance, rec.Weight)
	}
	return out.Flush()
}
