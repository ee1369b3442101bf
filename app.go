package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
	"github.com/beetslabs/stakingmgr/internal/lib/sonic"
	"github.com/beetslabs/stakingmgr/internal/lib/subgraph"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *AdvisorApp {
	log.SetFlags(0)
	var logger *slog.Logger
	if term.IsTerminal(int(os.Stdout.Fd())) {
		// Output is a tty - we're being run as a CLI, keep the output minimal
		logger = slog.New(misc.NewMinimalHandler(os.Stdout,
			misc.MinimalHandlerOptions{SlogOpts: slog.HandlerOptions{Level: logLevel, AddSource: true}}))
	} else {
		// not on console - output as json, but change json key names to be more
		// compatible w/ what google logging expects
		opts := &slog.HandlerOptions{
			AddSource: true,
			Level:     logLevel,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.MessageKey {
					a.Key = "message"
				} else if a.Key == slog.LevelKey && len(groups) == 0 {
					a.Key = "severity"
				}
				return a
			},
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	appConfig := &AdvisorApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "stakingmgr",
		Usage:   "Delegation advisor and boost tracker for Sonic validator operations",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			// Further bootstrap of the 'app' but within context of 'cli' helper
			// as it has access to flags and options (network to use for eg).
			return appConfig.initClients(ctx, cmd)
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("STAKINGMGR_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Sonic network to use",
				Value:   "sonic",
				Aliases: []string{"n"},
				Sources: cli.EnvVars("SONIC_NETWORK"),
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetAdviseCmdOpts(),
			GetBoostCmdOpts(),
			GetConfigCmdOpts(),
		},
	}
	return appConfig
}

type AdvisorApp struct {
	cliCmd      *cli.Command
	logger      *slog.Logger
	network     string
	netCfg      sonic.NetworkConfig
	sonicClient *sonic.Client
	graphClient *subgraph.Client
	operCfg     *OperatorConfig
}

// initClients validates the network selection, layers in the network specific
// env file, and initializes the RPC and subgraph clients.
func (ac *AdvisorApp) initClients(ctx context.Context, cmd *cli.Command) error {
	network := cmd.String("network")

	if envfile := cmd.String("envfile"); envfile != "" {
		if err := loadNamedEnvFile(ac.logger, envfile); err != nil {
			return err
		}
	}
	switch network {
	case "sonic", "blaze", "localnet":
	default:
		return cli.Exit("unknown network:"+network, 1)
	}
	misc.LoadEnvForNetwork(ac.logger, network)

	ac.network = network
	ac.netCfg = sonic.GetNetworkConfig(network)

	sonicClient, err := sonic.NewClient(ac.logger, ac.netCfg)
	if err != nil {
		return err
	}
	graphClient, err := subgraph.NewClient(ac.logger, ac.netCfg.SubgraphURL)
	if err != nil {
		return err
	}
	ac.sonicClient = sonicClient
	ac.graphClient = graphClient

	// Operator config is optional at this point - commands that need it check
	// via requireOperatorConfig.
	if operCfg, err := LoadOperatorConfig(); err == nil {
		ac.operCfg = operCfg
	}
	return nil
}

func loadNamedEnvFile(logger *slog.Logger, envFile string) error {
	misc.Infof(logger, "loading env file:%s", envFile)
	return godotenv.Load(envFile)
}

// requireOperatorConfig gates commands that can't run before 'config init'.
func (ac *AdvisorApp) requireOperatorConfig() (*OperatorConfig, error) {
	if ac.operCfg == nil {
		return nil, fmt.Errorf("operator not configured - run 'stakingmgr config init' first")
	}
	if err := ac.operCfg.Validate(); err != nil {
		return nil, err
	}
	return ac.operCfg, nil
}
