package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"
)

func GetConfigCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Manage the operator configuration",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Interactively create (or replace) the operator configuration",
				Action: ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Show the current operator configuration",
				Action: ConfigShow,
			},
			{
				Name:  "allow",
				Usage: "Add a validator to the allowed set",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Validator ID to allow",
						Required: true,
					},
				},
				Action: ConfigAllow,
			},
			{
				Name:  "disallow",
				Usage: "Remove a validator from the allowed set",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Validator ID to remove",
						Required: true,
					},
				},
				Action: ConfigDisallow,
			},
		},
	}
}

func ConfigInit(ctx context.Context, _ *cli.Command) error {
	if App.operCfg != nil {
		result, _ := yesNo("An operator configuration already exists, do you REALLY want to replace it")
		if result != "y" {
			return nil
		}
	}
	cfg := &OperatorConfig{}

	allowed, err := getValidatorIDList("Enter the allowed validator IDs (comma separated)")
	if err != nil {
		return err
	}
	cfg.AllowedValidators = allowed

	own, err := getValidatorID("Enter your own validator ID (never a withdrawal source)", allowed[0])
	if err != nil {
		return err
	}
	cfg.OwnValidatorID = own

	port, err := getInt("Enter the advisor API port", defaultAPIPort, 1024, 65535)
	if err != nil {
		return err
	}
	cfg.APIPort = port

	refresh, err := getInt("Enter the snapshot refresh interval (minutes)", defaultRefreshMinutes, 1, 24*60)
	if err != nil {
		return err
	}
	cfg.RefreshMinutes = refresh

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := SaveOperatorConfig(cfg); err != nil {
		return err
	}
	App.operCfg = cfg
	fmt.Println("Configuration saved.  Add affiliated wallets with 'config show' + editing the file, then run 'boost update'.")
	return nil
}

func ConfigShow(ctx context.Context, _ *cli.Command) error {
	operCfg, err := App.requireOperatorConfig()
	if err != nil {
		return err
	}
	cfgName, err := ConfigFilename()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(operCfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s\n", cfgName, data)
	return nil
}

func ConfigAllow(ctx context.Context, cmd *cli.Command) error {
	operCfg, err := App.requireOperatorConfig()
	if err != nil {
		return err
	}
	id := cmd.String("id")
	if err := validateValidatorID(id); err != nil {
		return err
	}
	for _, existing := range operCfg.AllowedValidators {
		if existing == id {
			return fmt.Errorf("validator %s is already allowed", id)
		}
	}
	operCfg.AllowedValidators = append(operCfg.AllowedValidators, id)
	return SaveOperatorConfig(operCfg)
}

func ConfigDisallow(ctx context.Context, cmd *cli.Command) error {
	operCfg, err := App.requireOperatorConfig()
	if err != nil {
		return err
	}
	id := cmd.String("id")
	if id == operCfg.OwnValidatorID {
		return errors.New("refusing to disallow our own validator")
	}
	var kept []string
	for _, existing := range operCfg.AllowedValidators {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(operCfg.AllowedValidators) {
		return fmt.Errorf("validator %s is not in the allowed set", id)
	}
	operCfg.AllowedValidators = kept
	return SaveOperatorConfig(operCfg)
}

var validValidatorIDRegex = regexp.MustCompile(`^[0-9]+$`)

func validateValidatorID(id string) error {
	if !validValidatorIDRegex.MatchString(id) {
		return fmt.Errorf("invalid validator id:%s (must be numeric)", id)
	}
	return nil
}

func getValidatorID(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:    prompt,
		Default:  defVal,
		Validate: validateValidatorID,
	}).Run()
}

func getValidatorIDList(prompt string) ([]string, error) {
	result, err := (&promptui.Prompt{
		Label: prompt,
		Validate: func(input string) error {
			ids := splitIDs(input)
			if len(ids) == 0 {
				return errors.New("at least one validator id required")
			}
			for _, id := range ids {
				if err := validateValidatorID(id); err != nil {
					return err
				}
			}
			return nil
		},
	}).Run()
	if err != nil {
		return nil, err
	}
	return splitIDs(result), nil
}

func splitIDs(input string) []string {
	var ids []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func getInt(prompt string, defVal int, minVal int, maxVal int) (int, error) {
	validate := func(input string) error {
		value, err := strconv.Atoi(input)
		if err != nil {
			return err
		}
		if value < minVal || value > maxVal {
			return fmt.Errorf("value must be between %d and %d", minVal, maxVal)
		}
		return nil
	}
	result, err := (&promptui.Prompt{
		Label:    prompt,
		Default:  strconv.Itoa(defVal),
		Validate: validate,
	}).Run()
	if err != nil {
		return 0, err
	}
	value, _ := strconv.Atoi(result)
	return value, nil
}

func yesNo(prompt string) (string, error) {
	result, err := (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
	if err != nil && !errors.Is(err, promptui.ErrAbort) {
		return "", err
	}
	_ = os.Stdout.Sync()
	return strings.ToLower(result), nil
}
