package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/beetslabs/stakingmgr/internal/lib/staking"
)

// OperatorConfig holds everything operator specific: which validators we are
// willing to delegate to, which one is ours, where the boost weights live,
// and the wallets whose balances drive the boost weights.
type OperatorConfig struct {
	// AllowedValidators are the only validators eligible for expected
	// delegation.  Everything else is a withdrawal candidate.
	AllowedValidators []string `json:"allowedValidators"`
	// OwnValidatorID is our own validator - never a withdrawal source.
	OwnValidatorID string `json:"ownValidatorId"`
	// BoostCSVPath is where the tracker persists weights (defaults next to
	// the config file).
	BoostCSVPath string `json:"boostCsvPath,omitempty"`
	// Wallets maps validator id -> affiliated wallet addresses tracked for
	// boost weight.
	Wallets map[string][]string `json:"wallets,omitempty"`

	// APIPort is the daemon's HTTP API port.
	APIPort int `json:"apiPort,omitempty"`
	// RefreshMinutes is how often the daemon refreshes its snapshot.
	RefreshMinutes int `json:"refreshMinutes,omitempty"`
}

const (
	defaultAPIPort        = 6270
	defaultRefreshMinutes = 15
)

func (c *OperatorConfig) Validate() error {
	if len(c.AllowedValidators) == 0 {
		return fmt.Errorf("no allowed validators configured")
	}
	if c.OwnValidatorID != "" && !slices.Contains(c.AllowedValidators, c.OwnValidatorID) {
		return fmt.Errorf("own validator %s missing from allowed validator set", c.OwnValidatorID)
	}
	return nil
}

func (c *OperatorConfig) StakingConfig() staking.Config {
	return staking.Config{
		AllowedValidators: c.AllowedValidators,
		OwnValidatorID:    c.OwnValidatorID,
	}
}

func (c *OperatorConfig) apiPort() int {
	if c.APIPort == 0 {
		return defaultAPIPort
	}
	return c.APIPort
}

func (c *OperatorConfig) refreshInterval() time.Duration {
	minutes := c.RefreshMinutes
	if minutes <= 0 {
		minutes = defaultRefreshMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (c *OperatorConfig) boostCSVPath() string {
	if c.BoostCSVPath != "" {
		return c.BoostCSVPath
	}
	cfgName, err := ConfigFilename()
	if err != nil {
		return "boost-weights.csv"
	}
	return filepath.Join(filepath.Dir(cfgName), "boost-weights.csv")
}

func ConfigFilename() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	cfgPath := filepath.Join(cfgDir, "stakingmgr", "config.json")
	err = os.MkdirAll(filepath.Dir(cfgPath), 0775) // user+group RWX, others RX
	if err != nil {
		return "", fmt.Errorf("error making directory:%s, error:%w", cfgDir, err)
	}
	return cfgPath, nil
}

func LoadOperatorConfig() (*OperatorConfig, error) {
	cfgName, err := ConfigFilename()
	if err != nil {
		return nil, err
	}
	file, err := os.Open(cfgName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg OperatorConfig
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("error reading configuration %s: %w", cfgName, err)
	}
	return &cfg, nil
}

// SaveOperatorConfig writes the config by first saving into a temp file and
// then replacing the config file only if successfully written.
func SaveOperatorConfig(cfg *OperatorConfig) error {
	cfgName, err := ConfigFilename()
	if err != nil {
		return err
	}
	temp, err := os.CreateTemp(filepath.Dir(cfgName), filepath.Base(cfgName)+".*")
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(temp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error saving configuration: %w", err)
	}
	if err := temp.Close(); err != nil {
		return err
	}
	return os.Rename(temp.Name(), cfgName)
}
