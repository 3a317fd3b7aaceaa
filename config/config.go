package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"otcpool/native/crowdfund"
)

// Config holds the process-wide settings of the settlement engine.
type Config struct {
	// Operator may mutate engine parameters at runtime.
	Operator string `toml:"Operator"`
	// VaultAccount is the identity the engine holds pooled assets under.
	VaultAccount string `toml:"VaultAccount"`
	// DataDir is where the LevelDB-backed state lives.
	DataDir string `toml:"DataDir"`
	// DescriptionLimit caps pool description length.
	DescriptionLimit int `toml:"DescriptionLimit"`
	// ContributionWindowSecs is the length of the contribution window.
	ContributionWindowSecs int64 `toml:"ContributionWindowSecs"`
	// TradeWindowSecs is how long after the contribution deadline a listing
	// may remain open.
	TradeWindowSecs int64 `toml:"TradeWindowSecs"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.VaultAccount) == "" {
		return fmt.Errorf("config: VaultAccount is required")
	}
	return c.EngineParams().Validate()
}

// EngineParams maps the configuration onto engine parameters.
func (c *Config) EngineParams() crowdfund.Params {
	return crowdfund.Params{
		Operator:           c.Operator,
		DescriptionLimit:   c.DescriptionLimit,
		ContributionWindow: c.ContributionWindowSecs,
		TradeWindow:        c.TradeWindowSecs,
	}
}

func applyDefaults(cfg *Config) {
	defaults := crowdfund.DefaultParams()
	if strings.TrimSpace(cfg.VaultAccount) == "" {
		cfg.VaultAccount = "crowdfund-vault"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if cfg.DescriptionLimit == 0 {
		cfg.DescriptionLimit = defaults.DescriptionLimit
	}
	if cfg.ContributionWindowSecs == 0 {
		cfg.ContributionWindowSecs = defaults.ContributionWindow
	}
	if cfg.TradeWindowSecs == 0 {
		cfg.TradeWindowSecs = defaults.TradeWindow
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{Operator: "operator"}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
