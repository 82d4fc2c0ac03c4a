package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	AuditDir       string `toml:"AuditDir"`
	RolesFile      string `toml:"RolesFile"`
	Environment    string `toml:"Environment"`

	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`

	Vault     Vault     `toml:"vault"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Vault holds the genesis accounting parameters applied when the data
// directory is empty.
type Vault struct {
	Asset                string `toml:"Asset"`
	Decimals             uint8  `toml:"Decimals"`
	DepositLimit         string `toml:"DepositLimit"`
	MinimumTotalIdle     string `toml:"MinimumTotalIdle"`
	ProfitMaxUnlockTime  uint64 `toml:"ProfitMaxUnlockTime"`
	FeeRecipient         string `toml:"FeeRecipient"`
	ProtocolFeeRecipient string `toml:"ProtocolFeeRecipient"`
	Admin                string `toml:"Admin"`
	StrategyMode         string `toml:"StrategyMode"`
}

// Strategy resolver modes. Book keeps per-strategy holdings in the vault's
// own database; external leaves the resolver unset for an embedding service
// to install.
const (
	StrategyModeBook     = "book"
	StrategyModeExternal = "external"
)

type Telemetry struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if strings.TrimSpace(cfg.AuditDir) == "" {
		cfg.AuditDir = filepath.Join(cfg.DataDir, "audit")
	}
	if cfg.Vault.ProfitMaxUnlockTime == 0 && cfg.Vault.Asset == "" {
		cfg.Vault.ProfitMaxUnlockTime = 7 * 24 * 3600
	}
	if strings.TrimSpace(cfg.Vault.StrategyMode) == "" {
		cfg.Vault.StrategyMode = StrategyModeBook
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./vault-data",
		Environment:    "local",
		Vault: Vault{
			Decimals:            6,
			ProfitMaxUnlockTime: 7 * 24 * 3600,
		},
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
