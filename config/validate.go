package config

import (
	"fmt"
	"math/big"
	"strings"

	"vaultcore/crypto"
)

// MaxProfitUnlockSeconds bounds the unlock horizon to one year.
const MaxProfitUnlockSeconds = uint64(31_556_952)

func Validate(cfg *Config) error {
	if cfg.Vault.Decimals > 18 {
		return fmt.Errorf("vault: Decimals %d exceeds 18", cfg.Vault.Decimals)
	}
	if cfg.Vault.ProfitMaxUnlockTime > MaxProfitUnlockSeconds {
		return fmt.Errorf("vault: ProfitMaxUnlockTime %d exceeds %d", cfg.Vault.ProfitMaxUnlockTime, MaxProfitUnlockSeconds)
	}
	switch cfg.Vault.StrategyMode {
	case "", StrategyModeBook, StrategyModeExternal:
	default:
		return fmt.Errorf("vault: unknown StrategyMode %q", cfg.Vault.StrategyMode)
	}
	for name, raw := range map[string]string{
		"Asset":                cfg.Vault.Asset,
		"FeeRecipient":         cfg.Vault.FeeRecipient,
		"ProtocolFeeRecipient": cfg.Vault.ProtocolFeeRecipient,
		"Admin":                cfg.Vault.Admin,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(raw); err != nil {
			return fmt.Errorf("vault: invalid %s: %w", name, err)
		}
	}
	for name, raw := range map[string]string{
		"DepositLimit":     cfg.Vault.DepositLimit,
		"MinimumTotalIdle": cfg.Vault.MinimumTotalIdle,
	} {
		if _, err := parseOptionalAmount(raw); err != nil {
			return fmt.Errorf("vault: invalid %s: %w", name, err)
		}
	}
	return nil
}

// ParseDepositLimit resolves the configured cap; nil means uncapped.
func (v Vault) ParseDepositLimit() (*big.Int, error) {
	return parseOptionalAmount(v.DepositLimit)
}

// ParseMinimumTotalIdle resolves the configured idle floor, zero when unset.
func (v Vault) ParseMinimumTotalIdle() (*big.Int, error) {
	amount, err := parseOptionalAmount(v.MinimumTotalIdle)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	return amount, nil
}

func parseOptionalAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is not a non-negative decimal", raw)
	}
	return value, nil
}
