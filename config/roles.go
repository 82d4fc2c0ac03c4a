package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vaultcore/crypto"
	"vaultcore/native/vault"
)

type rolesManifest struct {
	Admins            []string `yaml:"admins"`
	StrategyManagers  []string `yaml:"strategyManagers"`
	ReportingManagers []string `yaml:"reportingManagers"`
	DebtPurchasers    []string `yaml:"debtPurchasers"`
}

// LoadRoles reads the YAML role manifest into the engine's role table. An
// empty path yields a nil table, which disables the authorization gate.
func LoadRoles(path string) (*vault.RoleTable, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roles: read manifest: %w", err)
	}
	var manifest rolesManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("roles: parse manifest: %w", err)
	}

	table := &vault.RoleTable{}
	for _, entry := range []struct {
		name string
		raw  []string
		dst  *[]crypto.Address
	}{
		{"admins", manifest.Admins, &table.Admins},
		{"strategyManagers", manifest.StrategyManagers, &table.StrategyManagers},
		{"reportingManagers", manifest.ReportingManagers, &table.ReportingManagers},
		{"debtPurchasers", manifest.DebtPurchasers, &table.DebtPurchasers},
	} {
		for _, encoded := range entry.raw {
			addr, err := crypto.DecodeAddress(encoded)
			if err != nil {
				return nil, fmt.Errorf("roles: invalid %s entry %q: %w", entry.name, encoded, err)
			}
			*entry.dst = append(*entry.dst, addr)
		}
	}
	return table, nil
}
