package vault

import "vaultcore/crypto"

// RoleTable is a static Authorizer mapping capability actions to the role
// holders configured at construction. Admins pass every check; the narrower
// roles cover the actions their name suggests. Deposits, withdrawals, and
// share transfers are permissionless and never consult the table.
type RoleTable struct {
	Admins            []crypto.Address
	StrategyManagers  []crypto.Address
	ReportingManagers []crypto.Address
	DebtPurchasers    []crypto.Address
}

var actionRoles = map[string]func(*RoleTable) []crypto.Address{
	ActionAddStrategy:     func(t *RoleTable) []crypto.Address { return t.StrategyManagers },
	ActionRevokeStrategy:  func(t *RoleTable) []crypto.Address { return t.StrategyManagers },
	ActionUpdateMaxDebt:   func(t *RoleTable) []crypto.Address { return t.StrategyManagers },
	ActionSetDefaultQueue: func(t *RoleTable) []crypto.Address { return t.StrategyManagers },
	ActionUpdateDebt:      func(t *RoleTable) []crypto.Address { return t.StrategyManagers },
	ActionProcessReport:   func(t *RoleTable) []crypto.Address { return t.ReportingManagers },
	ActionBuyDebt:         func(t *RoleTable) []crypto.Address { return t.DebtPurchasers },
}

// Authorize implements Authorizer.
func (t *RoleTable) Authorize(caller crypto.Address, action string) bool {
	if t == nil {
		return false
	}
	if containsAddress(t.Admins, caller) {
		return true
	}
	lookup, ok := actionRoles[action]
	if !ok {
		// Settings and shutdown are admin-only.
		return false
	}
	return containsAddress(lookup(t), caller)
}

func containsAddress(list []crypto.Address, target crypto.Address) bool {
	for _, addr := range list {
		if addr.Equal(target) {
			return true
		}
	}
	return false
}
