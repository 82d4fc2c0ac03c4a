package vault

import "math/big"

const moduleName = "vault"

// MaxStrategies bounds both the active strategy set and the default queue.
const MaxStrategies = 10

// MaxLossBps is the loss tolerance ceiling callers may pass to withdrawals,
// expressed in basis points.
const MaxLossBps = 10_000

var (
	basisPoints = big.NewInt(10_000)
	// unlockRatePrecision scales the per-second profit unlocking rate so
	// sub-unit rates survive integer division.
	unlockRatePrecision = big.NewInt(1_000_000_000_000)
)

// Capability actions consulted through the Authorizer before mutation.
const (
	ActionAddStrategy         = "vault.strategy.add"
	ActionRevokeStrategy      = "vault.strategy.revoke"
	ActionUpdateMaxDebt       = "vault.strategy.max_debt"
	ActionSetDefaultQueue     = "vault.queue.set"
	ActionUpdateDebt          = "vault.debt.update"
	ActionBuyDebt             = "vault.debt.buy"
	ActionProcessReport       = "vault.report.process"
	ActionSetDepositLimit     = "vault.limits.deposit"
	ActionSetMinimumTotalIdle = "vault.limits.min_idle"
	ActionSetUnlockTime       = "vault.limits.unlock_time"
	ActionShutdown            = "vault.shutdown"
)
