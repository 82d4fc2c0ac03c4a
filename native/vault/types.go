package vault

import (
	"math/big"

	"vaultcore/core/types"
	"vaultcore/crypto"
)

// VaultState captures the global accounting state for a single vault. Amount
// values are denominated in the underlying asset's smallest unit and expressed
// as big integers to keep conversions exact.
type VaultState struct {
	// Asset identifies the underlying fungible token.
	Asset crypto.Address
	// Decimals is the precision of the underlying asset.
	Decimals uint8
	// TotalIdle is the asset amount held directly by the vault, uncommitted
	// to any strategy.
	TotalIdle *big.Int
	// TotalDebt is the asset amount currently allocated across strategies.
	TotalDebt *big.Int
	// TotalSupply is the total outstanding share count, including the
	// vault-owned locked profit shares.
	TotalSupply *big.Int
	// LockedShares is the vault's own share balance representing reported
	// profit that has not yet unlocked into the public price per share.
	LockedShares *big.Int
	// MinimumTotalIdle is the idle floor the vault maintains for withdrawal
	// liquidity when increasing strategy debt.
	MinimumTotalIdle *big.Int
	// DepositLimit caps total assets accepted. Nil means uncapped.
	DepositLimit *big.Int
	// ProfitMaxUnlockTime is the horizon in seconds over which newly
	// reported profit unlocks. Zero disables locking entirely.
	ProfitMaxUnlockTime uint64
	// FullProfitUnlockDate is the timestamp at which all currently locked
	// shares finish unlocking. Zero when nothing is locked.
	FullProfitUnlockDate uint64
	// ProfitUnlockingRate is the locked share amount released per second,
	// scaled by unlockRatePrecision.
	ProfitUnlockingRate *big.Int
	// LastProfitUpdate records when the unlock schedule was last advanced.
	LastProfitUpdate uint64
	// DefaultQueue is the ordered fallback list of strategies used to source
	// withdrawal liquidity when idle assets are insufficient.
	DefaultQueue []crypto.Address
	// ActiveStrategies lists every registered strategy in activation order.
	ActiveStrategies []crypto.Address
	// Shutdown halts deposits, mints, and debt increases when set.
	Shutdown bool
}

// StrategyParams maintains the vault's record for a single strategy.
type StrategyParams struct {
	// Address is the strategy identifier.
	Address crypto.Address
	// Activation is the timestamp the strategy was added. Zero means the
	// strategy is not active.
	Activation uint64
	// LastReport is the timestamp of the most recent processed report.
	LastReport uint64
	// CurrentDebt is the asset amount the vault has allocated to the
	// strategy.
	CurrentDebt *big.Int
	// MaxDebt bounds CurrentDebt during debt increases.
	MaxDebt *big.Int
}

// ReportResult summarises the outcome of a processed strategy report.
type ReportResult struct {
	Strategy          crypto.Address
	Gain              *big.Int
	Loss              *big.Int
	TotalFeeShares    *big.Int
	ProtocolFeeShares *big.Int
}

// Strategy is the external collaborator the vault allocates debt to. The
// vault only consumes its reported value and its deposit/withdraw capacity;
// how the strategy generates yield is opaque.
type Strategy interface {
	// TotalAssetValue reports the strategy's current asset value.
	TotalAssetValue() (*big.Int, error)
	// Deposit moves assets from the vault into the strategy.
	Deposit(amount *big.Int) error
	// Withdraw pulls assets back, returning the amount actually recovered.
	// A shortfall is a realized loss for the vault to account for.
	Withdraw(amount *big.Int) (*big.Int, error)
}

// StrategyResolver maps a registered strategy address to its live
// collaborator. Resolution failures abort the calling operation.
type StrategyResolver interface {
	Resolve(addr crypto.Address) Strategy
}

// FeePolicy is the external accountant module consulted on every profitable
// report. The vault mints exactly the share amounts the policy reports and
// never recomputes the split locally.
type FeePolicy interface {
	Report(strategy crypto.Address, gain, loss *big.Int) (totalFeeShares, protocolFeeShares *big.Int, err error)
}

// DepositLimitModule overrides the static deposit limit when configured.
type DepositLimitModule interface {
	AvailableDepositLimit(receiver crypto.Address) (*big.Int, error)
}

// Authorizer gates mutating operations by caller capability. A nil authorizer
// disables the gate, leaving enforcement to the embedding service.
type Authorizer interface {
	Authorize(caller crypto.Address, action string) bool
}

// Clock supplies the monotonic timestamp used for unlock scheduling and
// report bookkeeping. Each operation reads it exactly once.
type Clock func() uint64

// EventSink receives the structured event emitted by each mutating
// operation, in execution order.
type EventSink interface {
	Emit(*types.Event)
}

type engineState interface {
	GetVault() (*VaultState, error)
	PutVault(state *VaultState) error
	GetStrategy(addr crypto.Address) (*StrategyParams, error)
	PutStrategy(params *StrategyParams) error
	DeleteStrategy(addr crypto.Address) error
	GetShareBalance(addr crypto.Address) (*big.Int, error)
	PutShareBalance(addr crypto.Address, amount *big.Int) error
	GetAllowance(owner, spender crypto.Address) (*big.Int, error)
	PutAllowance(owner, spender crypto.Address, amount *big.Int) error
}
