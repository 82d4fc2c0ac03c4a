package vault

import (
	"errors"
	"math/big"

	"vaultcore/crypto"
)

var errAlreadyInitialized = errors.New("vault engine: vault already initialised")

// Initialize writes the genesis vault state. It can only run once per state
// store.
func (e *Engine) Initialize(caller, asset crypto.Address, decimals uint8, depositLimit *big.Int, profitMaxUnlockTime uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionSetDepositLimit); err != nil {
		return err
	}
	if asset.IsZero() {
		return errZeroAddress
	}
	existing, err := e.state.GetVault()
	if err != nil {
		return err
	}
	if existing != nil {
		return errAlreadyInitialized
	}
	st := &VaultState{
		Asset:               asset.Clone(),
		Decimals:            decimals,
		TotalIdle:           big.NewInt(0),
		TotalDebt:           big.NewInt(0),
		TotalSupply:         big.NewInt(0),
		LockedShares:        big.NewInt(0),
		MinimumTotalIdle:    big.NewInt(0),
		ProfitUnlockingRate: big.NewInt(0),
		ProfitMaxUnlockTime: profitMaxUnlockTime,
		LastProfitUpdate:    e.now(),
	}
	if depositLimit != nil {
		st.DepositLimit = new(big.Int).Set(depositLimit)
	}
	return e.state.PutVault(st)
}

// SetDepositLimit replaces the static deposit cap. Rejected while an external
// deposit limit module is configured since the module takes precedence.
func (e *Engine) SetDepositLimit(caller crypto.Address, limit *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionSetDepositLimit); err != nil {
		return err
	}
	if e.limitModule != nil {
		return errLimitModuleSet
	}
	st, err := e.ensureVault()
	if err != nil {
		return err
	}
	if limit == nil {
		st.DepositLimit = nil
	} else {
		if limit.Sign() < 0 {
			return errInvalidAmount
		}
		st.DepositLimit = new(big.Int).Set(limit)
	}
	if err := e.state.PutVault(st); err != nil {
		return err
	}
	e.emit(NewLimitUpdatedEvent(caller, "deposit_limit", limit))
	return nil
}

// SetMinimumTotalIdle adjusts the idle floor maintained during debt
// increases.
func (e *Engine) SetMinimumTotalIdle(caller crypto.Address, minimum *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionSetMinimumTotalIdle); err != nil {
		return err
	}
	if minimum == nil || minimum.Sign() < 0 {
		return errInvalidAmount
	}
	st, err := e.ensureVault()
	if err != nil {
		return err
	}
	st.MinimumTotalIdle = new(big.Int).Set(minimum)
	if err := e.state.PutVault(st); err != nil {
		return err
	}
	e.emit(NewLimitUpdatedEvent(caller, "minimum_total_idle", minimum))
	return nil
}

// SetProfitMaxUnlockTime changes the unlock horizon for future reports.
// Setting zero disables locking and immediately recognises any profit still
// on the schedule.
func (e *Engine) SetProfitMaxUnlockTime(caller crypto.Address, seconds uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionSetUnlockTime); err != nil {
		return err
	}
	st, err := e.ensureVault()
	if err != nil {
		return err
	}
	if seconds == 0 && st.LockedShares.Sign() > 0 {
		st.TotalSupply = new(big.Int).Sub(st.TotalSupply, st.LockedShares)
		st.LockedShares = big.NewInt(0)
		st.ProfitUnlockingRate = big.NewInt(0)
		st.FullProfitUnlockDate = 0
	}
	st.ProfitMaxUnlockTime = seconds
	if err := e.state.PutVault(st); err != nil {
		return err
	}
	e.emit(NewLimitUpdatedEvent(caller, "profit_max_unlock_time", new(big.Int).SetUint64(seconds)))
	return nil
}

// Shutdown permanently halts deposits, mints, and debt increases.
// Withdrawals and reports continue so depositors can exit.
func (e *Engine) Shutdown(caller crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionShutdown); err != nil {
		return err
	}
	st, err := e.ensureVault()
	if err != nil {
		return err
	}
	if st.Shutdown {
		return nil
	}
	st.Shutdown = true
	if err := e.state.PutVault(st); err != nil {
		return err
	}
	e.emit(NewShutdownEvent(caller))
	return nil
}
