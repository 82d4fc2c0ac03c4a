package vault

import (
	"math/big"

	"vaultcore/crypto"
)

// AddStrategy registers a new strategy with zero debt and zero max debt. The
// strategy joins the default withdrawal queue when there is room.
func (e *Engine) AddStrategy(caller, strategyAddr crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionAddStrategy); err != nil {
		return err
	}
	if strategyAddr.IsZero() {
		return errZeroAddress
	}
	st, err := e.ensureVault()
	if err != nil {
		return err
	}
	existing, err := e.state.GetStrategy(strategyAddr)
	if err != nil {
		return err
	}
	if existing != nil && existing.Activation != 0 {
		return errDuplicateStrategy
	}
	if len(st.ActiveStrategies) >= MaxStrategies {
		return errTooManyStrategies
	}

	now := e.now()
	params := &StrategyParams{
		Address:     strategyAddr.Clone(),
		Activation:  now,
		LastReport:  now,
		CurrentDebt: big.NewInt(0),
		MaxDebt:     big.NewInt(0),
	}
	st.ActiveStrategies = append(st.ActiveStrategies, strategyAddr.Clone())
	if len(st.DefaultQueue) < MaxStrategies {
		st.DefaultQueue = append(st.DefaultQueue, strategyAddr.Clone())
	}

	if err := e.state.PutStrategy(params); err != nil {
		return err
	}
	if err := e.state.PutVault(st); err != nil {
		return err
	}

	e.emit(NewStrategyAddedEvent(caller, strategyAddr))
	return nil
}

// RevokeStrategy removes a strategy from the ledger. The normal path demands
// the strategy carry no debt; the forced path realizes the full recorded debt
// as a loss, absorbed by locked profit shares first and by the price per
// share for any residue.
func (e *Engine) RevokeStrategy(caller, strategyAddr crypto.Address, force bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionRevokeStrategy); err != nil {
		return err
	}
	st, err := e.ensureVault()
	if err != nil {
		return err
	}
	params, err := e.state.GetStrategy(strategyAddr)
	if err != nil {
		return err
	}
	if params == nil || params.Activation == 0 {
		return errInactiveStrategy
	}
	if params.CurrentDebt == nil {
		params.CurrentDebt = big.NewInt(0)
	}

	loss := big.NewInt(0)
	if params.CurrentDebt.Sign() != 0 {
		if !force {
			return errStrategyHasDebt
		}
		loss = new(big.Int).Set(params.CurrentDebt)
		now := e.now()
		burnUnlocked(st, now)
		lossShares := sharesForAssets(loss, totalAssets(st), st.TotalSupply, false)
		registerLoss(st, lossShares)
		st.TotalDebt = new(big.Int).Sub(st.TotalDebt, loss)
	}

	st.ActiveStrategies = removeAddress(st.ActiveStrategies, strategyAddr)
	st.DefaultQueue = removeAddress(st.DefaultQueue, strategyAddr)

	if err := e.state.DeleteStrategy(strategyAddr); err != nil {
		return err
	}
	if err := e.state.PutVault(st); err != nil {
		return err
	}

	e.emit(NewStrategyRevokedEvent(caller, strategyAddr, loss))
	return nil
}

// UpdateMaxDebtForStrategy adjusts the debt ceiling applied on future debt
// increases. Current debt above the new ceiling is left in place and only
// drains through debt decreases and reports.
func (e *Engine) UpdateMaxDebtForStrategy(caller, strategyAddr crypto.Address, newMaxDebt *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionUpdateMaxDebt); err != nil {
		return err
	}
	if newMaxDebt == nil || newMaxDebt.Sign() < 0 {
		return errInvalidAmount
	}
	if e.state == nil {
		return errNilState
	}
	params, err := e.state.GetStrategy(strategyAddr)
	if err != nil {
		return err
	}
	if params == nil || params.Activation == 0 {
		return errInactiveStrategy
	}
	params.MaxDebt = new(big.Int).Set(newMaxDebt)
	if err := e.state.PutStrategy(params); err != nil {
		return err
	}
	e.emit(NewMaxDebtUpdatedEvent(caller, strategyAddr, newMaxDebt))
	return nil
}

// SetDefaultQueue replaces the ordered withdrawal queue. Every entry must be
// an active strategy and entries may not repeat.
func (e *Engine) SetDefaultQueue(caller crypto.Address, queue []crypto.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionSetDefaultQueue); err != nil {
		return err
	}
	if len(queue) > MaxStrategies {
		return errQueueTooLong
	}
	st, err := e.ensureVault()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(queue))
	cloned := make([]crypto.Address, 0, len(queue))
	for _, addr := range queue {
		if addr.IsZero() {
			return errZeroAddress
		}
		key := string(addr.Bytes())
		if _, dup := seen[key]; dup {
			return errDuplicateStrategy
		}
		seen[key] = struct{}{}
		params, err := e.state.GetStrategy(addr)
		if err != nil {
			return err
		}
		if params == nil || params.Activation == 0 {
			return errInactiveStrategy
		}
		cloned = append(cloned, addr.Clone())
	}
	st.DefaultQueue = cloned
	if err := e.state.PutVault(st); err != nil {
		return err
	}
	e.emit(NewQueueUpdatedEvent(caller, cloned))
	return nil
}

func removeAddress(list []crypto.Address, target crypto.Address) []crypto.Address {
	out := list[:0]
	for _, addr := range list {
		if !addr.Equal(target) {
			out = append(out, addr)
		}
	}
	return out
}
