package vault

import (
	"fmt"
	"math/big"

	"vaultcore/crypto"
)

// UpdateDebt moves assets between the vault's idle balance and a strategy to
// reach targetDebt. Increases are bounded by the strategy's max debt and by
// the idle assets above the configured minimum. Decreases are capped by
// whatever the strategy can actually return and never fail on a partial
// fill. The strategy's resulting debt is returned.
func (e *Engine) UpdateDebt(caller, strategyAddr crypto.Address, targetDebt *big.Int) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionUpdateDebt); err != nil {
		return nil, err
	}
	if targetDebt == nil || targetDebt.Sign() < 0 {
		return nil, errInvalidAmount
	}
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	now := e.now()
	burnUnlocked(st, now)

	params, err := e.state.GetStrategy(strategyAddr)
	if err != nil {
		return nil, err
	}
	if params == nil || params.Activation == 0 {
		return nil, errInactiveStrategy
	}
	if params.CurrentDebt == nil {
		params.CurrentDebt = big.NewInt(0)
	}
	if params.MaxDebt == nil {
		params.MaxDebt = big.NewInt(0)
	}

	cmp := targetDebt.Cmp(params.CurrentDebt)
	if cmp == 0 {
		return nil, errDebtUnchanged
	}

	debtBefore := new(big.Int).Set(params.CurrentDebt)
	if cmp > 0 {
		if st.Shutdown {
			return nil, errVaultShutdown
		}
		if targetDebt.Cmp(params.MaxDebt) > 0 {
			return nil, errDebtLimitExceeded
		}
		if st.TotalIdle.Cmp(st.MinimumTotalIdle) <= 0 {
			return nil, errInsufficientIdle
		}
		available := new(big.Int).Sub(st.TotalIdle, st.MinimumTotalIdle)
		increase := minBig(new(big.Int).Sub(targetDebt, params.CurrentDebt), available)

		strategy := e.resolveStrategy(strategyAddr)
		if strategy == nil {
			return nil, errStrategyUnavailable
		}
		if err := strategy.Deposit(increase); err != nil {
			return nil, fmt.Errorf("vault engine: strategy deposit: %w", err)
		}

		st.TotalIdle = new(big.Int).Sub(st.TotalIdle, increase)
		st.TotalDebt = new(big.Int).Add(st.TotalDebt, increase)
		params.CurrentDebt = new(big.Int).Add(params.CurrentDebt, increase)
	} else {
		want := new(big.Int).Sub(params.CurrentDebt, targetDebt)

		strategy := e.resolveStrategy(strategyAddr)
		if strategy == nil {
			return nil, errStrategyUnavailable
		}
		recovered, err := strategy.Withdraw(want)
		if err != nil {
			return nil, fmt.Errorf("vault engine: strategy withdraw: %w", err)
		}
		if recovered == nil || recovered.Sign() < 0 {
			recovered = big.NewInt(0)
		}
		if recovered.Cmp(want) > 0 {
			recovered = new(big.Int).Set(want)
		}

		st.TotalIdle = new(big.Int).Add(st.TotalIdle, recovered)
		st.TotalDebt = new(big.Int).Sub(st.TotalDebt, recovered)
		params.CurrentDebt = new(big.Int).Sub(params.CurrentDebt, recovered)
	}

	if err := e.state.PutStrategy(params); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(st); err != nil {
		return nil, err
	}

	e.emit(NewDebtUpdatedEvent(caller, strategyAddr, debtBefore, params.CurrentDebt, st.TotalIdle, st.TotalDebt))
	return new(big.Int).Set(params.CurrentDebt), nil
}

// BuyDebt lets an authorized purchaser take over part of a strategy's debt at
// book value: the purchaser pays the asset amount externally and the vault
// reclassifies that much debt as idle without triggering gain or loss
// accounting. Total assets are conserved exactly.
func (e *Engine) BuyDebt(caller, strategyAddr crypto.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionBuyDebt); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
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
	if params.CurrentDebt == nil || amount.Cmp(params.CurrentDebt) > 0 {
		return errInvalidAmount
	}

	debtBefore := new(big.Int).Set(params.CurrentDebt)
	params.CurrentDebt = new(big.Int).Sub(params.CurrentDebt, amount)
	st.TotalDebt = new(big.Int).Sub(st.TotalDebt, amount)
	st.TotalIdle = new(big.Int).Add(st.TotalIdle, amount)

	if err := e.state.PutStrategy(params); err != nil {
		return err
	}
	if err := e.state.PutVault(st); err != nil {
		return err
	}

	e.emit(NewDebtPurchasedEvent(caller, strategyAddr, amount, debtBefore, params.CurrentDebt))
	return nil
}
