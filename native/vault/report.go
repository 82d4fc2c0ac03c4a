package vault

import (
	"fmt"
	"math/big"

	"vaultcore/crypto"
)

// ProcessReport reconciles a strategy's reported asset value against its
// recorded debt. Gains consult the fee policy and mint its reported share
// split to the accountant and protocol recipients before locking the
// remaining profit for gradual unlock; losses burn locked profit shares first
// and let any residue fall through to the price per share. The strategy's
// value query and the fee policy query sit between the read and commit
// phases: a failure in either aborts the report with nothing persisted.
func (e *Engine) ProcessReport(caller, strategyAddr crypto.Address) (*ReportResult, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.authorize(caller, ActionProcessReport); err != nil {
		return nil, err
	}
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	params, err := e.state.GetStrategy(strategyAddr)
	if err != nil {
		return nil, err
	}
	if params == nil || params.Activation == 0 {
		return nil, errStrategyNotActive
	}
	if params.CurrentDebt == nil {
		params.CurrentDebt = big.NewInt(0)
	}

	strategy := e.resolveStrategy(strategyAddr)
	if strategy == nil {
		return nil, errStrategyUnavailable
	}
	newValue, err := strategy.TotalAssetValue()
	if err != nil {
		return nil, fmt.Errorf("vault engine: strategy value query: %w", err)
	}
	if newValue == nil || newValue.Sign() < 0 {
		return nil, errStrategyValue
	}

	now := e.now()
	burnUnlocked(st, now)

	priorDebt := new(big.Int).Set(params.CurrentDebt)
	gain := big.NewInt(0)
	loss := big.NewInt(0)
	if newValue.Cmp(priorDebt) > 0 {
		gain = new(big.Int).Sub(newValue, priorDebt)
	} else {
		loss = new(big.Int).Sub(priorDebt, newValue)
	}

	totalFeeShares := big.NewInt(0)
	protocolFeeShares := big.NewInt(0)
	assetsBefore := totalAssets(st)

	if gain.Sign() > 0 {
		if e.feePolicy != nil {
			totalFeeShares, protocolFeeShares, err = e.feePolicy.Report(strategyAddr, gain, loss)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", errFeePolicy, err)
			}
			if totalFeeShares == nil {
				totalFeeShares = big.NewInt(0)
			}
			if protocolFeeShares == nil {
				protocolFeeShares = big.NewInt(0)
			}
			if totalFeeShares.Sign() < 0 || protocolFeeShares.Sign() < 0 || protocolFeeShares.Cmp(totalFeeShares) > 0 {
				return nil, errFeeSplit
			}
		}

		// Profit shares price at the pre-gain rate so the report itself
		// leaves the price per share untouched until unlock.
		gainShares := sharesForAssets(gain, assetsBefore, st.TotalSupply, false)
		if err := e.mintFeeShares(st, totalFeeShares, protocolFeeShares); err != nil {
			return nil, err
		}
		lockShares := new(big.Int).Sub(gainShares, totalFeeShares)
		if lockShares.Sign() > 0 && st.ProfitMaxUnlockTime > 0 {
			st.TotalSupply = new(big.Int).Add(st.TotalSupply, lockShares)
			registerProfit(st, lockShares, now)
		}
	}
	if loss.Sign() > 0 {
		lossShares := sharesForAssets(loss, assetsBefore, st.TotalSupply, false)
		registerLoss(st, lossShares)
	}

	delta := new(big.Int).Sub(newValue, priorDebt)
	st.TotalDebt = new(big.Int).Add(st.TotalDebt, delta)
	params.CurrentDebt = new(big.Int).Set(newValue)
	params.LastReport = now

	if err := e.state.PutStrategy(params); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(st); err != nil {
		return nil, err
	}

	result := &ReportResult{
		Strategy:          strategyAddr.Clone(),
		Gain:              gain,
		Loss:              loss,
		TotalFeeShares:    totalFeeShares,
		ProtocolFeeShares: protocolFeeShares,
	}
	e.emit(NewStrategyReportedEvent(caller, result, assetsBefore, totalAssets(st)))
	return result, nil
}

// mintFeeShares credits the accountant with the policy's reported fee shares,
// redirecting the protocol portion to the protocol fee recipient.
func (e *Engine) mintFeeShares(st *VaultState, totalFeeShares, protocolFeeShares *big.Int) error {
	if totalFeeShares.Sign() == 0 {
		return nil
	}
	accountantShares := new(big.Int).Sub(totalFeeShares, protocolFeeShares)
	if accountantShares.Sign() > 0 {
		if e.feeRecipient.IsZero() {
			return errFeeRecipient
		}
		bal, err := e.shareBalance(e.feeRecipient)
		if err != nil {
			return err
		}
		if err := e.state.PutShareBalance(e.feeRecipient, new(big.Int).Add(bal, accountantShares)); err != nil {
			return err
		}
	}
	if protocolFeeShares.Sign() > 0 {
		if e.protocolFeeRecipient.IsZero() {
			return errFeeRecipient
		}
		bal, err := e.shareBalance(e.protocolFeeRecipient)
		if err != nil {
			return err
		}
		if err := e.state.PutShareBalance(e.protocolFeeRecipient, new(big.Int).Add(bal, protocolFeeShares)); err != nil {
			return err
		}
	}
	st.TotalSupply = new(big.Int).Add(st.TotalSupply, totalFeeShares)
	return nil
}
