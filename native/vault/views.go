package vault

import (
	"math/big"

	"vaultcore/crypto"
)

// netSupply returns the share supply with pending unlocked profit shares
// stripped, without mutating stored state. Views price against this so
// read-only queries agree with the next mutating operation.
func (e *Engine) netSupply(st *VaultState, now uint64) *big.Int {
	return new(big.Int).Sub(st.TotalSupply, unlockedShares(st, now))
}

// TotalAssets returns idle plus allocated assets.
func (e *Engine) TotalAssets() (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	return totalAssets(st), nil
}

// TotalIdle returns the uncommitted asset balance.
func (e *Engine) TotalIdle() (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(st.TotalIdle), nil
}

// TotalDebt returns the asset amount allocated across strategies.
func (e *Engine) TotalDebt() (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(st.TotalDebt), nil
}

// TotalSupply returns the outstanding share count net of profit shares that
// have unlocked but not yet been burned.
func (e *Engine) TotalSupply() (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	return e.netSupply(st, e.now()), nil
}

// LockedShares returns the vault-owned shares still locked on the unlock
// schedule.
func (e *Engine) LockedShares() (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	locked := new(big.Int).Sub(st.LockedShares, unlockedShares(st, e.now()))
	if locked.Sign() < 0 {
		locked = big.NewInt(0)
	}
	return locked, nil
}

// PricePerShare returns the asset value of one whole share, scaled to the
// asset's decimals. An empty vault prices at exactly one.
func (e *Engine) PricePerShare() (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(st.Decimals)), nil)
	supply := e.netSupply(st, e.now())
	if supply.Sign() == 0 {
		return unit, nil
	}
	return mulDiv(totalAssets(st), unit, supply, false), nil
}

// BalanceOf returns the holder's share balance.
func (e *Engine) BalanceOf(holder crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.shareBalance(holder)
}

// ConvertToShares prices an asset amount in shares at the current rate,
// rounding down.
func (e *Engine) ConvertToShares(assets *big.Int) (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	return sharesForAssets(assets, totalAssets(st), e.netSupply(st, e.now()), false), nil
}

// ConvertToAssets prices a share amount in assets at the current rate,
// rounding down.
func (e *Engine) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	return assetsForShares(shares, totalAssets(st), e.netSupply(st, e.now()), false), nil
}

// StrategyParamsFor returns a copy of the ledger record for the strategy, or
// errStrategyNotActive when it is not registered.
func (e *Engine) StrategyParamsFor(strategyAddr crypto.Address) (*StrategyParams, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	params, err := e.state.GetStrategy(strategyAddr)
	if err != nil {
		return nil, err
	}
	if params == nil || params.Activation == 0 {
		return nil, errStrategyNotActive
	}
	copied := &StrategyParams{
		Address:     params.Address.Clone(),
		Activation:  params.Activation,
		LastReport:  params.LastReport,
		CurrentDebt: big.NewInt(0),
		MaxDebt:     big.NewInt(0),
	}
	if params.CurrentDebt != nil {
		copied.CurrentDebt = new(big.Int).Set(params.CurrentDebt)
	}
	if params.MaxDebt != nil {
		copied.MaxDebt = new(big.Int).Set(params.MaxDebt)
	}
	return copied, nil
}

// DefaultQueue returns a copy of the ordered withdrawal queue.
func (e *Engine) DefaultQueue() ([]crypto.Address, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	queue := make([]crypto.Address, 0, len(st.DefaultQueue))
	for _, addr := range st.DefaultQueue {
		queue = append(queue, addr.Clone())
	}
	return queue, nil
}

// MaxDeposit returns the asset amount the receiver could deposit right now.
// A nil result with no error means deposits are uncapped.
func (e *Engine) MaxDeposit(receiver crypto.Address) (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	if st.Shutdown {
		return big.NewInt(0), nil
	}
	if e.limitModule != nil {
		available, err := e.limitModule.AvailableDepositLimit(receiver)
		if err != nil {
			return nil, err
		}
		if available == nil {
			return big.NewInt(0), nil
		}
		return new(big.Int).Set(available), nil
	}
	if st.DepositLimit == nil {
		return nil, nil
	}
	room := new(big.Int).Sub(st.DepositLimit, totalAssets(st))
	if room.Sign() < 0 {
		room = big.NewInt(0)
	}
	return room, nil
}

// MaxWithdraw returns the asset amount the owner could withdraw through the
// default queue, bounded by their share balance and sourceable liquidity.
func (e *Engine) MaxWithdraw(owner crypto.Address) (*big.Int, error) {
	st, err := e.ensureVault()
	if err != nil {
		return nil, err
	}
	bal, err := e.shareBalance(owner)
	if err != nil {
		return nil, err
	}
	entitled := assetsForShares(bal, totalAssets(st), e.netSupply(st, e.now()), false)
	sourceable := new(big.Int).Set(st.TotalIdle)
	for _, addr := range st.DefaultQueue {
		params, err := e.state.GetStrategy(addr)
		if err != nil {
			return nil, err
		}
		if params == nil || params.CurrentDebt == nil {
			continue
		}
		sourceable = new(big.Int).Add(sourceable, params.CurrentDebt)
	}
	return minBig(entitled, sourceable), nil
}

// MaxRedeem returns the share amount the owner could redeem right now.
func (e *Engine) MaxRedeem(owner crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.shareBalance(owner)
}

// IsShutdown reports whether the vault has been shut down.
func (e *Engine) IsShutdown() (bool, error) {
	st, err := e.ensureVault()
	if err != nil {
		return false, err
	}
	return st.Shutdown, nil
}
