package vault

import "math/big"

// unlockedShares returns the locked share amount that has unlocked as of now.
// Past the full unlock date the entire locked balance is released; the result
// is never negative and never exceeds the locked balance.
func unlockedShares(st *VaultState, now uint64) *big.Int {
	if st == nil || st.LockedShares == nil || st.LockedShares.Sign() == 0 {
		return big.NewInt(0)
	}
	if st.FullProfitUnlockDate == 0 {
		return big.NewInt(0)
	}
	if now >= st.FullProfitUnlockDate {
		return new(big.Int).Set(st.LockedShares)
	}
	if st.ProfitUnlockingRate == nil || st.ProfitUnlockingRate.Sign() == 0 || now <= st.LastProfitUpdate {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(now - st.LastProfitUpdate)
	unlocked := new(big.Int).Mul(st.ProfitUnlockingRate, elapsed)
	unlocked.Quo(unlocked, unlockRatePrecision)
	return minBig(unlocked, st.LockedShares)
}

// burnUnlocked releases the shares that have unlocked since the last update,
// shrinking both the vault's own balance and the total supply. Every
// operation that reads or mutates supply-dependent state runs this first so
// the price per share always reflects the schedule at the supplied timestamp.
func burnUnlocked(st *VaultState, now uint64) *big.Int {
	unlocked := unlockedShares(st, now)
	if unlocked.Sign() > 0 {
		st.LockedShares = new(big.Int).Sub(st.LockedShares, unlocked)
		st.TotalSupply = new(big.Int).Sub(st.TotalSupply, unlocked)
	}
	if st.LockedShares.Sign() == 0 {
		st.ProfitUnlockingRate = big.NewInt(0)
		st.FullProfitUnlockDate = 0
	}
	if now > st.LastProfitUpdate {
		st.LastProfitUpdate = now
	}
	return unlocked
}

// registerProfit locks newly minted profit shares and restarts the linear
// unlock over the configured horizon. Any shares still locked from earlier
// reports are folded into the recomputed rate. Callers mint newShares into
// TotalSupply themselves; this only maintains the schedule.
func registerProfit(st *VaultState, newShares *big.Int, now uint64) {
	if newShares == nil || newShares.Sign() <= 0 {
		return
	}
	if st.ProfitMaxUnlockTime == 0 {
		return
	}
	st.LockedShares = new(big.Int).Add(st.LockedShares, newShares)
	rate := new(big.Int).Mul(st.LockedShares, unlockRatePrecision)
	rate.Quo(rate, new(big.Int).SetUint64(st.ProfitMaxUnlockTime))
	st.ProfitUnlockingRate = rate
	st.FullProfitUnlockDate = now + st.ProfitMaxUnlockTime
	st.LastProfitUpdate = now
}

// registerLoss burns locked profit shares to absorb a realized loss before it
// reaches holder balances. The burned share amount is returned; any residual
// loss falls through to the price per share via the debt reduction the caller
// applies.
func registerLoss(st *VaultState, lossShares *big.Int) *big.Int {
	if lossShares == nil || lossShares.Sign() <= 0 {
		return big.NewInt(0)
	}
	if st.LockedShares == nil || st.LockedShares.Sign() == 0 {
		return big.NewInt(0)
	}
	burned := minBig(new(big.Int).Set(lossShares), st.LockedShares)
	st.LockedShares = new(big.Int).Sub(st.LockedShares, burned)
	st.TotalSupply = new(big.Int).Sub(st.TotalSupply, burned)
	if st.LockedShares.Sign() == 0 {
		st.ProfitUnlockingRate = big.NewInt(0)
		st.FullProfitUnlockDate = 0
	}
	return burned
}
