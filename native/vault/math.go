package vault

import "math/big"

// mulDiv computes a*b/denom with the full-precision product formed before the
// division. roundUp selects ceiling division; the default truncates. A nil or
// zero denominator yields zero rather than panicking, matching how callers
// treat empty vault state.
func mulDiv(a, b, denom *big.Int, roundUp bool) *big.Int {
	if a == nil || b == nil || denom == nil || denom.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, denom, new(big.Int))
	if roundUp && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// sharesForAssets converts an asset amount into shares at the current rate.
// An empty vault converts 1:1. A vault with outstanding shares but no assets
// cannot price a deposit and converts to zero.
func sharesForAssets(assets, totalAssets, totalSupply *big.Int, roundUp bool) *big.Int {
	if assets == nil {
		return big.NewInt(0)
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	if totalAssets == nil || totalAssets.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(assets, totalSupply, totalAssets, roundUp)
}

// assetsForShares is the inverse conversion. An empty vault converts 1:1 so
// the first mint prices identically to the first deposit.
func assetsForShares(shares, totalAssets, totalSupply *big.Int, roundUp bool) *big.Int {
	if shares == nil {
		return big.NewInt(0)
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	if totalAssets == nil {
		return big.NewInt(0)
	}
	return mulDiv(shares, totalAssets, totalSupply, roundUp)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
