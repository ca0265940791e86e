// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package badge

import (
	"math/big"
)

// Pricing engine: pure integer arithmetic over the quadratic curve
//
//	unitPrice(i) = (i² + curveA) / curveB
//
// scaled by the pool's unit scale and coefficient ratio. All division
// happens exactly once per quote, with an explicit rounding direction:
// buys round the quotient up, sells round it down, so the pool and the fee
// recipients always absorb the fractional remainder, never the trader.

// Rounding selects the direction a truncating division resolves toward.
type Rounding uint8

const (
	RoundDown Rounding = iota
	RoundUp
)

var (
	big1   = big.NewInt(1)
	big2   = big.NewInt(2)
	big6   = big.NewInt(6)
	big100 = big.NewInt(100)
)

// sumSquares evaluates Σ i² for i in [1, n] via n(n+1)(2n+1)/6. The
// product of three consecutive-derived factors is always divisible by 6,
// so the division is exact.
func sumSquares(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		return new(big.Int)
	}
	s := new(big.Int).Add(n, big1)        // n+1
	t := new(big.Int).Mul(n, big2)        // 2n
	t.Add(t, big1)                        // 2n+1
	s.Mul(s, n)                           // n(n+1)
	s.Mul(s, t)                           // n(n+1)(2n+1)
	return s.Div(s, big6)
}

// PriceRange computes the exact integral Σ (i² + curveA) for [count]
// consecutive units starting at [fromSupply]+1, without iteration.
func PriceRange(curveA, fromSupply, count *big.Int) *big.Int {
	upper := new(big.Int).Add(fromSupply, count)
	integral := sumSquares(upper)
	integral.Sub(integral, sumSquares(fromSupply))
	integral.Add(integral, new(big.Int).Mul(count, curveA))
	return integral
}

// MulDiv computes x*y/den exactly, with the full-width intermediate
// product, resolving a non-integer quotient in the given direction.
func MulDiv(x, y, den *big.Int, rounding Rounding) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(x, y)
	quo, rem := new(big.Int).QuoRem(prod, den, new(big.Int))
	if rounding == RoundUp && rem.Sign() != 0 {
		quo.Add(quo, big1)
	}
	return quo, nil
}

// scaledQuote prices [count] units starting above [fromSupply] on [pool]:
// PriceRange × coefNum × unitScale / (curveB × coefDen), divided once with
// the caller's rounding.
func scaledQuote(pool *Pool, fromSupply, count *big.Int, rounding Rounding) (*big.Int, error) {
	integral := PriceRange(pool.CurveA, fromSupply, count)
	num := new(big.Int).Mul(pool.CoefNum, pool.UnitScale)
	den := new(big.Int).Mul(pool.CurveB, pool.CoefDen)
	return MulDiv(integral, num, den, rounding)
}

// ceilPercent computes ceil(gross × pct / 100).
func ceilPercent(gross *big.Int, pct uint64) *big.Int {
	if pct == 0 || gross.Sign() == 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(gross, new(big.Int).SetUint64(pct))
	quo, rem := fee.QuoRem(fee, big100, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big1)
	}
	return quo
}

// SplitFees computes the protocol and creator fee on [gross]. Each fee
// rounds up independently from the same gross, so their sum may exceed the
// combined percentage by up to two units in the market's favor.
func SplitFees(gross *big.Int, protocolPct, creatorPct uint64) (protocolFee, creatorFee *big.Int) {
	return ceilPercent(gross, protocolPct), ceilPercent(gross, creatorPct)
}

// QuoteBuy prices a purchase of [amount] units at the current [supply],
// rounding the gross price up, and splits the fees on top of it. The
// caller is responsible for the per-trade maximum.
func QuoteBuy(pool *Pool, supply, amount *big.Int, protocolPct, creatorPct uint64) (price, protocolFee, creatorFee *big.Int, err error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	price, err = scaledQuote(pool, supply, amount, RoundUp)
	if err != nil {
		return nil, nil, nil, err
	}
	protocolFee, creatorFee = SplitFees(price, protocolPct, creatorPct)
	return price, protocolFee, creatorFee, nil
}

// QuoteSell prices a sale of [amount] units back into the curve, rounding
// the gross proceeds down. Requires amount ≤ supply.
func QuoteSell(pool *Pool, supply, amount *big.Int, protocolPct, creatorPct uint64) (price, protocolFee, creatorFee *big.Int, err error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	if amount.Cmp(supply) > 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	from := new(big.Int).Sub(supply, amount)
	price, err = scaledQuote(pool, from, amount, RoundDown)
	if err != nil {
		return nil, nil, nil, err
	}
	protocolFee, creatorFee = SplitFees(price, protocolPct, creatorPct)
	return price, protocolFee, creatorFee, nil
}
