// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package badge implements the influencer badge market: per-creator pools
// priced on a quadratic bonding curve whose coefficients can be permanently
// re-scaled by injected bonus funds. The package holds the pricing engine,
// the pool registry, trade settlement and the gatekeeper; unit custody and
// value movement are delegated to external collaborators.
package badge

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

// AssetNative is the sentinel payment asset for pools trading in the native
// value asset.
var AssetNative = common.Address{}

// TradeDirection tags a trade event as a buy or a sell.
type TradeDirection uint8

const (
	DirectionBuy TradeDirection = iota
	DirectionSell
)

func (d TradeDirection) String() string {
	if d == DirectionSell {
		return "sell"
	}
	return "buy"
}

// CurveConstant selects which curve constant an allow-list check targets.
type CurveConstant uint8

const (
	CurveConstantA CurveConstant = iota
	CurveConstantB
)

// Pool is one creator's badge market. The reserve and the coefficient pair
// are the only fields that change after creation; everything else is fixed
// at creation time.
type Pool struct {
	ID           uint64
	Creator      common.Address
	PaymentAsset common.Address

	// UnitScale is the smallest-unit scale factor of the payment asset,
	// captured once at creation so later decimal-metadata changes cannot
	// shift settlement amounts.
	UnitScale *big.Int

	// Reserve is the accumulated payment-asset balance. Grows on buys and
	// bonus injections, shrinks on sells, never negative.
	Reserve *big.Int

	// CurveA and CurveB shape the quadratic price curve. CurveB > 0 always.
	CurveA *big.Int
	CurveB *big.Int

	// CoefNum/CoefDen is the cumulative multiplicative rescale ratio.
	// Both start at 1 and are only ever overwritten together, by bonus
	// injection.
	CoefNum *big.Int
	CoefDen *big.Int

	// RevenueShare is stored metadata for downstream revenue distribution;
	// the pricing formula never reads it.
	RevenueShare uint64

	// PremintSettled is false only while a privileged creator's pool still
	// awaits its preminter-executed first trade.
	PremintSettled bool
}

// Collaborator interfaces. The market owns none of this state; it issues
// calls and trusts the collaborator to fail atomically.

// UnitLedger tracks how many units of each pool a holder owns. It is the
// single source of truth for outstanding supply.
type UnitLedger interface {
	BalanceOf(holder common.Address, poolID uint64) (*big.Int, error)
	TotalSupply(poolID uint64) (*big.Int, error)
	Mint(holder common.Address, poolID uint64, amount *big.Int) error
	Burn(holder common.Address, poolID uint64, amount *big.Int) error
}

// ValueTransfer moves payment-asset value between third parties and the
// market account.
type ValueTransfer interface {
	Collect(asset, payer common.Address, amount *big.Int) error
	PayOut(asset, recipient common.Address, amount *big.Int) error
}

// TierOracle attests a user's membership tier. May fail when no profile is
// bound.
type TierOracle interface {
	TierOf(user common.Address) (uint64, error)
}

// AssetMetadata resolves the smallest-unit scale of a payment asset.
// Consulted only at pool creation.
type AssetMetadata interface {
	UnitScaleOf(asset common.Address) (*big.Int, error)
}

// Config is the market-wide mutable configuration. It is owned by the
// market and handed by reference to the components that consult it, so a
// test can swap the whole struct.
type Config struct {
	Owner        common.Address
	FeeRecipient common.Address

	ProtocolFeePercent uint64
	CreatorFeePercent  uint64

	// MaxRevenueSharePercent caps Pool.RevenueShare at creation and on
	// later adjustment.
	MaxRevenueSharePercent uint64

	// PerTradeMax bounds the unit count of a single buy or sell.
	PerTradeMax *big.Int

	MinTierToCreate uint64
	MinTierToTrade  uint64

	// Independently toggleable gatekeeper checks.
	EnforceCreatorAllowList bool
	EnforceCurveAConstraint bool
	EnforceCurveBConstraint bool
	EnforceTierOnCreate     bool
	EnforceTierOnTrade      bool
	EnforceBonusFunderList  bool

	Paused bool
}

// DefaultConfig returns the configuration the market boots with: 5%/5%
// fees, trades capped at 100 units, every optional check disabled.
func DefaultConfig(owner common.Address) *Config {
	return &Config{
		Owner:                  owner,
		FeeRecipient:           owner,
		ProtocolFeePercent:     5,
		CreatorFeePercent:      5,
		MaxRevenueSharePercent: 100,
		PerTradeMax:            big.NewInt(100),
	}
}

// Event records. Each successful mutating operation appends exactly one.

// PoolCreatedEvent records a pool allocation.
type PoolCreatedEvent struct {
	PoolID       uint64
	Creator      common.Address
	PaymentAsset common.Address
	CurveA       *big.Int
	CurveB       *big.Int
}

// TradeEvent records a settled buy or sell.
type TradeEvent struct {
	PoolID      uint64
	Actor       common.Address
	Direction   TradeDirection
	Amount      *big.Int
	Gross       *big.Int
	ProtocolFee *big.Int
	CreatorFee  *big.Int
	NewReserve  *big.Int
}

// BonusEvent records a bonus injection and the resulting rescale.
type BonusEvent struct {
	PoolID     uint64
	Funder     common.Address
	Amount     *big.Int
	NewReserve *big.Int
	CoefNum    *big.Int
	CoefDen    *big.Int
}

// Errors
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInsufficientTier     = errors.New("membership tier below required minimum")
	ErrDuplicateCreator     = errors.New("creator already owns a pool")
	ErrInvalidCurveConstant = errors.New("invalid curve constant")
	ErrUnsupportedAsset     = errors.New("payment asset not supported")
	ErrRevenueShareTooHigh  = errors.New("revenue share exceeds ceiling")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrUnknownPool          = errors.New("unknown pool")
	ErrPremintRequired      = errors.New("premint required before public trading")
	ErrSlippageExceeded     = errors.New("slippage bound exceeded")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrEmptyReserve         = errors.New("bonus injection on empty reserve")
	ErrPaused               = errors.New("market is paused")
	ErrReentrant            = errors.New("pool settlement in progress")
	ErrDivisionByZero       = errors.New("division by zero")
)
