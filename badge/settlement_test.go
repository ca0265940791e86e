// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package badge

import (
	"math/big"
	"sync"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/halowalletdev/halo-influencer-badge-contract/bank"
	"github.com/halowalletdev/halo-influencer-badge-contract/ledger"
	"github.com/halowalletdev/halo-influencer-badge-contract/oracle"
	"github.com/halowalletdev/halo-influencer-badge-contract/registry"
)

var (
	envOwner   = common.HexToAddress("0xBBBB000000000000000000000000000000000001")
	envCreator = common.HexToAddress("0xBBBB000000000000000000000000000000000002")
	envBuyer   = common.HexToAddress("0xBBBB000000000000000000000000000000000003")
	envBuyer2  = common.HexToAddress("0xBBBB000000000000000000000000000000000004")
	envFunder  = common.HexToAddress("0xBBBB000000000000000000000000000000000005")
	envToken   = common.HexToAddress("0xBBBB0000000000000000000000000000000000EE")
)

type testEnv struct {
	market *Market
	bank   *bank.Bank
	ledger *ledger.Ledger
	tiers  *oracle.TierOracle
	meta   *oracle.AssetMetadata
}

func newTestMarket(t *testing.T) *testEnv {
	t.Helper()
	led := ledger.New(memdb.New())
	bk := bank.New(common.HexToAddress(registry.BadgeMarketAddress))
	tiers := oracle.NewTierOracle()
	meta := oracle.NewAssetMetadata()
	return &testEnv{
		market: NewMarket(DefaultConfig(envOwner), led, bk, tiers, meta),
		bank:   bk,
		ledger: led,
		tiers:  tiers,
		meta:   meta,
	}
}

// createNativePool opens the reference native pool for [creator].
func (e *testEnv) createNativePool(t *testing.T, creator common.Address) uint64 {
	t.Helper()
	id, err := e.market.CreatePool(creator, AssetNative, big.NewInt(210), big.NewInt(2100), 10)
	require.NoError(t, err)
	return id
}

func (e *testEnv) fund(t *testing.T, asset, holder common.Address, amount *big.Int) {
	t.Helper()
	require.NoError(t, e.bank.Fund(asset, holder, amount))
}

func oneEther() *big.Int {
	return bigInt("1000000000000000000")
}

func TestCreatePoolValidation(t *testing.T) {
	env := newTestMarket(t)

	// Unknown token asset: not allow-listed.
	_, err := env.market.CreatePool(envCreator, envToken, big.NewInt(210), big.NewInt(2100), 0)
	require.ErrorIs(t, err, ErrUnsupportedAsset)

	// Revenue share over the ceiling.
	env.market.Config().MaxRevenueSharePercent = 50
	_, err = env.market.CreatePool(envCreator, AssetNative, big.NewInt(210), big.NewInt(2100), 51)
	require.ErrorIs(t, err, ErrRevenueShareTooHigh)

	// Non-positive curve constants, even with the allow-list disabled.
	_, err = env.market.CreatePool(envCreator, AssetNative, new(big.Int), big.NewInt(2100), 0)
	require.ErrorIs(t, err, ErrInvalidCurveConstant)
	_, err = env.market.CreatePool(envCreator, AssetNative, big.NewInt(210), new(big.Int), 0)
	require.ErrorIs(t, err, ErrInvalidCurveConstant)

	// One pool per creator, forever.
	id := env.createNativePool(t, envCreator)
	require.Equal(t, uint64(1), id)
	_, err = env.market.CreatePool(envCreator, AssetNative, big.NewInt(210), big.NewInt(2100), 0)
	require.ErrorIs(t, err, ErrDuplicateCreator)
}

func TestBuyNativeHappyPath(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())

	price, protocolFee, creatorFee, err := env.market.QuoteBuy(id, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, bigInt("100476190476190477"), price)

	total := new(big.Int).Add(price, protocolFee)
	total.Add(total, creatorFee)

	evt, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, total)
	require.NoError(t, err)
	require.Equal(t, DirectionBuy, evt.Direction)
	require.Equal(t, price, evt.Gross)

	bal, err := env.ledger.BalanceOf(envBuyer, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), bal)

	supply, err := env.ledger.TotalSupply(id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), supply)

	pool := env.market.Registry().GetPool(id)
	require.Equal(t, price, pool.Reserve)

	// The reserve sits in the market account; fees went straight out.
	require.Equal(t, price, env.bank.MarketBalance(AssetNative))
	require.Equal(t, protocolFee, env.bank.BalanceOf(AssetNative, envOwner))
	require.Equal(t, creatorFee, env.bank.BalanceOf(AssetNative, envCreator))

	spent := new(big.Int).Sub(oneEther(), env.bank.BalanceOf(AssetNative, envBuyer))
	require.Equal(t, total, spent)

	history := env.market.TradeHistory(0)
	require.Len(t, history, 1)
	require.Equal(t, evt, history[0])
}

func TestBuyRefundsOverpayment(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())

	price, protocolFee, creatorFee, err := env.market.QuoteBuy(id, big.NewInt(1))
	require.NoError(t, err)
	total := new(big.Int).Add(price, protocolFee)
	total.Add(total, creatorFee)

	over := new(big.Int).Add(total, big.NewInt(12345))
	_, err = env.market.Buy(envBuyer, id, big.NewInt(1), nil, over)
	require.NoError(t, err)

	// Only price+fees left the buyer; the 12345 came back.
	spent := new(big.Int).Sub(oneEther(), env.bank.BalanceOf(AssetNative, envBuyer))
	require.Equal(t, total, spent)
}

func TestBuyRejections(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())

	_, err := env.market.Buy(envBuyer, 999, big.NewInt(1), nil, oneEther())
	require.ErrorIs(t, err, ErrUnknownPool)

	_, err = env.market.Buy(envBuyer, id, new(big.Int), nil, oneEther())
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = env.market.Buy(envBuyer, id, nil, nil, oneEther())
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Over the per-trade maximum.
	_, err = env.market.Buy(envBuyer, id, big.NewInt(101), nil, oneEther())
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Slippage bound tighter than the quote.
	_, err = env.market.Buy(envBuyer, id, big.NewInt(1), big.NewInt(1), oneEther())
	require.ErrorIs(t, err, ErrSlippageExceeded)

	// Attached value below price+fees.
	_, err = env.market.Buy(envBuyer, id, big.NewInt(1), nil, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing settled along the way.
	supply, err := env.ledger.TotalSupply(id)
	require.NoError(t, err)
	require.Zero(t, supply.Sign())
}

func TestTokenPool(t *testing.T) {
	env := newTestMarket(t)
	require.NoError(t, env.market.Gate().SetAssetSupported(envOwner, envToken, true))
	require.NoError(t, env.meta.SetUnitScale(envToken, big.NewInt(1000000)))

	id, err := env.market.CreatePool(envCreator, envToken, big.NewInt(210), big.NewInt(2100), 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000000), env.market.Registry().GetPool(id).UnitScale)

	// Attaching native value to a token-paying trade is rejected.
	_, err = env.market.Buy(envBuyer, id, big.NewInt(1), nil, big.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidAmount)

	// First unit at 6 decimals: ceil(211e6/2100) plus 5%+5% fees.
	env.fund(t, envToken, envBuyer, big.NewInt(1000000))
	evt, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, nil)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100477), evt.Gross)
	require.Equal(t, big.NewInt(5024), evt.ProtocolFee)
	require.Equal(t, big.NewInt(5024), evt.CreatorFee)

	require.Equal(t, big.NewInt(100477), env.bank.MarketBalance(envToken))
	require.Equal(t, big.NewInt(1000000-110525), env.bank.BalanceOf(envToken, envBuyer))
}

func TestTokenBuyRollsBackOnFailedCollect(t *testing.T) {
	env := newTestMarket(t)
	require.NoError(t, env.market.Gate().SetAssetSupported(envOwner, envToken, true))
	require.NoError(t, env.meta.SetUnitScale(envToken, big.NewInt(1000000)))
	id, err := env.market.CreatePool(envCreator, envToken, big.NewInt(210), big.NewInt(2100), 0)
	require.NoError(t, err)

	// Penniless buyer: the collect is rejected after the internal
	// mutations, which must all unwind.
	_, err = env.market.Buy(envBuyer2, id, big.NewInt(1), nil, nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	supply, err := env.ledger.TotalSupply(id)
	require.NoError(t, err)
	require.Zero(t, supply.Sign())
	require.Zero(t, env.market.Registry().GetPool(id).Reserve.Sign())
	require.Empty(t, env.market.TradeHistory(0))
}

func TestPremintFlow(t *testing.T) {
	env := newTestMarket(t)
	preminter := common.HexToAddress("0xBBBB0000000000000000000000000000000000AA")
	require.NoError(t, env.market.Gate().SetPrivilegedCreator(envOwner, envCreator, true))
	require.NoError(t, env.market.Gate().SetPreminter(envOwner, preminter, true))

	id := env.createNativePool(t, envCreator)
	pool := env.market.Registry().GetPool(id)
	require.False(t, pool.PremintSettled)

	// Public trading is closed until the premint.
	env.fund(t, AssetNative, envBuyer, oneEther())
	_, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.ErrorIs(t, err, ErrPremintRequired)
	_, err = env.market.Sell(envBuyer, id, big.NewInt(1), nil)
	require.ErrorIs(t, err, ErrPremintRequired)

	// A zero amount is invalid on every pool, settled or not.
	_, err = env.market.Buy(envBuyer, id, new(big.Int), nil, oneEther())
	require.ErrorIs(t, err, ErrInvalidAmount)

	env.fund(t, AssetNative, preminter, oneEther())
	_, err = env.market.Buy(preminter, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)
	require.True(t, pool.PremintSettled)

	// Now the public can trade.
	_, err = env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)
}

func TestSellAfterFiveBuys(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())

	contributed := new(big.Int)
	for i := 0; i < 5; i++ {
		evt, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
		require.NoError(t, err)
		contributed.Add(contributed, evt.Gross)
		env.fund(t, AssetNative, envBuyer, oneEther())
	}
	pool := env.market.Registry().GetPool(id)
	require.Equal(t, contributed, pool.Reserve)

	evt, err := env.market.Sell(envBuyer, id, big.NewInt(5), nil)
	require.NoError(t, err)
	require.Equal(t, DirectionSell, evt.Direction)

	// The sell never recovers more than the buys contributed; the
	// rounding slack stays in the pool.
	require.True(t, evt.Gross.Cmp(contributed) <= 0)
	slack := new(big.Int).Sub(contributed, evt.Gross)
	require.Equal(t, slack, pool.Reserve)
	require.True(t, slack.Cmp(big.NewInt(5)) < 0)

	bal, err := env.ledger.BalanceOf(envBuyer, id)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestSellRejections(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())
	env.fund(t, AssetNative, envBuyer2, oneEther())

	_, err := env.market.Buy(envBuyer, id, big.NewInt(2), nil, oneEther())
	require.NoError(t, err)
	_, err = env.market.Buy(envBuyer2, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)

	// More than the whole supply.
	_, err = env.market.Sell(envBuyer, id, big.NewInt(4), nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Within the supply but more than the seller owns: the burn refuses.
	_, err = env.market.Sell(envBuyer2, id, big.NewInt(2), nil)
	require.ErrorIs(t, err, ledger.ErrInsufficientUnits)

	// Proceeds below the slippage floor.
	_, err = env.market.Sell(envBuyer, id, big.NewInt(1), oneEther())
	require.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestBonusInjection(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)

	// No rescale on an empty reserve.
	env.fund(t, AssetNative, envFunder, oneEther())
	_, err := env.market.InjectBonus(envFunder, id, big.NewInt(100), big.NewInt(100))
	require.ErrorIs(t, err, ErrEmptyReserve)

	env.fund(t, AssetNative, envBuyer, oneEther())
	buyEvt, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)

	reserve := new(big.Int).Set(buyEvt.NewReserve)
	baseQuote, _, _, err := env.market.QuoteBuy(id, big.NewInt(1))
	require.NoError(t, err)

	bonus := big.NewInt(1000)
	evt, err := env.market.InjectBonus(envFunder, id, bonus, bonus)
	require.NoError(t, err)

	pool := env.market.Registry().GetPool(id)
	require.Equal(t, reserve, pool.CoefDen)
	require.Equal(t, new(big.Int).Add(reserve, bonus), pool.CoefNum)
	require.Equal(t, new(big.Int).Add(reserve, bonus), pool.Reserve)
	require.Equal(t, pool.Reserve, evt.NewReserve)

	// The next quote is the base quote scaled by (R+X)/R, up to rounding.
	scaledQuote, _, _, err := env.market.QuoteBuy(id, big.NewInt(1))
	require.NoError(t, err)
	lower, err := MulDiv(baseQuote, pool.CoefNum, pool.CoefDen, RoundDown)
	require.NoError(t, err)
	upper, err := MulDiv(baseQuote, pool.CoefNum, pool.CoefDen, RoundUp)
	require.NoError(t, err)
	upper.Add(upper, big.NewInt(1))
	require.True(t, scaledQuote.Cmp(lower) >= 0 && scaledQuote.Cmp(upper) <= 0,
		"scaled quote %v outside [%v, %v]", scaledQuote, lower, upper)
}

func TestBonusRollsBackOnFailedCollect(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())
	_, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)

	pool := env.market.Registry().GetPool(id)
	reserveBefore := new(big.Int).Set(pool.Reserve)

	// Token bonus rule mirror: value attached but funder broke.
	broke := common.HexToAddress("0xBBBB0000000000000000000000000000000000CC")
	_, err = env.market.InjectBonus(broke, id, big.NewInt(500), big.NewInt(500))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.Equal(t, big.NewInt(1), pool.CoefNum)
	require.Equal(t, big.NewInt(1), pool.CoefDen)
	require.Equal(t, reserveBefore, pool.Reserve)
	require.Empty(t, env.market.Registry().BonusHistory(0))
}

func TestQuoteDuringConcurrentBonuses(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())
	_, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)
	env.fund(t, AssetNative, envFunder, oneEther())

	// Quotes run against the live coefficient pair while injections
	// rewrite it. Run under -race.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _, _, qErr := env.market.QuoteBuy(id, big.NewInt(1))
			if qErr != nil {
				return
			}
			_, _, _, qErr = env.market.QuoteSell(id, big.NewInt(1))
			if qErr != nil {
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		_, err := env.market.InjectBonus(envFunder, id, big.NewInt(1), big.NewInt(1))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	price, _, _, err := env.market.QuoteBuy(id, big.NewInt(1))
	require.NoError(t, err)
	require.Positive(t, price.Sign())
}

func TestBonusFunderGate(t *testing.T) {
	env := newTestMarket(t)
	env.market.Config().EnforceBonusFunderList = true
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())
	_, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)

	env.fund(t, AssetNative, envFunder, oneEther())
	_, err = env.market.InjectBonus(envFunder, id, big.NewInt(100), big.NewInt(100))
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, env.market.Gate().SetBonusFunder(envOwner, envFunder, true))
	_, err = env.market.InjectBonus(envFunder, id, big.NewInt(100), big.NewInt(100))
	require.NoError(t, err)
}

func TestTierGateOnTrade(t *testing.T) {
	env := newTestMarket(t)
	env.market.Config().EnforceTierOnTrade = true
	env.market.Config().MinTierToTrade = 2
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())

	_, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.ErrorIs(t, err, ErrInsufficientTier)

	env.tiers.SetTier(envBuyer, 2)
	_, err = env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)
}

func TestPause(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())

	require.ErrorIs(t, env.market.SetPaused(envBuyer, true), ErrUnauthorized)
	require.NoError(t, env.market.SetPaused(envOwner, true))

	_, err := env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.ErrorIs(t, err, ErrPaused)
	_, err = env.market.Sell(envBuyer, id, big.NewInt(1), nil)
	require.ErrorIs(t, err, ErrPaused)
	_, err = env.market.InjectBonus(envFunder, id, big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrPaused)
	_, err = env.market.CreatePool(envBuyer, AssetNative, big.NewInt(210), big.NewInt(2100), 0)
	require.ErrorIs(t, err, ErrPaused)

	// Quotes stay readable while paused.
	_, _, _, err = env.market.QuoteBuy(id, big.NewInt(1))
	require.NoError(t, err)

	require.NoError(t, env.market.SetPaused(envOwner, false))
	_, err = env.market.Buy(envBuyer, id, big.NewInt(1), nil, oneEther())
	require.NoError(t, err)
}

// reentrantBank re-enters the market mid-payout, the way a malicious
// native-payment hook would.
type reentrantBank struct {
	*bank.Bank
	market    *Market
	poolID    uint64
	seller    common.Address
	triggered bool
	innerErr  error
}

func (b *reentrantBank) PayOut(asset, recipient common.Address, amount *big.Int) error {
	if !b.triggered && recipient == b.seller {
		b.triggered = true
		_, b.innerErr = b.market.Sell(b.seller, b.poolID, big.NewInt(1), nil)
	}
	return b.Bank.PayOut(asset, recipient, amount)
}

func TestSellReentrancyRejected(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)
	env.fund(t, AssetNative, envBuyer, oneEther())
	_, err := env.market.Buy(envBuyer, id, big.NewInt(2), nil, oneEther())
	require.NoError(t, err)

	rb := &reentrantBank{Bank: env.bank, market: env.market, poolID: id, seller: envBuyer}
	env.market.SetCollaborators(nil, rb, nil, nil)

	_, err = env.market.Sell(envBuyer, id, big.NewInt(1), nil)
	require.NoError(t, err)

	// The nested sell hit the settling guard, not the ledger.
	require.True(t, rb.triggered)
	require.ErrorIs(t, rb.innerErr, ErrReentrant)

	bal, err := env.ledger.BalanceOf(envBuyer, id)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), bal)
}

func TestOwnerConfigSurface(t *testing.T) {
	env := newTestMarket(t)
	id := env.createNativePool(t, envCreator)

	require.ErrorIs(t, env.market.SetFeePercents(envBuyer, 1, 1), ErrUnauthorized)
	require.ErrorIs(t, env.market.SetFeePercents(envOwner, 101, 1), ErrInvalidAmount)
	require.NoError(t, env.market.SetFeePercents(envOwner, 3, 7))
	require.Equal(t, uint64(3), env.market.Config().ProtocolFeePercent)
	require.Equal(t, uint64(7), env.market.Config().CreatorFeePercent)

	require.ErrorIs(t, env.market.SetPerTradeMax(envOwner, new(big.Int)), ErrInvalidAmount)
	require.NoError(t, env.market.SetPerTradeMax(envOwner, big.NewInt(5)))

	require.ErrorIs(t, env.market.SetRevenueShare(envOwner, id, 101), ErrRevenueShareTooHigh)
	require.NoError(t, env.market.SetRevenueShare(envOwner, id, 25))
	require.Equal(t, uint64(25), env.market.Registry().GetPool(id).RevenueShare)

	other := common.HexToAddress("0xBBBB0000000000000000000000000000000000DD")
	require.NoError(t, env.market.SetFeeRecipient(envOwner, other))
	require.Equal(t, other, env.market.Config().FeeRecipient)
}
