// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package badge

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Market is the settlement entry point: it validates a trade, prices it,
// mutates the registry and ledger, and only then moves value through the
// bank. Every operation is all-or-nothing; a rejected transfer rolls the
// internal mutations back before the error surfaces.
//
// Internal state is applied under the market lock; external transfers run
// after it is released, with the pool held in a settling set. Any call
// that reaches a settling pool (a reentrant callback, or a concurrent
// trade racing the transfer phase) is rejected with ErrReentrant, which
// keeps quote-and-settle atomic per pool.
type Market struct {
	mu sync.Mutex

	cfg      *Config
	gate     *GateKeeper
	registry *PoolRegistry

	ledger UnitLedger
	bank   ValueTransfer
	meta   AssetMetadata

	log log.Logger

	trades   []*TradeEvent
	settling map[uint64]bool
}

// NewMarket wires a market from its configuration and collaborators.
func NewMarket(cfg *Config, ledger UnitLedger, bank ValueTransfer, tiers TierOracle, meta AssetMetadata) *Market {
	return &Market{
		cfg:      cfg,
		gate:     NewGateKeeper(cfg, tiers),
		registry: NewPoolRegistry(),
		ledger:   ledger,
		bank:     bank,
		meta:     meta,
		log:      log.NewTestLogger(log.InfoLevel),
		trades:   make([]*TradeEvent, 0),
		settling: make(map[uint64]bool),
	}
}

// Gate returns the market's gatekeeper, for list management.
func (m *Market) Gate() *GateKeeper { return m.gate }

// Registry returns the market's pool registry, for views.
func (m *Market) Registry() *PoolRegistry { return m.registry }

// Config returns the live configuration.
func (m *Market) Config() *Config { return m.cfg }

// =========================================================================
// Pool creation
// =========================================================================

// CreatePool allocates a badge pool for [creator] trading in
// [paymentAsset]. The unit scale is captured from the asset metadata
// oracle here, once, and never re-read. A creator on the privileged list
// receives a pool that requires a preminter-executed first trade.
func (m *Market) CreatePool(
	creator common.Address,
	paymentAsset common.Address,
	curveA, curveB *big.Int,
	revenueShare uint64,
) (uint64, error) {
	if m.cfg.Paused {
		return 0, ErrPaused
	}
	if err := m.gate.CheckCreate(creator); err != nil {
		return 0, err
	}
	if !m.gate.IsAssetSupported(paymentAsset) {
		return 0, ErrUnsupportedAsset
	}
	if curveA == nil || curveA.Sign() <= 0 || !m.gate.IsCurveConstantAllowed(curveA, CurveConstantA) {
		return 0, ErrInvalidCurveConstant
	}
	if curveB == nil || curveB.Sign() <= 0 || !m.gate.IsCurveConstantAllowed(curveB, CurveConstantB) {
		return 0, ErrInvalidCurveConstant
	}
	if revenueShare > m.cfg.MaxRevenueSharePercent {
		return 0, ErrRevenueShareTooHigh
	}

	unitScale, err := m.meta.UnitScaleOf(paymentAsset)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedAsset, err)
	}

	premintSettled := !m.gate.IsPrivilegedCreator(creator)
	pool, err := m.registry.CreatePool(creator, paymentAsset, unitScale, curveA, curveB, revenueShare, premintSettled)
	if err != nil {
		return 0, err
	}

	m.log.Info("badge pool created",
		"pool", pool.ID,
		"creator", creator,
		"asset", paymentAsset,
		"premintSettled", premintSettled,
	)
	return pool.ID, nil
}

// =========================================================================
// Quotes (read-only)
// =========================================================================

// QuoteBuy prices a buy of [amount] units against the live supply.
// Readable while paused. Quotes hold the market lock so a concurrent
// settlement or bonus rescale cannot move the coefficient pair mid-read.
func (m *Market) QuoteBuy(poolID uint64, amount *big.Int) (price, protocolFee, creatorFee *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.registry.GetPool(poolID)
	if pool == nil {
		return nil, nil, nil, ErrUnknownPool
	}
	supply, err := m.ledger.TotalSupply(poolID)
	if err != nil {
		return nil, nil, nil, err
	}
	return QuoteBuy(pool, supply, amount, m.cfg.ProtocolFeePercent, m.cfg.CreatorFeePercent)
}

// QuoteSell prices a sell of [amount] units against the live supply.
func (m *Market) QuoteSell(poolID uint64, amount *big.Int) (price, protocolFee, creatorFee *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.registry.GetPool(poolID)
	if pool == nil {
		return nil, nil, nil, ErrUnknownPool
	}
	supply, err := m.ledger.TotalSupply(poolID)
	if err != nil {
		return nil, nil, nil, err
	}
	return QuoteSell(pool, supply, amount, m.cfg.ProtocolFeePercent, m.cfg.CreatorFeePercent)
}

// =========================================================================
// Buy
// =========================================================================

// Buy purchases [amount] units of pool [poolID] for [buyer]. [maxPay]
// bounds the total cost (price plus fees); nil means no bound. [value] is
// the native value attached to the call: the full payment budget for
// native pools (any excess over the total is refunded), and necessarily
// zero for token pools, whose payment is pulled through the bank instead.
func (m *Market) Buy(buyer common.Address, poolID uint64, amount, maxPay, value *big.Int) (*TradeEvent, error) {
	if value == nil {
		value = new(big.Int)
	}

	m.mu.Lock()

	pool, err := m.beginSettle(poolID, buyer, amount)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	native := pool.PaymentAsset == AssetNative
	if !native && value.Sign() != 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: native value attached to token-paying trade", ErrInvalidAmount)
	}

	supply, err := m.ledger.TotalSupply(poolID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	price, protocolFee, creatorFee, err := QuoteBuy(pool, supply, amount, m.cfg.ProtocolFeePercent, m.cfg.CreatorFeePercent)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	total := new(big.Int).Add(price, protocolFee)
	total.Add(total, creatorFee)

	if maxPay != nil && total.Cmp(maxPay) > 0 {
		m.mu.Unlock()
		return nil, ErrSlippageExceeded
	}
	if native && value.Cmp(total) < 0 {
		m.mu.Unlock()
		return nil, ErrInsufficientFunds
	}

	// Internal mutations, in order: premint flag, unit mint, reserve.
	flippedPremint := false
	if !pool.PremintSettled {
		if err := m.registry.MarkPremintSettled(poolID); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		flippedPremint = true
	}
	if err := m.ledger.Mint(buyer, poolID, amount); err != nil {
		if flippedPremint {
			m.registry.UnmarkPremintSettled(poolID)
		}
		m.mu.Unlock()
		return nil, err
	}
	if err := m.registry.SettleBuy(poolID, price); err != nil {
		m.ledger.Burn(buyer, poolID, amount)
		if flippedPremint {
			m.registry.UnmarkPremintSettled(poolID)
		}
		m.mu.Unlock()
		return nil, err
	}

	m.settling[poolID] = true
	creator := pool.Creator
	asset := pool.PaymentAsset
	m.mu.Unlock()

	// External phase: pull the payment in, push the fees out.
	extErr := m.collectBuyFunds(asset, buyer, creator, native, value, total, protocolFee, creatorFee)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settling, poolID)

	if extErr != nil {
		m.ledger.Burn(buyer, poolID, amount)
		m.registry.SettleSell(poolID, price)
		if flippedPremint {
			m.registry.UnmarkPremintSettled(poolID)
		}
		return nil, extErr
	}

	evt := &TradeEvent{
		PoolID:      poolID,
		Actor:       buyer,
		Direction:   DirectionBuy,
		Amount:      new(big.Int).Set(amount),
		Gross:       price,
		ProtocolFee: protocolFee,
		CreatorFee:  creatorFee,
		NewReserve:  new(big.Int).Set(m.registry.GetPool(poolID).Reserve),
	}
	m.trades = append(m.trades, evt)
	m.log.Info("badge purchased",
		"pool", poolID,
		"buyer", buyer,
		"amount", amount,
		"gross", price,
		"fees", new(big.Int).Add(protocolFee, creatorFee),
		"reserve", evt.NewReserve,
	)
	return evt, nil
}

// collectBuyFunds runs the outbound half of a buy. On any failure it
// returns whatever it already moved before reporting the error, so the
// caller can treat the whole phase as not-happened.
func (m *Market) collectBuyFunds(
	asset common.Address,
	buyer, creator common.Address,
	native bool,
	value, total, protocolFee, creatorFee *big.Int,
) error {
	collected := total
	if native {
		// Native pools collect the full attached value, then refund the
		// overpayment beyond price+fees.
		collected = value
	}
	if err := m.bank.Collect(asset, buyer, collected); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	if native {
		if refund := new(big.Int).Sub(value, total); refund.Sign() > 0 {
			if err := m.bank.PayOut(asset, buyer, refund); err != nil {
				m.bank.PayOut(asset, buyer, collected)
				return err
			}
		}
	}
	if err := m.payFees(asset, creator, protocolFee, creatorFee); err != nil {
		m.bank.PayOut(asset, buyer, total)
		return err
	}
	return nil
}

// =========================================================================
// Sell
// =========================================================================

// Sell burns [amount] units of pool [poolID] from [seller] and disburses
// the proceeds net of fees. [minReceive] bounds the net proceeds; nil
// means no bound. Units are burned before any value leaves the market, so
// a reentrant callback cannot sell the same units twice.
func (m *Market) Sell(seller common.Address, poolID uint64, amount, minReceive *big.Int) (*TradeEvent, error) {
	m.mu.Lock()

	pool, err := m.beginSettle(poolID, seller, amount)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	supply, err := m.ledger.TotalSupply(poolID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	price, protocolFee, creatorFee, err := QuoteSell(pool, supply, amount, m.cfg.ProtocolFeePercent, m.cfg.CreatorFeePercent)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	fees := new(big.Int).Add(protocolFee, creatorFee)
	if fees.Cmp(price) > 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: fees exceed gross proceeds", ErrInsufficientFunds)
	}
	net := new(big.Int).Sub(price, fees)
	if minReceive != nil && net.Cmp(minReceive) < 0 {
		m.mu.Unlock()
		return nil, ErrSlippageExceeded
	}

	// Burn before any outbound transfer.
	if err := m.ledger.Burn(seller, poolID, amount); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.registry.SettleSell(poolID, price); err != nil {
		m.ledger.Mint(seller, poolID, amount)
		m.mu.Unlock()
		return nil, err
	}

	m.settling[poolID] = true
	creator := pool.Creator
	asset := pool.PaymentAsset
	m.mu.Unlock()

	extErr := m.disburseSellProceeds(asset, seller, creator, net, protocolFee, creatorFee)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settling, poolID)

	if extErr != nil {
		m.ledger.Mint(seller, poolID, amount)
		m.registry.SettleBuy(poolID, price)
		return nil, extErr
	}

	evt := &TradeEvent{
		PoolID:      poolID,
		Actor:       seller,
		Direction:   DirectionSell,
		Amount:      new(big.Int).Set(amount),
		Gross:       price,
		ProtocolFee: protocolFee,
		CreatorFee:  creatorFee,
		NewReserve:  new(big.Int).Set(m.registry.GetPool(poolID).Reserve),
	}
	m.trades = append(m.trades, evt)
	m.log.Info("badge sold",
		"pool", poolID,
		"seller", seller,
		"amount", amount,
		"gross", price,
		"net", net,
		"reserve", evt.NewReserve,
	)
	return evt, nil
}

// disburseSellProceeds pays the seller and the fee recipients, returning
// already-moved value to the market on partial failure.
func (m *Market) disburseSellProceeds(
	asset common.Address,
	seller, creator common.Address,
	net, protocolFee, creatorFee *big.Int,
) error {
	if err := m.bank.PayOut(asset, seller, net); err != nil {
		return err
	}
	if err := m.payFees(asset, creator, protocolFee, creatorFee); err != nil {
		m.bank.Collect(asset, seller, net)
		return err
	}
	return nil
}

// payFees moves the protocol fee to the configured recipient and the
// creator fee to the pool creator.
func (m *Market) payFees(asset, creator common.Address, protocolFee, creatorFee *big.Int) error {
	if protocolFee.Sign() > 0 {
		if err := m.bank.PayOut(asset, m.cfg.FeeRecipient, protocolFee); err != nil {
			return err
		}
	}
	if creatorFee.Sign() > 0 {
		if err := m.bank.PayOut(asset, creator, creatorFee); err != nil {
			m.bank.Collect(asset, m.cfg.FeeRecipient, protocolFee)
			return err
		}
	}
	return nil
}

// beginSettle runs the checks shared by both trade directions. Must be
// called with the market lock held.
func (m *Market) beginSettle(poolID uint64, actor common.Address, amount *big.Int) (*Pool, error) {
	if m.cfg.Paused {
		return nil, ErrPaused
	}
	pool := m.registry.GetPool(poolID)
	if pool == nil {
		return nil, ErrUnknownPool
	}
	if m.settling[poolID] {
		return nil, ErrReentrant
	}
	// Amount validation comes before the premint gate: a zero or oversized
	// amount is invalid on every pool, settled or not.
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if m.cfg.PerTradeMax != nil && amount.Cmp(m.cfg.PerTradeMax) > 0 {
		return nil, fmt.Errorf("%w: amount above per-trade maximum", ErrInvalidAmount)
	}
	if !pool.PremintSettled && !m.gate.IsPreminter(actor) {
		return nil, ErrPremintRequired
	}
	if err := m.gate.CheckTrade(actor); err != nil {
		return nil, err
	}
	return pool, nil
}

// =========================================================================
// Bonus injection
// =========================================================================

// InjectBonus permanently rescales pool [poolID]'s curve by injecting
// [amount] of its payment asset. [value] follows the same native/token
// rules as Buy. The rescale compounds across repeated injections.
func (m *Market) InjectBonus(funder common.Address, poolID uint64, amount, value *big.Int) (*BonusEvent, error) {
	if value == nil {
		value = new(big.Int)
	}

	m.mu.Lock()

	if m.cfg.Paused {
		m.mu.Unlock()
		return nil, ErrPaused
	}
	pool := m.registry.GetPool(poolID)
	if pool == nil {
		m.mu.Unlock()
		return nil, ErrUnknownPool
	}
	if m.settling[poolID] {
		m.mu.Unlock()
		return nil, ErrReentrant
	}
	if !m.gate.IsBonusFunder(funder) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: funder not on bonus list", ErrUnauthorized)
	}
	if amount == nil || amount.Sign() <= 0 {
		m.mu.Unlock()
		return nil, ErrInvalidAmount
	}

	native := pool.PaymentAsset == AssetNative
	if !native && value.Sign() != 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: native value attached to token-paying bonus", ErrInvalidAmount)
	}
	if native && value.Cmp(amount) < 0 {
		m.mu.Unlock()
		return nil, ErrInsufficientFunds
	}

	prevNum := new(big.Int).Set(pool.CoefNum)
	prevDen := new(big.Int).Set(pool.CoefDen)
	prevReserve := new(big.Int).Set(pool.Reserve)

	evt, err := m.registry.InjectBonus(poolID, funder, amount)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	m.settling[poolID] = true
	asset := pool.PaymentAsset
	m.mu.Unlock()

	extErr := m.collectBonusFunds(asset, funder, native, value, amount)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settling, poolID)

	if extErr != nil {
		m.registry.RevertBonus(poolID, evt, prevNum, prevDen, prevReserve)
		return nil, extErr
	}

	m.log.Info("badge bonus injected",
		"pool", poolID,
		"funder", funder,
		"amount", amount,
		"coefNum", evt.CoefNum,
		"coefDen", evt.CoefDen,
		"reserve", evt.NewReserve,
	)
	return evt, nil
}

func (m *Market) collectBonusFunds(asset common.Address, funder common.Address, native bool, value, amount *big.Int) error {
	collected := amount
	if native {
		collected = value
	}
	if err := m.bank.Collect(asset, funder, collected); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	if native {
		if refund := new(big.Int).Sub(value, amount); refund.Sign() > 0 {
			if err := m.bank.PayOut(asset, funder, refund); err != nil {
				m.bank.PayOut(asset, funder, amount)
				return err
			}
		}
	}
	return nil
}

// =========================================================================
// Owner configuration surface
// =========================================================================

func (m *Market) requireOwner(caller common.Address) error {
	if caller != m.cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

// SetPaused flips the market-wide pause switch. Quotes stay readable.
func (m *Market) SetPaused(caller common.Address, paused bool) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Paused = paused
	return nil
}

// SetFeePercents updates both trade fee percentages.
func (m *Market) SetFeePercents(caller common.Address, protocolPct, creatorPct uint64) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if protocolPct > 100 || creatorPct > 100 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.ProtocolFeePercent = protocolPct
	m.cfg.CreatorFeePercent = creatorPct
	return nil
}

// SetFeeRecipient updates the protocol fee destination.
func (m *Market) SetFeeRecipient(caller, recipient common.Address) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.FeeRecipient = recipient
	return nil
}

// SetPerTradeMax updates the per-trade unit cap.
func (m *Market) SetPerTradeMax(caller common.Address, max *big.Int) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if max == nil || max.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.PerTradeMax = new(big.Int).Set(max)
	return nil
}

// SetRevenueShare adjusts a pool's stored revenue-share metadata within
// the configured ceiling.
func (m *Market) SetRevenueShare(caller common.Address, poolID uint64, pct uint64) error {
	if err := m.requireOwner(caller); err != nil {
		return err
	}
	if pct > m.cfg.MaxRevenueSharePercent {
		return ErrRevenueShareTooHigh
	}
	return m.registry.SetRevenueShare(poolID, pct)
}

// TradeHistory returns the most recent trade events, newest last.
func (m *Market) TradeHistory(limit int) []*TradeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.trades) {
		limit = len(m.trades)
	}
	out := make([]*TradeEvent, limit)
	copy(out, m.trades[len(m.trades)-limit:])
	return out
}
