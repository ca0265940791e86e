// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package badge

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

// PoolRegistry owns the set of pools and their lifecycle. Pool ids are
// allocated monotonically from 1 and never reused; a creator can hold at
// most one pool for the lifetime of the contract.
type PoolRegistry struct {
	mu sync.RWMutex

	pools     map[uint64]*Pool
	byCreator map[common.Address]uint64
	nextID    uint64

	// Append-only event journals, consumed by the history views.
	created []*PoolCreatedEvent
	bonuses []*BonusEvent
}

// NewPoolRegistry returns an empty registry.
func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{
		pools:     make(map[uint64]*Pool),
		byCreator: make(map[common.Address]uint64),
		nextID:    1,
		created:   make([]*PoolCreatedEvent, 0),
		bonuses:   make([]*BonusEvent, 0),
	}
}

// =========================================================================
// Lifecycle
// =========================================================================

// CreatePool allocates a pool for [creator]. Parameter validation against
// the gatekeeper happens in the market; the registry enforces only its own
// invariants: one pool per creator, positive curve constants, positive
// unit scale.
func (r *PoolRegistry) CreatePool(
	creator common.Address,
	paymentAsset common.Address,
	unitScale *big.Int,
	curveA, curveB *big.Int,
	revenueShare uint64,
	premintSettled bool,
) (*Pool, error) {
	if curveA == nil || curveA.Sign() <= 0 || curveB == nil || curveB.Sign() <= 0 {
		return nil, ErrInvalidCurveConstant
	}
	if unitScale == nil || unitScale.Sign() <= 0 {
		return nil, ErrUnsupportedAsset
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCreator[creator]; exists {
		return nil, ErrDuplicateCreator
	}

	pool := &Pool{
		ID:             r.nextID,
		Creator:        creator,
		PaymentAsset:   paymentAsset,
		UnitScale:      new(big.Int).Set(unitScale),
		Reserve:        new(big.Int),
		CurveA:         new(big.Int).Set(curveA),
		CurveB:         new(big.Int).Set(curveB),
		CoefNum:        big.NewInt(1),
		CoefDen:        big.NewInt(1),
		RevenueShare:   revenueShare,
		PremintSettled: premintSettled,
	}
	r.nextID++
	r.pools[pool.ID] = pool
	r.byCreator[creator] = pool.ID

	r.created = append(r.created, &PoolCreatedEvent{
		PoolID:       pool.ID,
		Creator:      creator,
		PaymentAsset: paymentAsset,
		CurveA:       new(big.Int).Set(curveA),
		CurveB:       new(big.Int).Set(curveB),
	})
	return pool, nil
}

// SettleBuy grows the pool reserve by the gross price of a settled buy.
func (r *PoolRegistry) SettleBuy(poolID uint64, price *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[poolID]
	if !ok {
		return ErrUnknownPool
	}
	pool.Reserve.Add(pool.Reserve, price)
	return nil
}

// SettleSell shrinks the pool reserve by the gross proceeds of a settled
// sell. The caller guarantees price ≤ reserve; the registry still refuses
// to drive the reserve negative.
func (r *PoolRegistry) SettleSell(poolID uint64, price *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[poolID]
	if !ok {
		return ErrUnknownPool
	}
	if pool.Reserve.Cmp(price) < 0 {
		return ErrInsufficientFunds
	}
	pool.Reserve.Sub(pool.Reserve, price)
	return nil
}

// InjectBonus rescales the pool's coefficient ratio by injecting [amount]
// into the reserve:
//
//	coefDen ← reserve, coefNum ← reserve + amount, reserve ← reserve + amount
//
// This is the only mutator of the coefficient pair. Rescaling a pool with
// an empty reserve is undefined and rejected.
func (r *PoolRegistry) InjectBonus(poolID uint64, funder common.Address, amount *big.Int) (*BonusEvent, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[poolID]
	if !ok {
		return nil, ErrUnknownPool
	}
	if pool.Reserve.Sign() == 0 {
		return nil, ErrEmptyReserve
	}

	pool.CoefDen = new(big.Int).Set(pool.Reserve)
	pool.CoefNum = new(big.Int).Add(pool.Reserve, amount)
	pool.Reserve.Add(pool.Reserve, amount)

	evt := &BonusEvent{
		PoolID:     poolID,
		Funder:     funder,
		Amount:     new(big.Int).Set(amount),
		NewReserve: new(big.Int).Set(pool.Reserve),
		CoefNum:    new(big.Int).Set(pool.CoefNum),
		CoefDen:    new(big.Int).Set(pool.CoefDen),
	}
	r.bonuses = append(r.bonuses, evt)
	return evt, nil
}

// RevertBonus restores the coefficient pair and reserve captured before a
// failed bonus injection and drops [evt], the exact journal entry that
// injection appended. The entry is matched by identity, not journal
// position, so bonuses landing on other pools in the meantime survive.
// Settlement uses it to keep rescales all-or-nothing when the funds
// transfer is rejected.
func (r *PoolRegistry) RevertBonus(poolID uint64, evt *BonusEvent, coefNum, coefDen, reserve *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[poolID]
	if !ok {
		return
	}
	pool.CoefNum = new(big.Int).Set(coefNum)
	pool.CoefDen = new(big.Int).Set(coefDen)
	pool.Reserve = new(big.Int).Set(reserve)
	for i := len(r.bonuses) - 1; i >= 0; i-- {
		if r.bonuses[i] == evt {
			r.bonuses = append(r.bonuses[:i], r.bonuses[i+1:]...)
			return
		}
	}
}

// MarkPremintSettled flips the premint flag, one way, false → true.
func (r *PoolRegistry) MarkPremintSettled(poolID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[poolID]
	if !ok {
		return ErrUnknownPool
	}
	pool.PremintSettled = true
	return nil
}

// UnmarkPremintSettled undoes a flip performed inside a trade whose
// external transfer later failed. Settlement-internal.
func (r *PoolRegistry) UnmarkPremintSettled(poolID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[poolID]; ok {
		pool.PremintSettled = false
	}
}

// SetRevenueShare overwrites the stored revenue-share metadata. The ceiling
// check happens in the market, against the live configuration.
func (r *PoolRegistry) SetRevenueShare(poolID uint64, pct uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[poolID]
	if !ok {
		return ErrUnknownPool
	}
	pool.RevenueShare = pct
	return nil
}

// =========================================================================
// View Functions
// =========================================================================

// GetPool returns the pool for [poolID], or nil.
func (r *PoolRegistry) GetPool(poolID uint64) *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools[poolID]
}

// PoolByCreator returns the pool owned by [creator], or nil.
func (r *PoolRegistry) PoolByCreator(creator common.Address) *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCreator[creator]
	if !ok {
		return nil
	}
	return r.pools[id]
}

// PoolCount returns how many pools exist.
func (r *PoolRegistry) PoolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// CreatedHistory returns the most recent pool-created events, newest last.
func (r *PoolRegistry) CreatedHistory(limit int) []*PoolCreatedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.created) {
		limit = len(r.created)
	}
	out := make([]*PoolCreatedEvent, limit)
	copy(out, r.created[len(r.created)-limit:])
	return out
}

// BonusHistory returns the most recent bonus events, newest last.
func (r *PoolRegistry) BonusHistory(limit int) []*BonusEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.bonuses) {
		limit = len(r.bonuses)
	}
	out := make([]*BonusEvent, limit)
	copy(out, r.bonuses[len(r.bonuses)-limit:])
	return out
}
