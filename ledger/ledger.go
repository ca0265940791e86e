// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements the multi-token unit ledger behind the badge
// market: how many units of each pool a holder owns, plus the outstanding
// supply per pool. State lives in a key-value database (memdb in tests) so
// the ledger is the single source of truth for supply; the market never
// caches it.
package ledger

import (
	"encoding/binary"
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAmountTooLarge    = errors.New("amount exceeds 256 bits")
	ErrInsufficientUnits = errors.New("insufficient units to burn")
	ErrSupplyUnderflow   = errors.New("burn exceeds outstanding supply")
)

// Storage key prefixes
var (
	balancePrefix = []byte("badge/bal")
	supplyPrefix  = []byte("badge/sup")
)

// Ledger is a mint/burn unit ledger keyed by (pool id, holder).
type Ledger struct {
	mu sync.RWMutex
	db database.Database
}

// New returns a ledger persisting into [db].
func New(db database.Database) *Ledger {
	return &Ledger{db: db}
}

// balanceKey hashes prefix || poolID || holder into a fixed storage key.
func balanceKey(poolID uint64, holder common.Address) []byte {
	h := blake3.New()
	h.Write(balancePrefix)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], poolID)
	h.Write(id[:])
	h.Write(holder.Bytes())
	key := make([]byte, 32)
	h.Digest().Read(key)
	return key
}

func supplyKey(poolID uint64) []byte {
	h := blake3.New()
	h.Write(supplyPrefix)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], poolID)
	h.Write(id[:])
	key := make([]byte, 32)
	h.Digest().Read(key)
	return key
}

func (l *Ledger) read(key []byte) (*uint256.Int, error) {
	raw, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return uint256.NewInt(0), nil
		}
		return nil, err
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (l *Ledger) write(key []byte, value *uint256.Int) error {
	if value.IsZero() {
		return l.db.Delete(key)
	}
	b := value.Bytes32()
	return l.db.Put(key, b[:])
}

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountTooLarge
	}
	return v, nil
}

// BalanceOf returns how many units of pool [poolID] are held by [holder].
func (l *Ledger) BalanceOf(holder common.Address, poolID uint64) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal, err := l.read(balanceKey(poolID, holder))
	if err != nil {
		return nil, err
	}
	return bal.ToBig(), nil
}

// TotalSupply returns the outstanding units of pool [poolID].
func (l *Ledger) TotalSupply(poolID uint64) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	supply, err := l.read(supplyKey(poolID))
	if err != nil {
		return nil, err
	}
	return supply.ToBig(), nil
}

// Mint credits [amount] units of pool [poolID] to [holder] and grows the
// supply by the same amount.
func (l *Ledger) Mint(holder common.Address, poolID uint64, amount *big.Int) error {
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balKey := balanceKey(poolID, holder)
	bal, err := l.read(balKey)
	if err != nil {
		return err
	}
	newBal, overflow := new(uint256.Int).AddOverflow(bal, v)
	if overflow {
		return ErrAmountTooLarge
	}

	supKey := supplyKey(poolID)
	supply, err := l.read(supKey)
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, v)
	if overflow {
		return ErrAmountTooLarge
	}

	if err := l.write(balKey, newBal); err != nil {
		return err
	}
	return l.write(supKey, newSupply)
}

// Burn debits [amount] units of pool [poolID] from [holder] and shrinks the
// supply. Fails with ErrInsufficientUnits before touching any state.
func (l *Ledger) Burn(holder common.Address, poolID uint64, amount *big.Int) error {
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balKey := balanceKey(poolID, holder)
	bal, err := l.read(balKey)
	if err != nil {
		return err
	}
	if bal.Lt(v) {
		return ErrInsufficientUnits
	}

	supKey := supplyKey(poolID)
	supply, err := l.read(supKey)
	if err != nil {
		return err
	}
	if supply.Lt(v) {
		return ErrSupplyUnderflow
	}

	if err := l.write(balKey, new(uint256.Int).Sub(bal, v)); err != nil {
		return err
	}
	return l.write(supKey, new(uint256.Int).Sub(supply, v))
}
