// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bank implements the value-transfer collaborator of the badge
// market: per-asset account balances with collect (payer → market) and
// payout (market → recipient) moves. The native value asset lives at the
// zero address alongside fungible tokens, so settlement code treats both
// uniformly.
package bank

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAmountTooLarge    = errors.New("amount exceeds 256 bits")
)

// Bank tracks balances per (asset, holder). One holder is distinguished:
// the market contract address, which is the counterparty of every collect
// and payout.
type Bank struct {
	mu       sync.RWMutex
	market   common.Address
	accounts map[common.Address]map[common.Address]*uint256.Int
}

// New returns a bank whose collect/payout counterparty is [market].
func New(market common.Address) *Bank {
	return &Bank{
		market:   market,
		accounts: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (b *Bank) balance(asset, holder common.Address) *uint256.Int {
	holders, ok := b.accounts[asset]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		b.accounts[asset] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = uint256.NewInt(0)
		holders[holder] = bal
	}
	return bal
}

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountTooLarge
	}
	return v, nil
}

// Fund credits [holder] with [amount] of [asset] out of thin air. Test and
// genesis seeding only.
func (b *Bank) Fund(asset, holder common.Address, amount *big.Int) error {
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balance(asset, holder)
	sum, overflow := new(uint256.Int).AddOverflow(bal, v)
	if overflow {
		return ErrAmountTooLarge
	}
	bal.Set(sum)
	return nil
}

// Collect moves [amount] of [asset] from [payer] to the market account.
// Fails atomically with ErrInsufficientFunds if the payer cannot cover it.
func (b *Bank) Collect(asset, payer common.Address, amount *big.Int) error {
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	from := b.balance(asset, payer)
	if from.Lt(v) {
		return ErrInsufficientFunds
	}
	from.Sub(from, v)
	to := b.balance(asset, b.market)
	to.Add(to, v)
	return nil
}

// PayOut moves [amount] of [asset] from the market account to [recipient].
func (b *Bank) PayOut(asset, recipient common.Address, amount *big.Int) error {
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	from := b.balance(asset, b.market)
	if from.Lt(v) {
		return ErrInsufficientFunds
	}
	from.Sub(from, v)
	to := b.balance(asset, recipient)
	to.Add(to, v)
	return nil
}

// BalanceOf returns the current balance of (asset, holder).
func (b *Bank) BalanceOf(asset, holder common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	holders, ok := b.accounts[asset]
	if !ok {
		return new(big.Int)
	}
	bal, ok := holders[holder]
	if !ok {
		return new(big.Int)
	}
	return bal.ToBig()
}

// MarketBalance returns the market account balance for [asset].
func (b *Bank) MarketBalance(asset common.Address) *big.Int {
	return b.BalanceOf(asset, b.market)
}
