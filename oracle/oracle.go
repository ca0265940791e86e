// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle holds the external attestations the badge market consults:
// membership tier levels per user and the unit-scale metadata of payment
// assets. Both are plain in-memory registries behind the interfaces the
// market consumes.
package oracle

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

var (
	ErrNoProfile    = errors.New("no membership profile bound to user")
	ErrUnknownAsset = errors.New("asset has no registered metadata")
)

// TierOracle maps a user to an externally attested membership tier.
type TierOracle struct {
	mu    sync.RWMutex
	tiers map[common.Address]uint64
}

// NewTierOracle returns an oracle with no bound profiles.
func NewTierOracle() *TierOracle {
	return &TierOracle{
		tiers: make(map[common.Address]uint64),
	}
}

// SetTier binds or overwrites the tier level of [user].
func (o *TierOracle) SetTier(user common.Address, level uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tiers[user] = level
}

// ClearTier unbinds the profile of [user].
func (o *TierOracle) ClearTier(user common.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tiers, user)
}

// TierOf returns the tier level of [user], or ErrNoProfile if unbound.
func (o *TierOracle) TierOf(user common.Address) (uint64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	level, ok := o.tiers[user]
	if !ok {
		return 0, ErrNoProfile
	}
	return level, nil
}

// AssetMetadata records the smallest-unit scale factor of each payment
// asset (10^decimals). The market reads it exactly once per pool, at
// creation, so later metadata edits never affect existing pools.
type AssetMetadata struct {
	mu     sync.RWMutex
	scales map[common.Address]*big.Int
}

// NativeUnitScale is the scale of the native value asset (18 decimals).
var NativeUnitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// NewAssetMetadata returns a metadata registry pre-seeded with the native
// asset at the zero address.
func NewAssetMetadata() *AssetMetadata {
	m := &AssetMetadata{
		scales: make(map[common.Address]*big.Int),
	}
	m.scales[common.Address{}] = new(big.Int).Set(NativeUnitScale)
	return m
}

// SetUnitScale registers the smallest-unit scale factor for [asset].
func (m *AssetMetadata) SetUnitScale(asset common.Address, scale *big.Int) error {
	if scale == nil || scale.Sign() <= 0 {
		return ErrUnknownAsset
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scales[asset] = new(big.Int).Set(scale)
	return nil
}

// UnitScaleOf returns the scale factor captured for [asset].
func (m *AssetMetadata) UnitScaleOf(asset common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scale, ok := m.scales[asset]
	if !ok {
		return nil, ErrUnknownAsset
	}
	return new(big.Int).Set(scale), nil
}
