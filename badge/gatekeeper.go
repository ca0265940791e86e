// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package badge

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

// GateKeeper holds the allow/deny lists and answers the eligibility
// questions the registry and settlement ask before any mutation. Every
// check is toggled independently through the config; a disabled check
// always passes. There is no coupling between predicates.
type GateKeeper struct {
	mu  sync.RWMutex
	cfg *Config

	// privilegedCreators doubles as the creation allow-list (when
	// enforced) and as the premint-required set: a pool created by a
	// member starts with PremintSettled == false regardless of whether
	// the allow-list gate is switched on.
	privilegedCreators map[common.Address]bool

	deniedTraders map[common.Address]bool
	assets        map[common.Address]bool
	curveAAllowed map[string]bool
	curveBAllowed map[string]bool
	preminters    map[common.Address]bool
	bonusFunders  map[common.Address]bool

	tiers TierOracle
}

// NewGateKeeper returns a gatekeeper consulting [cfg] and [tiers].
func NewGateKeeper(cfg *Config, tiers TierOracle) *GateKeeper {
	return &GateKeeper{
		cfg:                cfg,
		privilegedCreators: make(map[common.Address]bool),
		deniedTraders:      make(map[common.Address]bool),
		assets:             make(map[common.Address]bool),
		curveAAllowed:      make(map[string]bool),
		curveBAllowed:      make(map[string]bool),
		preminters:         make(map[common.Address]bool),
		bonusFunders:       make(map[common.Address]bool),
		tiers:              tiers,
	}
}

// =========================================================================
// Predicates
// =========================================================================

// CheckCreate authorizes [creator] to open a pool: allow-list membership
// when enforced, then minimum tier when enforced.
func (g *GateKeeper) CheckCreate(creator common.Address) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.cfg.EnforceCreatorAllowList && !g.privilegedCreators[creator] {
		return fmt.Errorf("%w: creator not on allow-list", ErrUnauthorized)
	}
	if g.cfg.EnforceTierOnCreate {
		if err := g.checkTier(creator, g.cfg.MinTierToCreate); err != nil {
			return err
		}
	}
	return nil
}

// CheckTrade authorizes [user] to trade: not on the deny-list, then
// minimum tier when enforced.
func (g *GateKeeper) CheckTrade(user common.Address) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.deniedTraders[user] {
		return fmt.Errorf("%w: trader on deny-list", ErrUnauthorized)
	}
	if g.cfg.EnforceTierOnTrade {
		if err := g.checkTier(user, g.cfg.MinTierToTrade); err != nil {
			return err
		}
	}
	return nil
}

// checkTier must run under the read lock.
func (g *GateKeeper) checkTier(user common.Address, minimum uint64) error {
	level, err := g.tiers.TierOf(user)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientTier, err)
	}
	if level < minimum {
		return fmt.Errorf("%w: tier %d < %d", ErrInsufficientTier, level, minimum)
	}
	return nil
}

// IsAssetSupported reports whether [asset] is an allowed payment asset.
// The native asset is always supported.
func (g *GateKeeper) IsAssetSupported(asset common.Address) bool {
	if asset == AssetNative {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.assets[asset]
}

// IsCurveConstantAllowed reports whether [value] passes the allow-list for
// the given constant. A disabled constraint always passes.
func (g *GateKeeper) IsCurveConstantAllowed(value *big.Int, which CurveConstant) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch which {
	case CurveConstantA:
		if !g.cfg.EnforceCurveAConstraint {
			return true
		}
		return g.curveAAllowed[value.String()]
	case CurveConstantB:
		if !g.cfg.EnforceCurveBConstraint {
			return true
		}
		return g.curveBAllowed[value.String()]
	}
	return false
}

// IsPrivilegedCreator reports membership on the privileged creator list,
// independent of whether creation is gated by it.
func (g *GateKeeper) IsPrivilegedCreator(creator common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.privilegedCreators[creator]
}

// IsPreminter reports whether [identity] may execute the premint trade of
// a privileged pool.
func (g *GateKeeper) IsPreminter(identity common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.preminters[identity]
}

// IsBonusFunder reports whether [identity] may inject bonus funds. Passes
// for everyone while the funder list is not enforced.
func (g *GateKeeper) IsBonusFunder(identity common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.cfg.EnforceBonusFunderList {
		return true
	}
	return g.bonusFunders[identity]
}

// =========================================================================
// Owner-gated list management
// =========================================================================

func (g *GateKeeper) requireOwner(caller common.Address) error {
	if caller != g.cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

// SetPrivilegedCreator adds or removes [creator] on the privileged list.
func (g *GateKeeper) SetPrivilegedCreator(caller, creator common.Address, allowed bool) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if allowed {
		g.privilegedCreators[creator] = true
	} else {
		delete(g.privilegedCreators, creator)
	}
	return nil
}

// SetTraderDenied adds or removes [user] on the trade deny-list.
func (g *GateKeeper) SetTraderDenied(caller, user common.Address, denied bool) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if denied {
		g.deniedTraders[user] = true
	} else {
		delete(g.deniedTraders, user)
	}
	return nil
}

// SetAssetSupported adds or removes [asset] on the payment-asset
// allow-list.
func (g *GateKeeper) SetAssetSupported(caller, asset common.Address, supported bool) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if supported {
		g.assets[asset] = true
	} else {
		delete(g.assets, asset)
	}
	return nil
}

// AllowCurveConstant adds [value] to the allow-list for the given curve
// constant. Values must be positive; curveB = 0 in particular is rejected
// here so no later pool can ever divide by it.
func (g *GateKeeper) AllowCurveConstant(caller common.Address, value *big.Int, which CurveConstant) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return ErrInvalidCurveConstant
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	switch which {
	case CurveConstantA:
		g.curveAAllowed[value.String()] = true
	case CurveConstantB:
		g.curveBAllowed[value.String()] = true
	default:
		return ErrInvalidCurveConstant
	}
	return nil
}

// RevokeCurveConstant removes [value] from an allow-list. Existing pools
// keep the constants they were created with.
func (g *GateKeeper) RevokeCurveConstant(caller common.Address, value *big.Int, which CurveConstant) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	switch which {
	case CurveConstantA:
		delete(g.curveAAllowed, value.String())
	case CurveConstantB:
		delete(g.curveBAllowed, value.String())
	}
	return nil
}

// SetPreminter adds or removes [identity] from the preminter set.
func (g *GateKeeper) SetPreminter(caller, identity common.Address, allowed bool) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if allowed {
		g.preminters[identity] = true
	} else {
		delete(g.preminters, identity)
	}
	return nil
}

// SetBonusFunder adds or removes [identity] from the bonus-funder set.
func (g *GateKeeper) SetBonusFunder(caller, identity common.Address, allowed bool) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if allowed {
		g.bonusFunders[identity] = true
	} else {
		delete(g.bonusFunders, identity)
	}
	return nil
}
