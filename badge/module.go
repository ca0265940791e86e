// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package badge

import (
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"

	"github.com/halowalletdev/halo-influencer-badge-contract/bank"
	"github.com/halowalletdev/halo-influencer-badge-contract/ledger"
	"github.com/halowalletdev/halo-influencer-badge-contract/modules"
	"github.com/halowalletdev/halo-influencer-badge-contract/oracle"
	"github.com/halowalletdev/halo-influencer-badge-contract/registry"
)

// ConfigKey is the key used in json config files to specify this contract's config.
const ConfigKey = "badgeMarketConfig"

// ContractAddress is the canonical address of the badge market.
var ContractAddress = common.HexToAddress(registry.BadgeMarketAddress)

// BadgeMarketInstance is the singleton market registered at
// ContractAddress. It boots on an in-memory ledger database and the
// default configuration; a host environment rebinds collaborators before
// serving traffic.
var BadgeMarketInstance = NewMarket(
	DefaultConfig(common.Address{}),
	ledger.New(memdb.New()),
	bank.New(common.HexToAddress(registry.BadgeMarketAddress)),
	oracle.NewTierOracle(),
	oracle.NewAssetMetadata(),
)

// Module is the badge market contract module
var Module = modules.Module{
	ConfigKey: ConfigKey,
	Address:   ContractAddress,
	Contract:  BadgeMarketInstance,
}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

// SetCollaborators rebinds the market's external collaborators. Intended
// for host wiring at startup, before any pool exists.
func (m *Market) SetCollaborators(l UnitLedger, b ValueTransfer, tiers TierOracle, meta AssetMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l != nil {
		m.ledger = l
	}
	if b != nil {
		m.bank = b
	}
	if tiers != nil {
		m.gate.tiers = tiers
	}
	if meta != nil {
		m.meta = meta
	}
}
