// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"github.com/luxfi/geth/common"
)

// ============================================================================
// BADGE CONTRACT ADDRESS SCHEME
// ============================================================================
//
// The badge market family uses high-byte, trailing-item 20-byte addresses:
//   Format: 0xFF00...00II
//
//   FF nibble-pair = family page:
//     0x0B → market core (pricing, registry, settlement, gatekeeper)
//     0x0C → collaborators (unit ledger, value transfer, oracles)
//
//   II = item within the family (8 bits).
//
// Example: the unit ledger is family 0x0C, item 0x00
//          Address = 0x0C00000000000000000000000000000000000000

const (
	// Market core (0x0B00-0x0BFF)
	BadgeMarketAddress = "0x0B00000000000000000000000000000000000000" // settlement entry point
	PoolRegistryAddr   = "0x0B00000000000000000000000000000000000001" // pool state views
	GateKeeperAddr     = "0x0B00000000000000000000000000000000000002" // config / allow-list surface

	// Collaborators (0x0C00-0x0CFF)
	UnitLedgerAddress    = "0x0C00000000000000000000000000000000000000" // multi-token unit ledger
	ValueBankAddress     = "0x0C00000000000000000000000000000000000001" // native/token value transfer
	TierOracleAddress    = "0x0C00000000000000000000000000000000000002" // membership tier oracle
	AssetMetadataAddress = "0x0C00000000000000000000000000000000000003" // payment-asset decimals
)

// ContractInfo describes one registered badge-family contract
type ContractInfo struct {
	Name    string
	Address common.Address
	Family  string
}

var contracts = []ContractInfo{
	{"BadgeMarket", common.HexToAddress(BadgeMarketAddress), "core"},
	{"PoolRegistry", common.HexToAddress(PoolRegistryAddr), "core"},
	{"GateKeeper", common.HexToAddress(GateKeeperAddr), "core"},
	{"UnitLedger", common.HexToAddress(UnitLedgerAddress), "collaborator"},
	{"ValueBank", common.HexToAddress(ValueBankAddress), "collaborator"},
	{"TierOracle", common.HexToAddress(TierOracleAddress), "collaborator"},
	{"AssetMetadata", common.HexToAddress(AssetMetadataAddress), "collaborator"},
}

// GetContractAddress returns the canonical address for a named contract,
// or the zero address if the name is unknown.
func GetContractAddress(name string) common.Address {
	for _, c := range contracts {
		if c.Name == name {
			return c.Address
		}
	}
	return common.Address{}
}

// GetContractsByFamily returns every contract in the given family,
// in declaration order.
func GetContractsByFamily(family string) []ContractInfo {
	var out []ContractInfo
	for _, c := range contracts {
		if c.Family == family {
			out = append(out, c)
		}
	}
	return out
}

// IsBadgeContract reports whether [addr] belongs to the badge family.
func IsBadgeContract(addr common.Address) bool {
	for _, c := range contracts {
		if c.Address == addr {
			return true
		}
	}
	return false
}
