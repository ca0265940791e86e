// Copyright (C) 2025, Halo Wallet Ltd. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"
)

// Contract is the surface every registered badge-family contract exposes.
// The registry does not call into contracts; it only hands them out to the
// host environment, so the contract itself is opaque here.
type Contract interface{}

// Module pairs a contract instance with its canonical address and the key
// used to locate its configuration in JSON config files.
type Module struct {
	ConfigKey string
	Address   common.Address
	Contract  Contract
}

type moduleArray []Module

func (m moduleArray) Len() int      { return len(m) }
func (m moduleArray) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
