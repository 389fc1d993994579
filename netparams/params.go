// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// ErrUnknownNetwork is returned when a network name or value does not map to
// one of the supported networks.
var ErrUnknownNetwork = errors.New("unknown network")

// Network identifies the bitcoin network a channel is bound to. The set is
// closed: every switch over a Network must handle all of its members.
type Network uint8

const (
	// MainNet is the production bitcoin network.
	MainNet Network = iota

	// TestNet is the public test network (version 3).
	TestNet

	// RegTest is the local regression test network.
	RegTest
)

// String returns the canonical lower case name of the network.
func (n Network) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet:
		return "testnet"
	case RegTest:
		return "regtest"
	default:
		return fmt.Sprintf("Unknown Network (%d)", uint8(n))
	}
}

// Validate returns ErrUnknownNetwork if n is not one of the declared
// networks.
func (n Network) Validate() error {
	switch n {
	case MainNet, TestNet, RegTest:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownNetwork, uint8(n))
	}
}

// ParseNetwork maps a network name onto its Network value.
func ParseNetwork(name string) (Network, error) {
	switch name {
	case "mainnet":
		return MainNet, nil
	case "testnet", "testnet3":
		return TestNet, nil
	case "regtest":
		return RegTest, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*chaincfg.Params

	// Network is the closed enumeration value these parameters belong
	// to.
	Network Network

	// CoinType is the BIP-44 coin type used for hardened key derivation
	// on this network.
	CoinType uint32
}

// MainNetParams contains parameters specific to running a channel on the
// main network (wire.MainNet).
var MainNetParams = Params{
	Params:   &chaincfg.MainNetParams,
	Network:  MainNet,
	CoinType: 0,
}

// TestNet3Params contains parameters specific to running a channel on the
// test network (version 3) (wire.TestNet3).
var TestNet3Params = Params{
	Params:   &chaincfg.TestNet3Params,
	Network:  TestNet,
	CoinType: 1,
}

// RegressionNetParams contains parameters specific to the regression test
// network (wire.TestNet).
var RegressionNetParams = Params{
	Params:   &chaincfg.RegressionNetParams,
	Network:  RegTest,
	CoinType: 1,
}

// ParamsForNetwork returns the parameter set for the given network.
func ParamsForNetwork(n Network) (*Params, error) {
	switch n {
	case MainNet:
		return &MainNetParams, nil
	case TestNet:
		return &TestNet3Params, nil
	case RegTest:
		return &RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownNetwork, uint8(n))
	}
}
