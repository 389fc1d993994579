// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"fmt"

	"github.com/btcsuite/btcchan/netparams"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// DefaultNumParties is the party count of a classic 2-of-2 channel.
	DefaultNumParties = 2

	// MaxNumParties bounds the balance vector.
	MaxNumParties = 16

	// MaxDataSize is the largest opaque payload a transaction may carry.
	MaxDataSize = 1024
)

// Config is the immutable configuration a channel is created with.
type Config struct {
	// Network is the bitcoin network the channel belongs to.
	Network netparams.Network

	// InitialBalance is the capacity of the channel. It is credited to
	// the funder, party 0, at genesis and the sum of all balances equals
	// it for the channel's whole lifetime.
	InitialBalance btcutil.Amount

	// SecurityBits is the security level the channel keys are derived
	// at.
	SecurityBits uint16

	// NumParties is the length of the balance vector. Zero means
	// DefaultNumParties.
	NumParties uint16
}

// WithDefaults returns a copy of c with unset optional fields filled in.
func (c Config) WithDefaults() Config {
	if c.NumParties == 0 {
		c.NumParties = DefaultNumParties
	}
	return c
}

// Validate checks the configuration. Security bits are validated by key
// derivation.
func (c Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return channelError(ErrInvalidConfig, "invalid network", err)
	}

	if c.InitialBalance <= 0 || c.InitialBalance > btcutil.MaxSatoshi {
		str := fmt.Sprintf("initial balance %v must be positive and "+
			"at most %v", c.InitialBalance,
			btcutil.Amount(btcutil.MaxSatoshi))
		return channelError(ErrInvalidConfig, str, nil)
	}

	if c.NumParties < 2 || c.NumParties > MaxNumParties {
		str := fmt.Sprintf("channel needs between 2 and %d parties, "+
			"got %d", MaxNumParties, c.NumParties)
		return channelError(ErrInvalidConfig, str, nil)
	}

	return nil
}
