// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanmgr

import (
	"fmt"

	"github.com/btcsuite/btcchan/keychain"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// WalletState describes the key material backing the channel.
type WalletState struct {
	// Encrypted is true when the seed is kept encrypted at rest.
	Encrypted bool

	// Network is the name of the network the keys belong to.
	Network string

	// StealthKeys holds the public stealth keys when they are exposed.
	StealthKeys fn.Option[keychain.StealthKeys]
}

// String renders the wallet state for display.
func (w WalletState) String() string {
	keys := "none"
	w.StealthKeys.WhenSome(func(k keychain.StealthKeys) {
		keys = k.String()
	})

	return fmt.Sprintf("network=%s encrypted=%v keys=%s", w.Network,
		w.Encrypted, keys)
}
