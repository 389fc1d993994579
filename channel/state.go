// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcchan/commitment"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// stateDigestTag is the BIP-340 tag used when hashing a state for signing.
var stateDigestTag = []byte("btcchan/state")

// PartyIndex identifies a channel participant by its position in the balance
// vector.
type PartyIndex uint16

// String returns the party's display name.
func (p PartyIndex) String() string {
	return fmt.Sprintf("party%d", uint16(p))
}

// State is a snapshot of the channel. Each committed transaction produces a
// new State with Nonce advanced by exactly one.
type State struct {
	Config

	// Balances holds one entry per party, indexed by PartyIndex.
	Balances []btcutil.Amount

	// Nonce counts committed transactions.
	Nonce uint64
}

// Genesis returns the nonce 0 state for cfg: the funder holds the whole
// initial balance and every other party holds nothing.
func Genesis(cfg Config) State {
	balances := make([]btcutil.Amount, cfg.NumParties)
	if len(balances) > 0 {
		balances[0] = cfg.InitialBalance
	}

	return State{
		Config:   cfg,
		Balances: balances,
	}
}

// Copy returns a deep copy of s.
func (s State) Copy() State {
	balances := make([]btcutil.Amount, len(s.Balances))
	copy(balances, s.Balances)
	s.Balances = balances
	return s
}

// Balance returns the balance of party p, or zero if p is not a member.
func (s State) Balance(p PartyIndex) btcutil.Amount {
	if int(p) >= len(s.Balances) {
		return 0
	}
	return s.Balances[p]
}

// String renders the state for logs.
func (s State) String() string {
	parts := make([]string, len(s.Balances))
	for i, b := range s.Balances {
		parts[i] = fmt.Sprintf("%v=%d", PartyIndex(i), int64(b))
	}
	return fmt.Sprintf("nonce=%d balances=[%s]", s.Nonce,
		strings.Join(parts, " "))
}

// CheckInvariants verifies the ledger invariants on s: the party count is
// fixed, no balance is negative and the balances sum to the initial balance.
func (s State) CheckInvariants() error {
	if len(s.Balances) != int(s.NumParties) {
		str := fmt.Sprintf("state has %d balances, channel has %d "+
			"parties", len(s.Balances), s.NumParties)
		return channelError(ErrInvariantViolation, str, nil)
	}

	var total btcutil.Amount
	for i, b := range s.Balances {
		if b < 0 {
			str := fmt.Sprintf("negative balance %d for %v",
				int64(b), PartyIndex(i))
			return channelError(ErrInvariantViolation, str, nil)
		}
		if b > btcutil.MaxSatoshi-total {
			str := fmt.Sprintf("balances overflow at %v",
				PartyIndex(i))
			return channelError(ErrInvariantViolation, str, nil)
		}
		total += b
	}

	if total != s.InitialBalance {
		str := fmt.Sprintf("balances sum to %d, expected %d",
			int64(total), int64(s.InitialBalance))
		return channelError(ErrInvariantViolation, str, nil)
	}

	return nil
}

// Digest returns the tagged hash of the encoded state. Signatures over a
// state commit to this digest.
func (s State) Digest() (*chainhash.Hash, error) {
	var b bytes.Buffer
	if err := EncodeState(&b, s); err != nil {
		return nil, err
	}

	return chainhash.TaggedHash(stateDigestTag, b.Bytes()), nil
}

// Transaction records a committed transfer. A Transaction is immutable once
// recorded.
type Transaction struct {
	// ID is unique and strictly increasing for the channel's lifetime,
	// starting at 1.
	ID uint64

	Sender    PartyIndex
	Recipient PartyIndex

	// Amount is always positive.
	Amount btcutil.Amount

	// Timestamp is the instant the transaction was created.
	Timestamp time.Time

	// Data is an optional opaque payload attached by the sender.
	Data []byte
}

// Copy returns a deep copy of tx.
func (tx Transaction) Copy() Transaction {
	if tx.Data != nil {
		tx.Data = append([]byte(nil), tx.Data...)
	}
	return tx
}

// String renders the transaction for logs.
func (tx Transaction) String() string {
	return fmt.Sprintf("transaction %d: %v -> %v %v", tx.ID, tx.Sender,
		tx.Recipient, tx.Amount)
}

// StateUpdate pairs a transaction with the state it produces.
type StateUpdate struct {
	Transaction Transaction
	NewState    State

	// Sig is an optional signature over NewState.Digest().
	Sig []byte

	// Commitments optionally holds one Pedersen commitment per balance of
	// NewState, in party order.
	Commitments []commitment.Commitment
}

// Copy returns a deep copy of u.
func (u StateUpdate) Copy() StateUpdate {
	u.Transaction = u.Transaction.Copy()
	u.NewState = u.NewState.Copy()
	if u.Sig != nil {
		u.Sig = append([]byte(nil), u.Sig...)
	}
	if u.Commitments != nil {
		u.Commitments = append(
			[]commitment.Commitment(nil), u.Commitments...,
		)
	}
	return u
}
