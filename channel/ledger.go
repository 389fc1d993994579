// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"fmt"
	"sync"
)

// Ledger owns the authoritative state of a channel. Every state it holds
// satisfies the ledger invariants; an update that would break them is
// rejected as a whole.
type Ledger struct {
	mu    sync.RWMutex
	state State
}

// NewLedger creates a ledger at the genesis state of cfg.
func NewLedger(cfg Config) (*Ledger, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	genesis := Genesis(cfg)
	if err := genesis.CheckInvariants(); err != nil {
		return nil, err
	}

	return &Ledger{state: genesis}, nil
}

// CurrentState returns a snapshot of the current state.
func (l *Ledger) CurrentState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.state.Copy()
}

// Apply replaces the current state with update.NewState. The update must
// have been derived from the current state: its nonce follows the current
// one and its balances equal the transaction applied to the current
// balances. Otherwise ErrInvalidTransition is returned. If the new state
// would break a ledger invariant ErrInvariantViolation is returned. In both
// cases the ledger is left untouched.
func (l *Ledger) Apply(update *StateUpdate) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := checkTransition(l.state, update); err != nil {
		return State{}, err
	}

	if err := update.NewState.CheckInvariants(); err != nil {
		log.Errorf("Rejecting update for %v: %v",
			update.Transaction, err)
		return State{}, err
	}

	l.state = update.NewState.Copy()

	log.Debugf("Applied %v, now %v", update.Transaction, l.state)

	return l.state.Copy(), nil
}

// Validate runs the checks Apply performs without changing the ledger.
func (l *Ledger) Validate(update *StateUpdate) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := checkTransition(l.state, update); err != nil {
		return err
	}

	return update.NewState.CheckInvariants()
}

// checkTransition verifies that update was computed from current.
func checkTransition(current State, update *StateUpdate) error {
	next := update.NewState
	tx := update.Transaction

	switch {
	case next.Config != current.Config:
		return channelError(ErrInvalidTransition,
			"update changes the channel configuration", nil)

	case next.Nonce != current.Nonce+1:
		str := fmt.Sprintf("update nonce %d does not follow current "+
			"nonce %d", next.Nonce, current.Nonce)
		return channelError(ErrInvalidTransition, str, nil)

	case len(next.Balances) != len(current.Balances):
		str := fmt.Sprintf("update has %d balances, current state "+
			"has %d", len(next.Balances), len(current.Balances))
		return channelError(ErrInvariantViolation, str, nil)

	case tx.Amount <= 0:
		str := fmt.Sprintf("transaction amount %d must be positive",
			int64(tx.Amount))
		return channelError(ErrInvalidTransition, str, nil)

	case int(tx.Sender) >= len(current.Balances),
		int(tx.Recipient) >= len(current.Balances),
		tx.Sender == tx.Recipient:

		str := fmt.Sprintf("transaction parties %v -> %v are not "+
			"valid", tx.Sender, tx.Recipient)
		return channelError(ErrInvalidTransition, str, nil)
	}

	expected := applyTransfer(current.Balances, Request{
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Amount:    tx.Amount,
	})
	for i := range expected {
		if expected[i] != next.Balances[i] {
			str := fmt.Sprintf("update balance of %v is %d, "+
				"expected %d", PartyIndex(i),
				int64(next.Balances[i]), int64(expected[i]))
			return channelError(ErrInvalidTransition, str, nil)
		}
	}

	return nil
}

// Replay rebuilds the state reached after txs starting from the genesis
// state of cfg. Each transaction is validated exactly as it was when it was
// first processed and ids must be strictly increasing.
func Replay(cfg Config, txs []Transaction) (State, error) {
	ledger, err := NewLedger(cfg)
	if err != nil {
		return State{}, err
	}

	var lastID uint64
	for _, tx := range txs {
		if tx.ID <= lastID {
			str := fmt.Sprintf("transaction id %d does not follow "+
				"%d", tx.ID, lastID)
			return State{}, channelError(
				ErrInvalidTransition, str, nil,
			)
		}
		lastID = tx.ID

		current := ledger.CurrentState()
		req := Request{
			Sender:    tx.Sender,
			Recipient: tx.Recipient,
			Amount:    tx.Amount,
			Data:      tx.Data,
		}
		if err := validateTransfer(current.Balances, req); err != nil {
			return State{}, channelError(ErrInvalidTransition,
				fmt.Sprintf("replaying %v", tx), err)
		}

		_, err := ledger.Apply(&StateUpdate{
			Transaction: tx,
			NewState: State{
				Config:   current.Config,
				Balances: applyTransfer(current.Balances, req),
				Nonce:    current.Nonce + 1,
			},
		})
		if err != nil {
			return State{}, err
		}
	}

	return ledger.CurrentState(), nil
}
