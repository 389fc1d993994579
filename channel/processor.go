// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/clock"
)

// Request is a proposed transfer between two parties of a channel.
type Request struct {
	Sender    PartyIndex
	Recipient PartyIndex
	Amount    btcutil.Amount

	// Data is an optional opaque payload of at most MaxDataSize bytes.
	Data []byte
}

// validateTransfer checks req against the balance vector. Checks run in a
// fixed order so the same request always fails with the same error: amount,
// parties, funds, payload.
func validateTransfer(balances []btcutil.Amount, req Request) error {
	if req.Amount <= 0 {
		str := fmt.Sprintf("amount %d must be positive",
			int64(req.Amount))
		return channelError(ErrInvalidAmount, str, nil)
	}

	numParties := len(balances)
	switch {
	case int(req.Sender) >= numParties:
		str := fmt.Sprintf("unknown sender %v", req.Sender)
		return channelError(ErrInvalidParty, str, nil)

	case int(req.Recipient) >= numParties:
		str := fmt.Sprintf("unknown recipient %v", req.Recipient)
		return channelError(ErrInvalidParty, str, nil)

	case req.Sender == req.Recipient:
		str := fmt.Sprintf("%v cannot pay itself", req.Sender)
		return channelError(ErrInvalidParty, str, nil)
	}

	if balances[req.Sender] < req.Amount {
		str := fmt.Sprintf("%v holds %v, cannot send %v", req.Sender,
			balances[req.Sender], req.Amount)
		return channelError(ErrInsufficientBalance, str, nil)
	}

	if balances[req.Recipient] > btcutil.MaxSatoshi-req.Amount {
		str := fmt.Sprintf("crediting %v to %v overflows", req.Amount,
			req.Recipient)
		return channelError(ErrInvalidAmount, str, nil)
	}

	if len(req.Data) > MaxDataSize {
		str := fmt.Sprintf("payload of %d bytes exceeds %d",
			len(req.Data), MaxDataSize)
		return channelError(ErrInvalidData, str, nil)
	}

	return nil
}

// applyTransfer returns a new balance vector with req applied. The input
// slice is never modified.
func applyTransfer(balances []btcutil.Amount,
	req Request) []btcutil.Amount {

	next := make([]btcutil.Amount, len(balances))
	copy(next, balances)
	next[req.Sender] -= req.Amount
	next[req.Recipient] += req.Amount

	return next
}

// Processor validates transfer requests and computes the state update they
// would produce. It never commits anything: the caller applies the update to
// a Ledger and then reports it back through Commit.
type Processor struct {
	clock clock.Clock

	mu     sync.Mutex
	lastID uint64
}

// NewProcessor creates a processor whose transactions are stamped by clk and
// numbered after lastID.
func NewProcessor(clk clock.Clock, lastID uint64) *Processor {
	return &Processor{
		clock:  clk,
		lastID: lastID,
	}
}

// Process validates req against current and returns the resulting update.
// The processor's id sequence is not advanced, so a rejected or abandoned
// update never consumes an id.
func (p *Processor) Process(req Request,
	current State) (*StateUpdate, error) {

	if err := validateTransfer(current.Balances, req); err != nil {
		return nil, err
	}

	p.mu.Lock()
	id := p.lastID + 1
	p.mu.Unlock()

	var data []byte
	if len(req.Data) > 0 {
		data = append([]byte(nil), req.Data...)
	}

	newState := State{
		Config:   current.Config,
		Balances: applyTransfer(current.Balances, req),
		Nonce:    current.Nonce + 1,
	}

	return &StateUpdate{
		Transaction: Transaction{
			ID:        id,
			Sender:    req.Sender,
			Recipient: req.Recipient,
			Amount:    req.Amount,
			Timestamp: p.clock.Now(),
			Data:      data,
		},
		NewState: newState,
	}, nil
}

// Commit records that update was applied so the next transaction receives a
// fresh id.
func (p *Processor) Commit(update *StateUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if update.Transaction.ID > p.lastID {
		p.lastID = update.Transaction.ID
	}
}

// LastID returns the id of the most recently committed transaction.
func (p *Processor) LastID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastID
}
