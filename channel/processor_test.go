// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcchan/netparams"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(parties uint16) Config {
	return Config{
		Network:        netparams.RegTest,
		InitialBalance: 100,
		SecurityBits:   128,
		NumParties:     parties,
	}
}

// TestProcess covers the accepted and rejected transfer shapes.
func TestProcess(t *testing.T) {
	t.Parallel()

	state := State{
		Config:   testConfig(3),
		Balances: []btcutil.Amount{70, 30, 0},
		Nonce:    1,
	}

	tests := []struct {
		name     string
		req      Request
		wantErr  error
		balances []btcutil.Amount
	}{
		{
			name:     "simple transfer",
			req:      Request{Sender: 0, Recipient: 1, Amount: 20},
			balances: []btcutil.Amount{50, 50, 0},
		},
		{
			name:     "drain to zero",
			req:      Request{Sender: 1, Recipient: 2, Amount: 30},
			balances: []btcutil.Amount{70, 0, 30},
		},
		{
			name:    "zero amount",
			req:     Request{Sender: 0, Recipient: 1, Amount: 0},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			req:     Request{Sender: 0, Recipient: 1, Amount: -5},
			wantErr: ErrInvalidAmount,
		},
		{
			// The amount is checked before the parties.
			name:    "zero amount unknown party",
			req:     Request{Sender: 0, Recipient: 9, Amount: 0},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown recipient",
			req:     Request{Sender: 0, Recipient: 3, Amount: 1},
			wantErr: ErrInvalidParty,
		},
		{
			name:    "unknown sender",
			req:     Request{Sender: 7, Recipient: 0, Amount: 1},
			wantErr: ErrInvalidParty,
		},
		{
			name:    "self transfer",
			req:     Request{Sender: 1, Recipient: 1, Amount: 1},
			wantErr: ErrInvalidParty,
		},
		{
			name:    "insufficient balance",
			req:     Request{Sender: 0, Recipient: 1, Amount: 80},
			wantErr: ErrInsufficientBalance,
		},
		{
			name: "oversized payload",
			req: Request{
				Sender: 0, Recipient: 1, Amount: 1,
				Data: bytes.Repeat([]byte{1}, MaxDataSize+1),
			},
			wantErr: ErrInvalidData,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			// Arrange.
			p := NewProcessor(clock.NewTestClock(testTime), 4)
			before := state.Copy()

			// Act.
			update, err := p.Process(test.req, state)

			// Assert: the input state is never touched.
			require.Equal(t, before, state)
			require.Equal(t, uint64(4), p.LastID())

			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
				require.Nil(t, update)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.balances, update.NewState.Balances)
			require.Equal(t, uint64(2), update.NewState.Nonce)
			require.Equal(t, state.Config, update.NewState.Config)
			require.Equal(t, uint64(5), update.Transaction.ID)
			require.Equal(t, test.req.Amount, update.Transaction.Amount)
			require.Equal(t, testTime, update.Transaction.Timestamp)
			require.NoError(t, update.NewState.CheckInvariants())
		})
	}
}

// TestProcessorIDs ensures ids only advance on commit.
func TestProcessorIDs(t *testing.T) {
	t.Parallel()

	// Arrange.
	clk := clock.NewTestClock(testTime)
	p := NewProcessor(clk, 0)
	state := Genesis(testConfig(2))
	req := Request{Sender: 0, Recipient: 1, Amount: 10}

	// Act: process twice without committing.
	first, err := p.Process(req, state)
	require.NoError(t, err)
	again, err := p.Process(req, state)
	require.NoError(t, err)

	// Assert.
	require.Equal(t, uint64(1), first.Transaction.ID)
	require.Equal(t, uint64(1), again.Transaction.ID)

	// Act: commit and advance the clock.
	p.Commit(first)
	clk.SetTime(testTime.Add(time.Minute))
	second, err := p.Process(req, first.NewState)
	require.NoError(t, err)

	// Assert.
	require.Equal(t, uint64(2), second.Transaction.ID)
	require.Equal(t, testTime.Add(time.Minute), second.Transaction.Timestamp)
	require.Equal(t, uint64(1), p.LastID())

	// Committing an older update never moves the sequence backwards.
	p.Commit(second)
	p.Commit(first)
	require.Equal(t, uint64(2), p.LastID())
}

// TestProcessOverflow rejects credits that would exceed the satoshi supply.
func TestProcessOverflow(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Network:        netparams.MainNet,
		InitialBalance: btcutil.MaxSatoshi,
		SecurityBits:   128,
		NumParties:     2,
	}
	state := State{
		Config:   cfg,
		Balances: []btcutil.Amount{btcutil.MaxSatoshi, 0},
	}

	// A state that is already at the cap on the recipient side.
	skewed := State{
		Config:   cfg,
		Balances: []btcutil.Amount{1, btcutil.MaxSatoshi},
	}

	p := NewProcessor(clock.NewTestClock(testTime), 0)

	_, err := p.Process(Request{Sender: 0, Recipient: 1, Amount: 1}, skewed)
	require.ErrorIs(t, err, ErrInvalidAmount)

	update, err := p.Process(Request{
		Sender: 0, Recipient: 1, Amount: btcutil.MaxSatoshi,
	}, state)
	require.NoError(t, err)
	require.Equal(t, []btcutil.Amount{0, btcutil.MaxSatoshi},
		update.NewState.Balances)
}
