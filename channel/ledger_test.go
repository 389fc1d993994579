// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"sync"
	"testing"

	"github.com/btcsuite/btcchan/netparams"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// TestNewLedger checks the genesis state and config validation.
func TestNewLedger(t *testing.T) {
	t.Parallel()

	ledger, err := NewLedger(Config{
		Network:        netparams.TestNet,
		InitialBalance: 100,
		SecurityBits:   128,
	})
	require.NoError(t, err)

	state := ledger.CurrentState()
	require.Equal(t, []btcutil.Amount{100, 0}, state.Balances)
	require.Equal(t, uint64(0), state.Nonce)
	require.Equal(t, uint16(DefaultNumParties), state.NumParties)

	// The snapshot is a copy.
	state.Balances[0] = 1
	require.Equal(t, btcutil.Amount(100), ledger.CurrentState().Balance(0))

	badConfigs := []Config{
		{Network: netparams.Network(7), InitialBalance: 1},
		{Network: netparams.MainNet, InitialBalance: 0},
		{Network: netparams.MainNet, InitialBalance: -1},
		{Network: netparams.MainNet, InitialBalance: btcutil.MaxSatoshi + 1},
		{Network: netparams.MainNet, InitialBalance: 1, NumParties: 1},
		{
			Network: netparams.MainNet, InitialBalance: 1,
			NumParties: MaxNumParties + 1,
		},
	}
	for _, cfg := range badConfigs {
		_, err := NewLedger(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig, "config %+v", cfg)
	}
}

// TestLedgerApply walks the canonical two party scenario through the ledger.
func TestLedgerApply(t *testing.T) {
	t.Parallel()

	// Arrange.
	ledger, err := NewLedger(testConfig(2))
	require.NoError(t, err)
	p := NewProcessor(clock.NewTestClock(testTime), 0)

	// Act.
	update, err := p.Process(
		Request{Sender: 0, Recipient: 1, Amount: 30},
		ledger.CurrentState(),
	)
	require.NoError(t, err)
	state, err := ledger.Apply(update)

	// Assert.
	require.NoError(t, err)
	require.Equal(t, []btcutil.Amount{70, 30}, state.Balances)
	require.Equal(t, uint64(1), state.Nonce)
	require.Equal(t, state, ledger.CurrentState())

	// Applying the same update again is stale.
	_, err = ledger.Apply(update)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, state, ledger.CurrentState())
}

// TestLedgerApplyRejects ensures malformed updates never reach the ledger.
func TestLedgerApplyRejects(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2)
	genesis := Genesis(cfg)
	tx := Transaction{ID: 1, Sender: 0, Recipient: 1, Amount: 30}

	tests := []struct {
		name    string
		update  StateUpdate
		wantErr error
	}{
		{
			name: "skipped nonce",
			update: StateUpdate{
				Transaction: tx,
				NewState: State{
					Config:   cfg,
					Balances: []btcutil.Amount{70, 30},
					Nonce:    2,
				},
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "config changed",
			update: StateUpdate{
				Transaction: tx,
				NewState: State{
					Config:   testConfig(3),
					Balances: []btcutil.Amount{70, 30},
					Nonce:    1,
				},
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "balances not derived from transaction",
			update: StateUpdate{
				Transaction: tx,
				NewState: State{
					Config:   cfg,
					Balances: []btcutil.Amount{60, 40},
					Nonce:    1,
				},
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "money created",
			update: StateUpdate{
				Transaction: tx,
				NewState: State{
					Config:   cfg,
					Balances: []btcutil.Amount{100, 30},
					Nonce:    1,
				},
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "overdraft",
			update: StateUpdate{
				Transaction: Transaction{
					ID: 1, Sender: 1, Recipient: 0, Amount: 10,
				},
				NewState: State{
					Config:   cfg,
					Balances: []btcutil.Amount{110, -10},
					Nonce:    1,
				},
			},
			wantErr: ErrInvariantViolation,
		},
		{
			name: "party count changed",
			update: StateUpdate{
				Transaction: tx,
				NewState: State{
					Config:   cfg,
					Balances: []btcutil.Amount{70, 30, 0},
					Nonce:    1,
				},
			},
			wantErr: ErrInvariantViolation,
		},
		{
			name: "zero amount",
			update: StateUpdate{
				Transaction: Transaction{ID: 1, Recipient: 1},
				NewState: State{
					Config:   cfg,
					Balances: []btcutil.Amount{100, 0},
					Nonce:    1,
				},
			},
			wantErr: ErrInvalidTransition,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			ledger, err := NewLedger(cfg)
			require.NoError(t, err)

			_, err = ledger.Apply(&test.update)
			require.ErrorIs(t, err, test.wantErr)
			require.Equal(t, genesis, ledger.CurrentState())
		})
	}
}

// TestLedgerConcurrentApply races many writers computing updates from the
// same snapshot. Exactly one update per nonce may win and the invariants
// must hold throughout.
func TestLedgerConcurrentApply(t *testing.T) {
	t.Parallel()

	ledger, err := NewLedger(testConfig(2))
	require.NoError(t, err)
	p := NewProcessor(clock.NewTestClock(testTime), 0)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 20; j++ {
				update, err := p.Process(Request{
					Sender: 0, Recipient: 1, Amount: 1,
				}, ledger.CurrentState())
				if err != nil {
					require.ErrorIs(t, err, ErrInsufficientBalance)
					continue
				}

				if _, err := ledger.Apply(update); err != nil {
					require.ErrorIs(t, err, ErrInvalidTransition)
					continue
				}

				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	state := ledger.CurrentState()
	require.NoError(t, state.CheckInvariants())
	require.Equal(t, uint64(applied), state.Nonce)
	require.Equal(t, btcutil.Amount(applied), state.Balance(1))
}

// TestReplay rebuilds every intermediate state from the history.
func TestReplay(t *testing.T) {
	t.Parallel()

	cfg := testConfig(3)
	ledger, err := NewLedger(cfg)
	require.NoError(t, err)
	p := NewProcessor(clock.NewTestClock(testTime), 0)

	reqs := []Request{
		{Sender: 0, Recipient: 1, Amount: 40},
		{Sender: 1, Recipient: 2, Amount: 15},
		{Sender: 0, Recipient: 2, Amount: 60},
		{Sender: 2, Recipient: 0, Amount: 5, Data: []byte("refund")},
	}

	var (
		history []Transaction
		states  = []State{ledger.CurrentState()}
	)
	for _, req := range reqs {
		update, err := p.Process(req, ledger.CurrentState())
		require.NoError(t, err)
		state, err := ledger.Apply(update)
		require.NoError(t, err)
		p.Commit(update)

		history = append(history, update.Transaction)
		states = append(states, state)
	}

	for i := range states {
		replayed, err := Replay(cfg, history[:i])
		require.NoError(t, err)
		require.Equal(t, states[i], replayed, "prefix %d", i)
	}

	// Out of order ids are rejected.
	swapped := []Transaction{history[1], history[0]}
	_, err = Replay(cfg, swapped)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// A history that overdraws is rejected.
	bogus := []Transaction{{ID: 1, Sender: 1, Recipient: 0, Amount: 1}}
	_, err = Replay(cfg, bogus)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

// TestCheckInvariants covers the failure modes of the invariant check.
func TestCheckInvariants(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2)

	require.NoError(t, Genesis(cfg).CheckInvariants())

	bad := []State{
		{Config: cfg, Balances: []btcutil.Amount{100}},
		{Config: cfg, Balances: []btcutil.Amount{90, 0}},
		{Config: cfg, Balances: []btcutil.Amount{110, -10}},
		{
			Config: cfg,
			Balances: []btcutil.Amount{
				btcutil.MaxSatoshi, btcutil.MaxSatoshi,
			},
		},
	}
	for _, s := range bad {
		require.ErrorIs(t, s.CheckInvariants(), ErrInvariantViolation)
	}

	require.Equal(t, btcutil.Amount(0), Genesis(cfg).Balance(5))
}

// TestLedgerValidate ensures Validate agrees with Apply without mutating.
func TestLedgerValidate(t *testing.T) {
	t.Parallel()

	ledger, err := NewLedger(testConfig(2))
	require.NoError(t, err)
	p := NewProcessor(clock.NewTestClock(testTime), 0)

	update, err := p.Process(
		Request{Sender: 0, Recipient: 1, Amount: 5},
		ledger.CurrentState(),
	)
	require.NoError(t, err)

	require.NoError(t, ledger.Validate(update))
	require.Equal(t, uint64(0), ledger.CurrentState().Nonce)

	_, err = ledger.Apply(update)
	require.NoError(t, err)
	require.ErrorIs(t, ledger.Validate(update), ErrInvalidTransition)
}
