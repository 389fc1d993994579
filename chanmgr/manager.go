// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chanmgr exposes a payment channel to clients. A Manager owns the
// channel's keys, ledger, transaction history and audit log, and makes every
// state change visible to readers atomically.
package chanmgr

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/btcsuite/btcchan/auditlog"
	"github.com/btcsuite/btcchan/channel"
	"github.com/btcsuite/btcchan/commitment"
	"github.com/btcsuite/btcchan/internal/zero"
	"github.com/btcsuite/btcchan/keychain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// msgInitialized is logged when a new channel is created.
	msgInitialized = "channel initialized"

	// msgRejectedPrefix starts the entry logged for a rejected
	// transaction.
	msgRejectedPrefix = "transaction rejected: "
)

// Config houses the collaborators of a Manager. Every field is optional.
type Config struct {
	// LocalParty is the party ProcessTransaction sends from. It defaults
	// to the funder, party 0.
	LocalParty channel.PartyIndex

	// Seed provides the seed the channel keys are derived from. When nil
	// a random seed is drawn, which is only useful for channels that do
	// not outlive the process.
	Seed SeedSource

	// Clock stamps transactions and audit entries.
	Clock clock.Clock

	// Store makes the channel durable. When set, Initialize restores a
	// stored channel and every committed update is written through it.
	Store Store

	// AuditFlushTicker drives retries of audit entries the store did not
	// accept.
	AuditFlushTicker ticker.Ticker

	// SignUpdates signs every update with the channel spend key.
	SignUpdates bool

	// Verifier, when set, must accept every update before it is
	// committed.
	Verifier UpdateVerifier

	// CommitBalances attaches a Pedersen commitment to every balance of
	// each update. Stored commitments are checked on restore.
	CommitBalances bool

	// HideStealthKeys keeps the public stealth keys out of the wallet
	// state.
	HideStealthKeys bool
}

// Manager is the client facing handle of a single channel. The zero value is
// not usable; create one with New.
//
// A Manager starts uninitialized. Initialize moves it to ready, where it
// stays until Stop. A stopped manager cannot be initialized again.
type Manager struct {
	cfg Config

	// mu guards everything below. Mutations hold it exclusively for
	// validation and commit, readers share it, so a reader never observes
	// a state without its transaction or the other way around.
	mu        sync.RWMutex
	ready     bool
	stopped   bool
	keys      *keychain.KeyMaterial
	committer *commitment.Committer
	ledger    *channel.Ledger
	processor *channel.Processor
	history   []channel.Transaction
	audit     *auditlog.Log
	signer    UpdateSigner
}

// New creates an uninitialized manager.
func New(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Seed == nil {
		cfg.Seed = RandomSeed{}
	}

	return &Manager{cfg: cfg}
}

// Initialize creates the channel described by chanCfg. If the configured
// store already holds a channel with the same configuration, that channel is
// restored instead by replaying its history.
//
// A failed Initialize leaves the manager uninitialized.
func (m *Manager) Initialize(chanCfg channel.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.ready:
		return channel.NewError(channel.ErrAlreadyInitialized,
			"channel is already initialized", nil)

	case m.stopped:
		return channel.NewError(channel.ErrAlreadyInitialized,
			"channel manager has been stopped", nil)
	}

	chanCfg = chanCfg.WithDefaults()
	if chanCfg.SecurityBits == 0 {
		chanCfg.SecurityBits = keychain.DefaultSecurityBits
	}
	if err := chanCfg.Validate(); err != nil {
		return err
	}
	if int(m.cfg.LocalParty) >= int(chanCfg.NumParties) {
		str := fmt.Sprintf("local party %v is not a member of a %d "+
			"party channel", m.cfg.LocalParty, chanCfg.NumParties)
		return channel.NewError(channel.ErrInvalidConfig, str, nil)
	}

	keys, err := m.deriveKeys(chanCfg)
	if err != nil {
		return err
	}
	if m.cfg.CommitBalances {
		blindingKey := keys.BlindingKey()
		m.committer = commitment.NewCommitter(
			commitment.NewParams(chanCfg.SecurityBits), blindingKey,
		)
		zero.Bytes(blindingKey)
	}
	fail := func(err error) error {
		keys.Zero()
		if m.committer != nil {
			m.committer.Zero()
			m.committer = nil
		}
		return err
	}

	var snapshot *Snapshot
	if m.cfg.Store != nil {
		snapshot, err = m.cfg.Store.FetchChannel()
		switch {
		case errors.Is(err, ErrChannelNotFound):
			snapshot = nil

		case err != nil:
			return fail(channel.NewError(channel.ErrDatabase,
				"unable to fetch channel", err))
		}
	}

	if snapshot != nil {
		err = m.restore(chanCfg, snapshot)
	} else {
		err = m.create(chanCfg)
	}
	if err != nil {
		return fail(err)
	}

	m.keys = keys
	if m.cfg.SignUpdates {
		m.signer = NewKeySigner(keys)
	}
	m.audit.Start()
	m.ready = true

	return nil
}

// deriveKeys derives the channel keys from the configured seed.
func (m *Manager) deriveKeys(
	chanCfg channel.Config) (*keychain.KeyMaterial, error) {

	seed, err := m.cfg.Seed.Seed(chanCfg.SecurityBits)
	if err != nil {
		return nil, channel.NewError(channel.ErrKeyDerivation,
			"unable to obtain seed", err)
	}
	defer zero.Bytes(seed)

	keys, err := keychain.Derive(
		seed, chanCfg.Network, chanCfg.SecurityBits,
	)
	if err != nil {
		return nil, channel.NewError(channel.ErrKeyDerivation,
			"unable to derive channel keys", err)
	}

	return keys, nil
}

// create sets up a fresh channel.
//
// NOTE: The caller must hold m.mu.
func (m *Manager) create(chanCfg channel.Config) error {
	ledger, err := channel.NewLedger(chanCfg)
	if err != nil {
		return err
	}

	if m.cfg.Store != nil {
		if err := m.cfg.Store.PutGenesis(chanCfg); err != nil {
			return channel.NewError(channel.ErrDatabase,
				"unable to store channel", err)
		}
	}

	m.ledger = ledger
	m.processor = channel.NewProcessor(m.cfg.Clock, 0)
	m.history = nil
	m.audit = m.newAuditLog(nil)
	m.audit.Append(msgInitialized)

	log.Infof("Channel initialized on %v with %v across %d parties",
		chanCfg.Network, chanCfg.InitialBalance, chanCfg.NumParties)

	return nil
}

// restore rebuilds a stored channel and checks every stored state against
// the replayed one.
//
// NOTE: The caller must hold m.mu.
func (m *Manager) restore(chanCfg channel.Config, snapshot *Snapshot) error {
	if snapshot.Config != chanCfg {
		str := fmt.Sprintf("stored channel has configuration %+v",
			snapshot.Config)
		return channel.NewError(channel.ErrInvalidConfig, str, nil)
	}

	ledger, err := channel.NewLedger(chanCfg)
	if err != nil {
		return err
	}

	history := make([]channel.Transaction, 0, len(snapshot.Updates))
	for i := range snapshot.Updates {
		update := &snapshot.Updates[i]
		if err := m.verifyStored(update); err != nil {
			return err
		}
		if _, err := ledger.Apply(update); err != nil {
			return channel.NewError(channel.ErrInvariantViolation,
				fmt.Sprintf("stored update %d does not replay",
					update.Transaction.ID), err)
		}
		history = append(history, update.Transaction.Copy())
	}

	replayed, err := channel.Replay(chanCfg, history)
	if err != nil {
		return channel.NewError(channel.ErrInvariantViolation,
			"stored history does not replay", err)
	}
	current := ledger.CurrentState()
	if replayed.Nonce != current.Nonce ||
		!slices.Equal(replayed.Balances, current.Balances) {

		return channel.NewError(channel.ErrInvariantViolation,
			"stored state does not match its history", nil)
	}

	var lastID uint64
	if len(history) > 0 {
		lastID = history[len(history)-1].ID
	}

	m.ledger = ledger
	m.processor = channel.NewProcessor(m.cfg.Clock, lastID)
	m.history = history
	m.audit = m.newAuditLog(snapshot.Logs)
	m.audit.Appendf("channel restored at nonce %d", replayed.Nonce)

	log.Infof("Channel restored at nonce %d with %d transactions, next "+
		"transaction id %d", replayed.Nonce, len(history),
		m.processor.LastID()+1)

	return nil
}

// verifyStored puts a stored update through the checks a live update passes
// before it is committed.
//
// NOTE: The caller must hold m.mu.
func (m *Manager) verifyStored(update *channel.StateUpdate) error {
	id := update.Transaction.ID

	if m.cfg.Verifier != nil {
		if err := m.cfg.Verifier.VerifyUpdate(update); err != nil {
			str := fmt.Sprintf("stored update %d vetoed by "+
				"verifier", id)
			return channel.NewError(
				channel.ErrUpdateRejected, str, err,
			)
		}
	}

	// Updates stored before commitments were enabled carry none.
	if m.committer != nil && len(update.Commitments) > 0 {
		err := m.committer.VerifyBalances(
			update.NewState.Nonce,
			balanceValues(update.NewState.Balances),
			update.Commitments,
		)
		if err != nil {
			str := fmt.Sprintf("stored commitments of update %d "+
				"do not open", id)
			return channel.NewError(
				channel.ErrInvariantViolation, str, err,
			)
		}
	}

	return nil
}

// balanceValues converts balances, which the ledger keeps non-negative, to
// commitment values.
func balanceValues(balances []btcutil.Amount) []uint64 {
	values := make([]uint64, len(balances))
	for i, b := range balances {
		values[i] = uint64(b)
	}
	return values
}

// newAuditLog creates the audit log, backed by the store when present.
func (m *Manager) newAuditLog(restored []auditlog.LogMessage) *auditlog.Log {
	cfg := auditlog.Config{
		Clock:       m.cfg.Clock,
		FlushTicker: m.cfg.AuditFlushTicker,
		Restored:    restored,
	}
	if m.cfg.Store != nil {
		cfg.Sink = m.cfg.Store
	}

	return auditlog.New(cfg)
}

// ProcessTransaction transfers amount from the local party to recipient.
//
// On success the ledger has advanced by one nonce, the transaction is part
// of the history and an audit entry describes it. On failure nothing but a
// single audit entry describing the rejection has changed.
func (m *Manager) ProcessTransaction(amount btcutil.Amount,
	recipient channel.PartyIndex) (*channel.StateUpdate, error) {

	return m.Transfer(channel.Request{
		Sender:    m.cfg.LocalParty,
		Recipient: recipient,
		Amount:    amount,
	})
}

// Transfer is like ProcessTransaction with an explicit sender and an
// optional payload.
func (m *Manager) Transfer(req channel.Request) (*channel.StateUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return nil, errNotInitialized()
	}

	update, err := m.processor.Process(req, m.ledger.CurrentState())
	if err != nil {
		return nil, m.reject(err)
	}

	if m.committer != nil {
		update.Commitments, err = m.committer.CommitBalances(
			update.NewState.Nonce,
			balanceValues(update.NewState.Balances),
		)
		if err != nil {
			return nil, m.reject(channel.NewError(
				channel.ErrUpdateRejected,
				"unable to commit to balances", err,
			))
		}
	}

	if m.signer != nil {
		update.Sig, err = m.signer.SignUpdate(update)
		if err != nil {
			return nil, m.reject(channel.NewError(
				channel.ErrUpdateRejected,
				"unable to sign update", err,
			))
		}
	}

	if m.cfg.Verifier != nil {
		if err := m.cfg.Verifier.VerifyUpdate(update); err != nil {
			return nil, m.reject(channel.NewError(
				channel.ErrUpdateRejected,
				"update vetoed by verifier", err,
			))
		}
	}

	if err := m.ledger.Validate(update); err != nil {
		log.Errorf("Processor produced an invalid update: %v", err)
		return nil, m.reject(err)
	}

	if m.cfg.Store != nil {
		if err := m.cfg.Store.PutUpdate(update); err != nil {
			return nil, m.reject(channel.NewError(
				channel.ErrDatabase,
				"unable to store update", err,
			))
		}
	}

	newState, err := m.ledger.Apply(update)
	if err != nil {
		// The update was validated under the same lock, so this means
		// the store now holds an update the ledger refused.
		log.Criticalf("Ledger refused stored update %v: %v",
			update.Transaction, err)
		return nil, m.reject(err)
	}

	m.processor.Commit(update)
	m.history = append(m.history, update.Transaction.Copy())

	tx := update.Transaction
	m.audit.Appendf("transaction %d committed: %v -> %v %v, nonce %d",
		tx.ID, tx.Sender, tx.Recipient, tx.Amount, newState.Nonce)

	log.Debugf("Committed %v, %v", tx, newState)
	log.Tracef("State update: %v", newLogClosure(func() string {
		return spew.Sdump(update)
	}))

	result := update.Copy()
	return &result, nil
}

// reject records a rejected transaction in the audit log and returns err.
//
// NOTE: The caller must hold m.mu.
func (m *Manager) reject(err error) error {
	m.audit.Append(msgRejectedPrefix + err.Error())

	code, ok := channel.Code(err)
	switch {
	case ok && code.IsIntegrityError():
		log.Errorf("Transaction rejected: %v", err)

	case ok && code.IsUserError():
		log.Debugf("Transaction rejected: %v", err)

	default:
		log.Warnf("Transaction rejected: %v", err)
	}

	return err
}

// GetState returns the current channel state.
func (m *Manager) GetState() (channel.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return channel.State{}, errNotInitialized()
	}

	return m.ledger.CurrentState(), nil
}

// GetLogs returns the audit log, oldest entry first.
func (m *Manager) GetLogs() ([]auditlog.LogMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return nil, errNotInitialized()
	}

	return m.audit.Entries(), nil
}

// GetTransactions returns the committed transactions in commit order.
func (m *Manager) GetTransactions() ([]channel.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return nil, errNotInitialized()
	}

	return m.copyHistory(len(m.history)), nil
}

// View returns the current state together with the history that produced
// it, taken at the same instant.
func (m *Manager) View() (channel.State, []channel.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return channel.State{}, nil, errNotInitialized()
	}

	return m.ledger.CurrentState(), m.copyHistory(len(m.history)), nil
}

// StateAt rebuilds the state the channel had at nonce.
func (m *Manager) StateAt(nonce uint64) (channel.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return channel.State{}, errNotInitialized()
	}

	if nonce > uint64(len(m.history)) {
		str := fmt.Sprintf("nonce %d is beyond the current nonce %d",
			nonce, len(m.history))
		return channel.State{}, channel.NewError(
			channel.ErrInvalidTransition, str, nil,
		)
	}

	return channel.Replay(
		m.ledger.CurrentState().Config, m.copyHistory(int(nonce)),
	)
}

// copyHistory returns a deep copy of the first n transactions.
//
// NOTE: The caller must hold m.mu.
func (m *Manager) copyHistory(n int) []channel.Transaction {
	txs := make([]channel.Transaction, n)
	for i := range txs {
		txs[i] = m.history[i].Copy()
	}
	return txs
}

// GetWalletState describes the key material backing the channel.
func (m *Manager) GetWalletState() (WalletState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return WalletState{}, errNotInitialized()
	}

	keys := fn.Some(m.keys.PublicView())
	if m.cfg.HideStealthKeys {
		keys = fn.None[keychain.StealthKeys]()
	}

	return WalletState{
		Encrypted:   m.cfg.Seed.Encrypted(),
		Network:     m.keys.Network().String(),
		StealthKeys: keys,
	}, nil
}

// CommitmentParams returns the Pedersen parameters balances are committed
// under, or None when balance commitments are disabled.
func (m *Manager) CommitmentParams() (fn.Option[*commitment.Params], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return fn.None[*commitment.Params](), errNotInitialized()
	}
	if m.committer == nil {
		return fn.None[*commitment.Params](), nil
	}

	return fn.Some(m.committer.Params()), nil
}

// Stop flushes the audit log and releases the channel keys. The manager
// must not be used afterwards, and Initialize fails once it has been
// stopped.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return
	}

	m.audit.Stop()
	if n := m.audit.Pending(); n > 0 {
		log.Warnf("%d of %d audit entries were not stored", n,
			m.audit.Len())
	}

	m.keys.Zero()
	if m.committer != nil {
		m.committer.Zero()
	}
	m.ready = false
	m.stopped = true
}

func errNotInitialized() error {
	return channel.NewError(channel.ErrNotInitialized,
		"channel is not initialized", nil)
}
