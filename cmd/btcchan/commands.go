// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/btcsuite/btcchan/chanmgr"
	"github.com/btcsuite/btcchan/channel"
	"github.com/btcsuite/btcchan/commitment"
	"github.com/btcsuite/btcchan/internal/cfgutil"
	"github.com/btcsuite/btcchan/internal/prompt"
)

var (
	// errUsage is returned for a malformed command line.
	errUsage = errors.New("usage")

	// errNoCommitments is returned by params when commitments are off.
	errNoCommitments = errors.New("balance commitments are disabled, " +
		"enable them with --commitbalances")
)

// cmdContext is what a command runs against.
type cmdContext struct {
	cfg *config
	m   *chanmgr.Manager
	w   io.Writer
}

// commandHandler runs a command against an initialized manager.
type commandHandler func(c *cmdContext, args []string) error

// commandUsage lists the commands for help output.
const commandUsage = `Commands:
  init                              Create the channel
  pay <amount> <recipient> [memo]   Pay a party from the local party
  state [nonce]                     Show the current or a historical state
  history                           List committed transactions
  logs                              Show the audit log
  wallet                            Show the key material summary
  params [file]                     Show the balance commitment parameters,
                                    or save them to or check them against file`

// commandHandlers maps every command except init onto its handler.
var commandHandlers = map[string]commandHandler{
	"pay":     payCmd,
	"state":   stateCmd,
	"history": historyCmd,
	"logs":    logsCmd,
	"wallet":  walletCmd,
	"params":  paramsCmd,
}

// run executes the command named by args[0].
func run(cfg *config, args []string, reader *bufio.Reader,
	w io.Writer) error {

	if len(args) == 0 {
		return fmt.Errorf("%w: no command given\n%s", errUsage,
			commandUsage)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if args[0] == "init" {
		return initCmd(cfg, store, reader, w)
	}

	handler, ok := commandHandlers[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q\n%s", errUsage,
			args[0], commandUsage)
	}

	snapshot, err := store.FetchChannel()
	if errors.Is(err, chanmgr.ErrChannelNotFound) {
		return fmt.Errorf("no channel on %v, create one with init",
			cfg.activeNet.Network)
	}
	if err != nil {
		return err
	}

	seed, err := loadSeed(cfg, reader, w)
	if err != nil {
		return err
	}

	m := newManager(cfg, seed, store)
	if err := m.Initialize(snapshot.Config); err != nil {
		return err
	}
	defer m.Stop()

	return handler(&cmdContext{cfg: cfg, m: m, w: w}, args[1:])
}

func newManager(cfg *config, seed chanmgr.SeedSource,
	store chanmgr.Store) *chanmgr.Manager {

	mgrCfg := chanmgr.Config{
		LocalParty:     channel.PartyIndex(cfg.LocalParty),
		Seed:           seed,
		Store:          store,
		SignUpdates:    cfg.SignUpdates,
		CommitBalances: cfg.CommitBalances,
	}
	if cfg.verifyKey != nil {
		mgrCfg.Verifier = chanmgr.SchnorrVerifier{PubKey: cfg.verifyKey}
	}

	return chanmgr.New(mgrCfg)
}

// initCmd creates the channel described by the configuration.
func initCmd(cfg *config, store chanmgr.Store, reader *bufio.Reader,
	w io.Writer) error {

	snapshot, err := store.FetchChannel()
	switch {
	case err == nil:
		return fmt.Errorf("a channel with %d committed updates "+
			"already exists on %v", len(snapshot.Updates),
			cfg.activeNet.Network)

	case !errors.Is(err, chanmgr.ErrChannelNotFound):
		return err
	}

	// A seed without a channel is left over from an interrupted init.
	seed, err := loadSeed(cfg, reader, w)
	switch {
	case errors.Is(err, errNoSeed):
		seed, err = createSeed(cfg, reader, w)

	case err == nil:
		reuse, perr := prompt.ReuseSeed(reader, w)
		if perr != nil {
			return perr
		}
		if !reuse {
			seed, err = createSeed(cfg, reader, w)
		}
	}
	if err != nil {
		return err
	}

	m := newManager(cfg, seed, store)
	if err := m.Initialize(cfg.channelConfig()); err != nil {
		return err
	}
	defer m.Stop()

	log.Infof("Created channel on %v", cfg.activeNet.Network)

	return printState(m, w)
}

func printState(m *chanmgr.Manager, w io.Writer) error {
	state, err := m.GetState()
	if err != nil {
		return err
	}
	wallet, err := m.GetWalletState()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, state)
	fmt.Fprintln(w, wallet)
	return nil
}

// payCmd transfers an amount from the local party to a recipient.
func payCmd(c *cmdContext, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: pay <amount> <recipient> [memo]",
			errUsage)
	}

	var amount cfgutil.AmountFlag
	if err := amount.UnmarshalFlag(args[0]); err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}
	recipient, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", args[1], err)
	}

	req := channel.Request{
		Sender:    channel.PartyIndex(c.cfg.LocalParty),
		Recipient: channel.PartyIndex(recipient),
		Amount:    amount.Amount,
	}
	if len(args) == 3 {
		req.Data = []byte(args[2])
	}

	update, err := c.m.Transfer(req)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.w, "committed %v\n", update.Transaction)
	fmt.Fprintln(c.w, update.NewState)
	for i, commit := range update.Commitments {
		fmt.Fprintf(c.w, "commitment %v=%v\n", channel.PartyIndex(i),
			commit)
	}
	return nil
}

// stateCmd prints the current state, or the state at a given nonce.
func stateCmd(c *cmdContext, args []string) error {
	switch len(args) {
	case 0:
		return printState(c.m, c.w)

	case 1:
		nonce, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid nonce %q: %w", args[0], err)
		}
		state, err := c.m.StateAt(nonce)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.w, state)
		return nil

	default:
		return fmt.Errorf("%w: state [nonce]", errUsage)
	}
}

// historyCmd lists committed transactions, oldest first.
func historyCmd(c *cmdContext, _ []string) error {
	txs, err := c.m.GetTransactions()
	if err != nil {
		return err
	}

	for _, tx := range txs {
		line := fmt.Sprintf("%s %v",
			tx.Timestamp.Format(time.RFC3339), tx)
		if len(tx.Data) > 0 {
			line += fmt.Sprintf(" memo=%q", tx.Data)
		}
		fmt.Fprintln(c.w, line)
	}
	return nil
}

// logsCmd prints the audit log.
func logsCmd(c *cmdContext, _ []string) error {
	entries, err := c.m.GetLogs()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		fmt.Fprintln(c.w, entry)
	}
	return nil
}

// walletCmd prints the key material summary.
func walletCmd(c *cmdContext, _ []string) error {
	wallet, err := c.m.GetWalletState()
	if err != nil {
		return err
	}

	fmt.Fprintln(c.w, wallet)
	return nil
}

// paramsCmd prints the balance commitment parameters. Given a file it writes
// the encoded parameters there, or checks them against the file's contents
// if it already exists.
func paramsCmd(c *cmdContext, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: params [file]", errUsage)
	}

	paramsOpt, err := c.m.CommitmentParams()
	if err != nil {
		return err
	}
	params, err := paramsOpt.UnwrapOrErr(errNoCommitments)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Fprintf(c.w, "G=%x\nH=%x\nsecuritybits=%d\n",
			params.G.SerializeCompressed(),
			params.H.SerializeCompressed(), params.SecurityBits)
		return nil
	}

	path := cleanAndExpandPath(args[0])
	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		var b bytes.Buffer
		if err := params.Encode(&b); err != nil {
			return err
		}
		if err := os.WriteFile(path, b.Bytes(), 0600); err != nil {
			return err
		}
		fmt.Fprintf(c.w, "wrote parameters to %s\n", path)
		return nil

	case err != nil:
		return err
	}
	defer f.Close()

	stored, err := commitment.DecodeParams(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if !stored.Equal(params) {
		return fmt.Errorf("parameters in %s do not match the channel",
			path)
	}

	fmt.Fprintf(c.w, "parameters in %s match\n", path)
	return nil
}
