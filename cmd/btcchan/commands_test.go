// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcchan/chandb"
	"github.com/btcsuite/btcchan/channel"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"
)

// runCmd loads the configuration from args and runs the command in it,
// feeding input to any prompt.
func runCmd(t *testing.T, dir, input string, args ...string) (string,
	error) {

	t.Helper()

	cfg, remaining, err := loadConfig(testArgs(t, dir, args...))
	require.NoError(t, err)

	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader(input))
	err = run(cfg, remaining, reader, &out)

	return out.String(), err
}

func TestCommands(t *testing.T) {
	for _, backend := range []string{"bdb", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			testCommands(t, backend)
		})
	}
}

func testCommands(t *testing.T, backend string) {
	dir := t.TempDir()
	cmd := func(input string, args ...string) (string, error) {
		args = append(
			[]string{"--regtest", "--dbbackend=" + backend}, args...,
		)
		return runCmd(t, dir, input, args...)
	}

	_, err := cmd("", "state")
	require.ErrorContains(t, err, "create one with init")

	out, err := cmd("", "--initialbalance=100sat", "init")
	require.NoError(t, err)
	require.Contains(t, out, "nonce=0 balances=[party0=100 party1=0]")
	require.Contains(t, out, "network=regtest encrypted=false")

	_, err = cmd("", "init")
	require.ErrorContains(t, err, "already exists")

	out, err = cmd("", "pay", "30sat", "1", "coffee")
	require.NoError(t, err)
	require.Contains(t, out, "nonce=1 balances=[party0=70 party1=30]")

	_, err = cmd("", "pay", "80sat", "1")
	require.ErrorIs(t, err, channel.ErrInsufficientBalance)

	_, err = cmd("", "pay", "80sat")
	require.ErrorIs(t, err, errUsage)

	_, err = cmd("", "pay", "lots", "1")
	require.ErrorContains(t, err, "invalid amount")

	out, err = cmd("", "state", "0")
	require.NoError(t, err)
	require.Equal(t, "nonce=0 balances=[party0=100 party1=0]\n", out)

	out, err = cmd("", "state")
	require.NoError(t, err)
	require.Contains(t, out, "nonce=1 balances=[party0=70 party1=30]")

	out, err = cmd("", "history")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "transaction 1: party0 -> party1")
	require.Contains(t, lines[0], `memo="coffee"`)

	out, err = cmd("", "logs")
	require.NoError(t, err)
	require.Contains(t, out, "channel initialized")
	require.Contains(t, out, "transaction rejected: ")
	require.Contains(t, out, "channel restored at nonce 1")

	out, err = cmd("", "wallet")
	require.NoError(t, err)
	require.Contains(t, out, "keys=scan=")

	_, err = cmd("", "close")
	require.ErrorIs(t, err, errUsage)

	_, err = cmd("")
	require.ErrorIs(t, err, errUsage)
}

// TestInitReusesSeed checks that a seed left without a channel can be
// reused, which yields the same keys.
func TestInitReusesSeed(t *testing.T) {
	dir := t.TempDir()
	cmd := func(input string, args ...string) (string, error) {
		return runCmd(t, dir, input, append(
			[]string{"--regtest"}, args...,
		)...)
	}

	_, err := cmd("", "init")
	require.NoError(t, err)
	want, err := cmd("", "wallet")
	require.NoError(t, err)

	netDir := filepath.Join(dir, "regtest")
	require.NoError(t, os.Remove(filepath.Join(netDir, chandb.DBName)))

	_, err = cmd("yes\n", "init")
	require.NoError(t, err)
	got, err := cmd("", "wallet")
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Declining draws a new seed.
	require.NoError(t, os.Remove(filepath.Join(netDir, chandb.DBName)))
	_, err = cmd("no\n", "init")
	require.NoError(t, err)
	got, err = cmd("", "wallet")
	require.NoError(t, err)
	require.NotEqual(t, want, got)
}

// TestEncryptedSeed creates a channel with a sealed seed and opens it again
// with the passphrase.
func TestEncryptedSeed(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("passphrase prompts read from the terminal")
	}

	restore := seedScryptN
	seedScryptN = 1024
	defer func() { seedScryptN = restore }()

	dir := t.TempDir()
	cmd := func(input string, args ...string) (string, error) {
		return runCmd(t, dir, input, append(
			[]string{"--regtest"}, args...,
		)...)
	}

	out, err := cmd("secret\nsecret\n", "--encrypt", "init")
	require.NoError(t, err)
	require.Contains(t, out, "encrypted=true")

	netDir := filepath.Join(dir, "regtest")
	_, err = os.Stat(filepath.Join(netDir, sealedSeedFilename))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(netDir, seedFilename))
	require.True(t, os.IsNotExist(err))

	out, err = cmd("secret\n", "wallet")
	require.NoError(t, err)
	require.Contains(t, out, "encrypted=true")

	_, err = cmd("wrong\n", "wallet")
	require.ErrorIs(t, err, channel.ErrKeyDerivation)
}

// spendKeyHex extracts the spend key from the output of the wallet command.
func spendKeyHex(t *testing.T, walletOut string) string {
	t.Helper()

	_, rest, ok := strings.Cut(walletOut, "spend=")
	require.True(t, ok, walletOut)
	require.GreaterOrEqual(t, len(rest), 66)

	return rest[:66]
}

// TestVerifyKey signs updates and checks them, stored and new, against a
// key given on the command line.
func TestVerifyKey(t *testing.T) {
	dir := t.TempDir()
	cmd := func(args ...string) (string, error) {
		return runCmd(t, dir, "", append(
			[]string{"--regtest", "--initialbalance=100sat"},
			args...,
		)...)
	}

	_, err := cmd("init")
	require.NoError(t, err)
	out, err := cmd("wallet")
	require.NoError(t, err)
	spend := spendKeyHex(t, out)
	scan, _, ok := strings.Cut(
		strings.SplitN(out, "scan=", 2)[1], " ",
	)
	require.True(t, ok)

	_, err = cmd("--signupdates", "--verifykey="+spend, "pay", "10sat", "1")
	require.NoError(t, err)
	_, err = cmd("--signupdates", "--verifykey="+spend, "pay", "5sat", "1")
	require.NoError(t, err)

	// Unsigned updates are vetoed.
	_, err = cmd("--verifykey="+spend, "pay", "5sat", "1")
	require.ErrorIs(t, err, channel.ErrUpdateRejected)

	// The stored history carries signatures by the spend key only.
	out, err = cmd("--verifykey="+spend, "state")
	require.NoError(t, err)
	require.Contains(t, out, "nonce=2 balances=[party0=85 party1=15]")

	_, err = cmd("--verifykey="+scan, "state")
	require.ErrorIs(t, err, channel.ErrUpdateRejected)

	_, _, err = loadConfig(testArgs(t, dir, "--verifykey=zz", "state"))
	require.ErrorContains(t, err, "invalid --verifykey")
}

// TestCommitBalances attaches commitments to payments and saves and checks
// the commitment parameters.
func TestCommitBalances(t *testing.T) {
	dir := t.TempDir()
	cmd := func(args ...string) (string, error) {
		return runCmd(t, dir, "", append(
			[]string{"--regtest", "--dbbackend=sqlite"}, args...,
		)...)
	}

	_, err := cmd("--initialbalance=100sat", "init")
	require.NoError(t, err)

	_, err = cmd("params")
	require.ErrorIs(t, err, errNoCommitments)

	out, err := cmd("--commitbalances", "pay", "30sat", "1")
	require.NoError(t, err)
	require.Contains(t, out, "commitment party0=")
	require.Contains(t, out, "commitment party1=")

	// A restore checks the stored commitments.
	out, err = cmd("--commitbalances", "params")
	require.NoError(t, err)
	require.Contains(t, out, "securitybits=128")

	paramsFile := filepath.Join(dir, "pedersen.params")
	out, err = cmd("--commitbalances", "params", paramsFile)
	require.NoError(t, err)
	require.Contains(t, out, "wrote parameters")

	out, err = cmd("--commitbalances", "params", paramsFile)
	require.NoError(t, err)
	require.Contains(t, out, "match")

	require.NoError(t, os.WriteFile(paramsFile, []byte{1, 2, 3}, 0600))
	_, err = cmd("--commitbalances", "params", paramsFile)
	require.ErrorContains(t, err, "decode")

	_, err = cmd("--commitbalances", "params", "a", "b")
	require.ErrorIs(t, err, errUsage)
}
