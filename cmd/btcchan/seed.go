// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcchan/chanmgr"
	"github.com/btcsuite/btcchan/internal/cfgutil"
	"github.com/btcsuite/btcchan/internal/prompt"
	"github.com/btcsuite/btcchan/internal/zero"
	"github.com/btcsuite/btcchan/keychain"
	"github.com/btcsuite/btcchan/snacl"
)

const (
	seedFilename       = "seed"
	sealedSeedFilename = "seed.enc"
)

// seedScryptN is the scrypt cost used when sealing a new seed.
var seedScryptN = snacl.DefaultN

// errNoSeed is returned when the network directory holds no seed file.
var errNoSeed = errors.New("no channel seed found")

// seedPaths returns the plain and sealed seed file paths of the network.
func seedPaths(cfg *config) (string, string) {
	dir := cfg.netDir()
	return filepath.Join(dir, seedFilename),
		filepath.Join(dir, sealedSeedFilename)
}

// loadSeed returns the seed stored for the active network, prompting for the
// passphrase when it is sealed.
func loadSeed(cfg *config, reader *bufio.Reader,
	w io.Writer) (chanmgr.SeedSource, error) {

	plainPath, sealedPath := seedPaths(cfg)

	exists, err := cfgutil.FileExists(sealedPath)
	if err != nil {
		return nil, err
	}
	if exists {
		envelope, err := os.ReadFile(sealedPath)
		if err != nil {
			return nil, err
		}
		pass, err := prompt.SeedPassphrase(reader, w)
		if err != nil {
			return nil, err
		}
		return chanmgr.SealedSeed{
			Envelope:   envelope,
			Passphrase: pass,
		}, nil
	}

	exists, err = cfgutil.FileExists(plainPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errNoSeed
	}

	raw, err := os.ReadFile(plainPath)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("malformed seed file %s: %w",
			plainPath, err)
	}

	return chanmgr.StaticSeed(seed), nil
}

// createSeed draws a new seed for the active network and writes it to disk,
// sealed with a passphrase when encryption is enabled. Any earlier seed file
// is replaced.
func createSeed(cfg *config, reader *bufio.Reader,
	w io.Writer) (chanmgr.SeedSource, error) {

	plainPath, sealedPath := seedPaths(cfg)
	if err := os.MkdirAll(cfg.netDir(), 0700); err != nil {
		return nil, err
	}

	seed, err := keychain.GenerateSeed(cfg.SecurityBits)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(seed)

	if !cfg.Encrypt {
		err := os.WriteFile(
			plainPath, []byte(hex.EncodeToString(seed)), 0600,
		)
		if err != nil {
			return nil, err
		}
		_ = os.Remove(sealedPath)

		return chanmgr.StaticSeed(append([]byte(nil), seed...)), nil
	}

	pass, err := prompt.NewSeedPassphrase(reader, w)
	if err != nil {
		return nil, err
	}
	envelope, err := snacl.Seal(
		pass, seed, seedScryptN, snacl.DefaultR, snacl.DefaultP,
	)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(sealedPath, envelope, 0600); err != nil {
		return nil, err
	}
	_ = os.Remove(plainPath)

	return chanmgr.SealedSeed{Envelope: envelope, Passphrase: pass}, nil
}
