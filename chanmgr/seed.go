// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanmgr

import (
	"github.com/btcsuite/btcchan/keychain"
	"github.com/btcsuite/btcchan/snacl"
)

// SeedSource provides the seed the channel keys are derived from.
type SeedSource interface {
	// Seed returns a seed suitable for the security level. The caller
	// zeroes the returned slice once the keys are derived.
	Seed(securityBits uint16) ([]byte, error)

	// Encrypted reports whether the seed is kept encrypted at rest.
	Encrypted() bool
}

// RandomSeed draws a fresh seed on every call.
type RandomSeed struct{}

// Seed implements SeedSource.
func (RandomSeed) Seed(securityBits uint16) ([]byte, error) {
	return keychain.GenerateSeed(securityBits)
}

// Encrypted implements SeedSource.
func (RandomSeed) Encrypted() bool {
	return false
}

// StaticSeed is a seed held in plain text.
type StaticSeed []byte

// Seed implements SeedSource.
func (s StaticSeed) Seed(uint16) ([]byte, error) {
	return append([]byte(nil), s...), nil
}

// Encrypted implements SeedSource.
func (StaticSeed) Encrypted() bool {
	return false
}

// SealedSeed is a seed encrypted with snacl.Seal. It is opened with
// Passphrase each time keys are derived.
type SealedSeed struct {
	Envelope   []byte
	Passphrase []byte
}

// Seed implements SeedSource.
func (s SealedSeed) Seed(uint16) ([]byte, error) {
	return snacl.Open(s.Passphrase, s.Envelope)
}

// Encrypted implements SeedSource.
func (SealedSeed) Encrypted() bool {
	return true
}
