// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain derives the stealth key pair that identifies the local
// side of a payment channel.
//
// Keys are derived from a BIP-32 master key using the silent payment paths
// of BIP-352:
//
//	scan:  m/352'/coin_type'/0'/1'/0
//	spend: m/352'/coin_type'/0'/0'/0
//
// The same seed, network and security level always yield the same keys.
package keychain

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcchan/internal/zero"
	"github.com/btcsuite/btcchan/netparams"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// PurposeStealth is the BIP-43 purpose used for stealth keys.
	PurposeStealth uint32 = 352

	// MinSecurityBits is the lowest accepted security level.
	MinSecurityBits = 128

	// MaxSecurityBits is the highest accepted security level. A seed of
	// MaxSecurityBits/8 bytes is the largest BIP-32 allows.
	MaxSecurityBits = 512

	// DefaultSecurityBits is used when no security level is configured.
	DefaultSecurityBits = 128

	scanBranch  uint32 = 1
	spendBranch uint32 = 0
)

// blindingKeyTag domain separates the commitment blinding key.
var blindingKeyTag = []byte("btcchan/blinding-key")

// ErrKeyDerivation is the root of every failure returned by Derive.
var ErrKeyDerivation = errors.New("key derivation failed")

// StealthKeys is the public view of a KeyMaterial. It never contains private
// data.
type StealthKeys struct {
	ScanKey  *btcec.PublicKey
	SpendKey *btcec.PublicKey
}

// String renders both keys as compressed hex.
func (s StealthKeys) String() string {
	return fmt.Sprintf("scan=%x spend=%x",
		s.ScanKey.SerializeCompressed(),
		s.SpendKey.SerializeCompressed())
}

// KeyMaterial holds the derived stealth key pair. The private halves never
// leave this package; callers sign through Sign.
type KeyMaterial struct {
	network      netparams.Network
	securityBits uint16

	scanKey  *btcec.PrivateKey
	spendKey *btcec.PrivateKey
}

// ValidateSecurityBits checks that bits is a multiple of 8 within the
// accepted range.
func ValidateSecurityBits(bits uint16) error {
	if bits < MinSecurityBits || bits > MaxSecurityBits || bits%8 != 0 {
		return fmt.Errorf("%w: security level %d must be a multiple "+
			"of 8 between %d and %d", ErrKeyDerivation, bits,
			MinSecurityBits, MaxSecurityBits)
	}

	return nil
}

// seedLen returns the number of seed bytes required for the security level.
func seedLen(bits uint16) int {
	n := int(bits) / 8
	if n < hdkeychain.MinSeedBytes {
		n = hdkeychain.MinSeedBytes
	}
	return n
}

// GenerateSeed returns a fresh random seed long enough for the requested
// security level.
func GenerateSeed(securityBits uint16) ([]byte, error) {
	if err := ValidateSecurityBits(securityBits); err != nil {
		return nil, err
	}

	return hdkeychain.GenerateSeed(uint8(seedLen(securityBits)))
}

// Derive deterministically derives the stealth key pair for the network from
// seed. The seed slice is not retained.
func Derive(seed []byte, network netparams.Network,
	securityBits uint16) (*KeyMaterial, error) {

	if err := ValidateSecurityBits(securityBits); err != nil {
		return nil, err
	}

	switch {
	case len(seed) == 0:
		return nil, fmt.Errorf("%w: empty seed", ErrKeyDerivation)

	case len(seed) < seedLen(securityBits):
		return nil, fmt.Errorf("%w: seed of %d bytes is too short "+
			"for %d bit security", ErrKeyDerivation, len(seed),
			securityBits)

	case len(seed) > hdkeychain.MaxSeedBytes:
		return nil, fmt.Errorf("%w: seed of %d bytes exceeds %d",
			ErrKeyDerivation, len(seed), hdkeychain.MaxSeedBytes)
	}

	params, err := netparams.ParamsForNetwork(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}

	master, err := hdkeychain.NewMaster(seed, params.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	defer master.Zero()

	account, err := deriveHardened(
		master, PurposeStealth, params.CoinType, 0,
	)
	if err != nil {
		return nil, err
	}
	defer account.Zero()

	scanKey, err := deriveLeaf(account, scanBranch)
	if err != nil {
		return nil, err
	}
	spendKey, err := deriveLeaf(account, spendBranch)
	if err != nil {
		scanKey.Zero()
		return nil, err
	}

	log.Debugf("Derived stealth keys for %v at %d bit security",
		network, securityBits)

	return &KeyMaterial{
		network:      network,
		securityBits: securityBits,
		scanKey:      scanKey,
		spendKey:     spendKey,
	}, nil
}

// deriveHardened walks a chain of hardened child indexes from key.
func deriveHardened(key *hdkeychain.ExtendedKey,
	path ...uint32) (*hdkeychain.ExtendedKey, error) {

	for _, index := range path {
		child, err := key.Derive(hdkeychain.HardenedKeyStart + index)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
		}
		key = child
	}

	return key, nil
}

// deriveLeaf derives branch'/0 below the account key and returns its private
// key.
func deriveLeaf(account *hdkeychain.ExtendedKey,
	branch uint32) (*btcec.PrivateKey, error) {

	branchKey, err := deriveHardened(account, branch)
	if err != nil {
		return nil, err
	}
	defer branchKey.Zero()

	leaf, err := branchKey.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	defer leaf.Zero()

	priv, err := leaf.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}

	return priv, nil
}

// Network returns the network the keys were derived for.
func (k *KeyMaterial) Network() netparams.Network {
	return k.network
}

// SecurityBits returns the security level the keys were derived at.
func (k *KeyMaterial) SecurityBits() uint16 {
	return k.securityBits
}

// PublicView returns the public halves of the key pair.
func (k *KeyMaterial) PublicView() StealthKeys {
	return StealthKeys{
		ScanKey:  k.scanKey.PubKey(),
		SpendKey: k.spendKey.PubKey(),
	}
}

// Sign produces a BIP-340 signature over digest with the spend key.
func (k *KeyMaterial) Sign(digest []byte) ([]byte, error) {
	sig, err := schnorr.Sign(k.spendKey, digest)
	if err != nil {
		return nil, err
	}

	return sig.Serialize(), nil
}

// BlindingKey derives the secret that balance commitments are blinded with.
// The caller should zero it once done.
func (k *KeyMaterial) BlindingKey() []byte {
	scan := k.scanKey.Serialize()
	defer zero.Bytes(scan)

	key := chainhash.TaggedHash(blindingKeyTag, scan)
	return key[:]
}

// Zero clears the private keys. The KeyMaterial must not be used afterwards.
func (k *KeyMaterial) Zero() {
	k.scanKey.Zero()
	k.spendKey.Zero()
}

// ParsePubKey decodes a hex encoded compressed public key.
func ParsePubKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(b)
}
