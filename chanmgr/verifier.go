// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanmgr

import (
	"fmt"

	"github.com/btcsuite/btcchan/channel"
	"github.com/btcsuite/btcchan/keychain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// UpdateSigner signs a state update before it is committed.
type UpdateSigner interface {
	SignUpdate(update *channel.StateUpdate) ([]byte, error)
}

// UpdateVerifier decides whether a state update may be committed. It sees
// the update after signing. Returning an error vetoes the update.
type UpdateVerifier interface {
	VerifyUpdate(update *channel.StateUpdate) error
}

// KeySigner signs the digest of the new state with the channel spend key.
type KeySigner struct {
	keys *keychain.KeyMaterial
}

// NewKeySigner creates a signer over keys.
func NewKeySigner(keys *keychain.KeyMaterial) *KeySigner {
	return &KeySigner{keys: keys}
}

// SignUpdate implements UpdateSigner.
func (s *KeySigner) SignUpdate(update *channel.StateUpdate) ([]byte, error) {
	digest, err := update.NewState.Digest()
	if err != nil {
		return nil, err
	}

	return s.keys.Sign(digest[:])
}

// SchnorrVerifier accepts updates carrying a valid BIP-340 signature by
// PubKey over the new state's digest.
type SchnorrVerifier struct {
	PubKey *btcec.PublicKey
}

// VerifyUpdate implements UpdateVerifier.
func (v SchnorrVerifier) VerifyUpdate(update *channel.StateUpdate) error {
	if len(update.Sig) == 0 {
		return fmt.Errorf("update %d is not signed",
			update.Transaction.ID)
	}

	sig, err := schnorr.ParseSignature(update.Sig)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}

	digest, err := update.NewState.Digest()
	if err != nil {
		return err
	}

	if !sig.Verify(digest[:], v.PubKey) {
		return fmt.Errorf("invalid signature for nonce %d",
			update.NewState.Nonce)
	}

	return nil
}

// VerifierFunc adapts a function to the UpdateVerifier interface.
type VerifierFunc func(update *channel.StateUpdate) error

// VerifyUpdate implements UpdateVerifier.
func (f VerifierFunc) VerifyUpdate(update *channel.StateUpdate) error {
	return f(update)
}
