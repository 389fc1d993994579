// Copyright (c) 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package snacl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	// testN keeps scrypt cheap in unit tests.
	testN = 1024
)

var (
	password = []byte("sikrit")
	message  = []byte("this is a secret message of sorts")
)

// TestSecretKeyRoundTrip covers key creation, marshalling, re-derivation and
// encryption with a single key.
func TestSecretKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := NewSecretKey(&password, testN, DefaultR, DefaultP)
	require.NoError(t, err)

	params := key.Marshal()

	var sk SecretKey
	require.NoError(t, sk.Unmarshal(params))
	require.NoError(t, sk.DeriveKey(&password))
	require.Equal(t, key.Key[:], sk.Key[:])

	blob, err := key.Encrypt(message)
	require.NoError(t, err)

	decrypted, err := sk.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, message, decrypted)

	// Flip a byte inside the sealed box.
	blob[len(blob)-15]++
	_, err = key.Decrypt(blob)
	require.ErrorIs(t, err, ErrDecryptFailed)

	key.Zero()
	require.Equal(t, [KeySize]byte{}, [KeySize]byte(*key.Key))

	require.NoError(t, key.DeriveKey(&password))
	bogus := []byte("bogus")
	require.ErrorIs(t, key.DeriveKey(&bogus), ErrInvalidPassword)
}

// TestUnmarshalMalformed ensures short parameter blobs are rejected.
func TestUnmarshalMalformed(t *testing.T) {
	t.Parallel()

	var sk SecretKey
	require.ErrorIs(t, sk.Unmarshal([]byte{1, 2, 3}), ErrMalformed)

	_, err := (&CryptoKey{}).Decrypt([]byte{1})
	require.ErrorIs(t, err, ErrMalformed)
}

// TestSealOpen checks the envelope helpers used to store seeds.
func TestSealOpen(t *testing.T) {
	t.Parallel()

	seed := []byte("0123456789abcdef0123456789abcdef")

	envelope, err := Seal(password, seed, testN, DefaultR, DefaultP)
	require.NoError(t, err)
	require.NotContains(t, string(envelope), string(seed))

	opened, err := Open(password, envelope)
	require.NoError(t, err)
	require.Equal(t, seed, opened)

	_, err = Open([]byte("wrong password"), envelope)
	require.ErrorIs(t, err, ErrInvalidPassword)

	_, err = Open(password, envelope[:10])
	require.ErrorIs(t, err, ErrMalformed)
}
