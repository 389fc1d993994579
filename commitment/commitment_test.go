// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commitment

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

// TestParamsGenerators ensures H is a valid point distinct from G and that
// the parameters are the same every time.
func TestParamsGenerators(t *testing.T) {
	t.Parallel()

	params := NewParams(DefaultSecurityBits)
	require.True(t, params.H.IsOnCurve())
	require.False(t, params.G.IsEqual(params.H))
	require.True(t, params.Equal(NewParams(DefaultSecurityBits)))
	require.False(t, params.Equal(NewParams(256)))

	var g btcec.JacobianPoint
	btcec.GeneratorJacobian(&g)
	g.ToAffine()
	require.True(t, params.G.IsEqual(btcec.NewPublicKey(&g.X, &g.Y)))
}

// TestParamsEncoding round trips parameters and rejects degenerate ones.
func TestParamsEncoding(t *testing.T) {
	t.Parallel()

	params := NewParams(192)

	var b bytes.Buffer
	require.NoError(t, params.Encode(&b))

	decoded, err := DecodeParams(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	require.True(t, params.Equal(decoded))

	same := &Params{G: params.G, H: params.G, SecurityBits: 128}
	b.Reset()
	require.NoError(t, same.Encode(&b))
	_, err = DecodeParams(&b)
	require.ErrorIs(t, err, ErrInvalidParams)
}

// TestCommitOpen checks a commitment opens only to its value and blinding
// factor.
func TestCommitOpen(t *testing.T) {
	t.Parallel()

	params := NewParams(DefaultSecurityBits)
	blind := BlindingFactor(testKey, 1, 0)

	c, err := params.Commit(1000, blind)
	require.NoError(t, err)
	require.Len(t, c.String(), 2*Size)

	require.True(t, params.Verify(c, 1000, blind))
	require.False(t, params.Verify(c, 1001, blind))
	require.False(t, params.Verify(c, 1000, BlindingFactor(testKey, 2, 0)))

	// Different blinding factors hide equal values.
	other, err := params.Commit(1000, BlindingFactor(testKey, 1, 1))
	require.NoError(t, err)
	require.NotEqual(t, c, other)

	// A zero value is still a valid commitment under a blinding factor.
	zeroValue, err := params.Commit(0, blind)
	require.NoError(t, err)
	require.True(t, params.Verify(zeroValue, 0, blind))

	// Nothing blinds the point at infinity.
	_, err = params.Commit(0, new(btcec.ModNScalar))
	require.ErrorIs(t, err, ErrInvalidCommitment)
}

// TestCommitHomomorphic checks that commitments add like the values and
// blinding factors they commit to.
func TestCommitHomomorphic(t *testing.T) {
	t.Parallel()

	params := NewParams(DefaultSecurityBits)
	r1 := BlindingFactor(testKey, 3, 0)
	r2 := BlindingFactor(testKey, 3, 1)

	c1, err := params.Commit(40, r1)
	require.NoError(t, err)
	c2, err := params.Commit(60, r2)
	require.NoError(t, err)

	p1, err := btcec.ParsePubKey(c1[:])
	require.NoError(t, err)
	p2, err := btcec.ParsePubKey(c2[:])
	require.NoError(t, err)

	var j1, j2, sum btcec.JacobianPoint
	p1.AsJacobian(&j1)
	p2.AsJacobian(&j2)
	btcec.AddNonConst(&j1, &j2, &sum)
	sum.ToAffine()

	var rSum btcec.ModNScalar
	rSum.Add2(r1, r2)
	total, err := params.Commit(100, &rSum)
	require.NoError(t, err)
	require.Equal(t,
		total[:], btcec.NewPublicKey(&sum.X, &sum.Y).SerializeCompressed(),
	)
}

// TestCommitterBalances commits to a balance vector and rejects tampered or
// mismatched commitments.
func TestCommitterBalances(t *testing.T) {
	t.Parallel()

	committer := NewCommitter(NewParams(DefaultSecurityBits), testKey)
	balances := []uint64{70, 30}

	commitments, err := committer.CommitBalances(5, balances)
	require.NoError(t, err)
	require.Len(t, commitments, 2)
	require.NoError(t, committer.VerifyBalances(5, balances, commitments))

	again, err := committer.CommitBalances(5, balances)
	require.NoError(t, err)
	require.Equal(t, commitments, again)

	require.ErrorIs(t,
		committer.VerifyBalances(6, balances, commitments),
		ErrInvalidCommitment,
	)
	require.ErrorIs(t,
		committer.VerifyBalances(5, []uint64{71, 29}, commitments),
		ErrInvalidCommitment,
	)
	require.ErrorIs(t,
		committer.VerifyBalances(5, balances, commitments[:1]),
		ErrInvalidCommitment,
	)

	other := NewCommitter(
		NewParams(DefaultSecurityBits), bytes.Repeat([]byte{1}, 32),
	)
	require.ErrorIs(t,
		other.VerifyBalances(5, balances, commitments),
		ErrInvalidCommitment,
	)

	committer.Zero()
	require.Equal(t, make([]byte, 32), committer.key)
}
