// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package commitment implements Pedersen commitments over secp256k1.
//
// A commitment to a value v under the blinding factor r is the point
//
//	C = v*G + r*H
//
// where G is the curve generator and H is a second generator whose discrete
// logarithm relative to G is unknown. H is obtained by hashing a fixed tag
// onto the curve so anyone can rederive and check it.
package commitment

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/btcsuite/btcchan/internal/zero"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// DefaultSecurityBits is the security level used when none is given.
	DefaultSecurityBits = 128

	// Size is the length of a serialized commitment.
	Size = btcec.PubKeyBytesLenCompressed

	typeParamsG            tlv.Type = 1
	typeParamsH            tlv.Type = 2
	typeParamsSecurityBits tlv.Type = 3
)

var (
	// generatorTag is hashed onto the curve to find H.
	generatorTag = []byte("btcchan/pedersen/generator")

	// blindingTag domain separates blinding factor derivation.
	blindingTag = []byte("btcchan/pedersen/blinding")
)

var (
	// ErrInvalidParams is returned when decoded parameters do not describe
	// a usable pair of generators.
	ErrInvalidParams = errors.New("invalid pedersen parameters")

	// ErrInvalidCommitment is returned for a commitment that is not a
	// point on the curve, or that would be the point at infinity.
	ErrInvalidCommitment = errors.New("invalid commitment")
)

var (
	blindingGenOnce sync.Once
	blindingGen     *btcec.PublicKey
)

// blindingGenerator returns H, computing it on first use.
func blindingGenerator() *btcec.PublicKey {
	blindingGenOnce.Do(func() {
		blindingGen = hashToCurve(generatorTag)
	})
	return blindingGen
}

// hashToCurve maps tag onto the curve by try and increment. The first counter
// whose tagged hash is a valid x coordinate yields the point with even y.
func hashToCurve(tag []byte) *btcec.PublicKey {
	var counter [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		digest := chainhash.TaggedHash(tag, counter[:])

		var x, y btcec.FieldVal
		if overflow := x.SetByteSlice(digest[:]); overflow {
			continue
		}
		if !btcec.DecompressY(&x, false, &y) {
			continue
		}
		y.Normalize()

		return btcec.NewPublicKey(&x, &y)
	}
}

// Params are the public parameters of the commitment scheme.
type Params struct {
	// G commits to the value.
	G *btcec.PublicKey

	// H commits to the blinding factor.
	H *btcec.PublicKey

	// SecurityBits is the security level the parameters are used at.
	SecurityBits uint16
}

// NewParams returns the standard parameters at the given security level.
func NewParams(securityBits uint16) *Params {
	var g btcec.JacobianPoint
	btcec.GeneratorJacobian(&g)
	g.ToAffine()

	return &Params{
		G:            btcec.NewPublicKey(&g.X, &g.Y),
		H:            blindingGenerator(),
		SecurityBits: securityBits,
	}
}

// Equal reports whether p and other describe the same parameters.
func (p *Params) Equal(other *Params) bool {
	return p.G.IsEqual(other.G) && p.H.IsEqual(other.H) &&
		p.SecurityBits == other.SecurityBits
}

// Encode writes p to w as a TLV stream.
func (p *Params) Encode(w io.Writer) error {
	var (
		g    = p.G
		h    = p.H
		bits = p.SecurityBits
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeParamsG, &g),
		tlv.MakePrimitiveRecord(typeParamsH, &h),
		tlv.MakePrimitiveRecord(typeParamsSecurityBits, &bits),
	)
	if err != nil {
		return err
	}

	return tlvStream.Encode(w)
}

// DecodeParams reads parameters written by Encode. Both generators must be
// present and distinct.
func DecodeParams(r io.Reader) (*Params, error) {
	var (
		g, h *btcec.PublicKey
		bits uint16
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeParamsG, &g),
		tlv.MakePrimitiveRecord(typeParamsH, &h),
		tlv.MakePrimitiveRecord(typeParamsSecurityBits, &bits),
	)
	if err != nil {
		return nil, err
	}

	if err := tlvStream.Decode(r); err != nil {
		return nil, err
	}

	if g == nil || h == nil {
		return nil, fmt.Errorf("%w: missing generator",
			ErrInvalidParams)
	}
	if g.IsEqual(h) {
		return nil, fmt.Errorf("%w: generators are equal",
			ErrInvalidParams)
	}

	return &Params{G: g, H: h, SecurityBits: bits}, nil
}

// Commitment is a compressed curve point committing to a value.
type Commitment [Size]byte

// String returns the commitment as hex.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// Commit commits to value under blind.
func (p *Params) Commit(value uint64, blind *btcec.ModNScalar) (Commitment,
	error) {

	var valueBytes [8]byte
	binary.BigEndian.PutUint64(valueBytes[:], value)

	var v btcec.ModNScalar
	v.SetByteSlice(valueBytes[:])

	var g, h, vG, rH, sum btcec.JacobianPoint
	p.G.AsJacobian(&g)
	p.H.AsJacobian(&h)
	btcec.ScalarMultNonConst(&v, &g, &vG)
	btcec.ScalarMultNonConst(blind, &h, &rH)
	btcec.AddNonConst(&vG, &rH, &sum)

	if sum.Z.Normalize().IsZero() {
		return Commitment{}, ErrInvalidCommitment
	}
	sum.ToAffine()

	var c Commitment
	copy(c[:], btcec.NewPublicKey(&sum.X, &sum.Y).SerializeCompressed())
	return c, nil
}

// Verify reports whether c opens to value under blind.
func (p *Params) Verify(c Commitment, value uint64,
	blind *btcec.ModNScalar) bool {

	expected, err := p.Commit(value, blind)
	if err != nil {
		return false
	}
	return bytes.Equal(expected[:], c[:])
}

// BlindingFactor derives the blinding factor for one balance of a state from
// a secret key. The same key, nonce and slot always give the same factor.
func BlindingFactor(key []byte, nonce uint64,
	slot uint16) *btcec.ModNScalar {

	var msg [10]byte
	binary.BigEndian.PutUint64(msg[:8], nonce)
	binary.BigEndian.PutUint16(msg[8:], slot)

	digest := chainhash.TaggedHash(blindingTag, key, msg[:])

	var blind btcec.ModNScalar
	blind.SetByteSlice(digest[:])
	return &blind
}

// Committer commits to channel balances with blinding factors derived from a
// secret key.
type Committer struct {
	params *Params
	key    []byte
}

// NewCommitter returns a committer over params. The key is copied.
func NewCommitter(params *Params, key []byte) *Committer {
	return &Committer{
		params: params,
		key:    append([]byte(nil), key...),
	}
}

// Params returns the parameters the committer uses.
func (c *Committer) Params() *Params {
	return c.params
}

// CommitBalances returns one commitment per balance of the state at nonce.
func (c *Committer) CommitBalances(nonce uint64,
	balances []uint64) ([]Commitment, error) {

	commitments := make([]Commitment, len(balances))
	for i, balance := range balances {
		blind := BlindingFactor(c.key, nonce, uint16(i))

		var err error
		commitments[i], err = c.params.Commit(balance, blind)
		if err != nil {
			return nil, fmt.Errorf("commit to balance %d: %w", i,
				err)
		}
	}

	return commitments, nil
}

// VerifyBalances checks that commitments are exactly the commitments to
// balances at nonce.
func (c *Committer) VerifyBalances(nonce uint64, balances []uint64,
	commitments []Commitment) error {

	if len(commitments) != len(balances) {
		return fmt.Errorf("%w: %d commitments for %d balances",
			ErrInvalidCommitment, len(commitments), len(balances))
	}

	for i, balance := range balances {
		blind := BlindingFactor(c.key, nonce, uint16(i))
		if !c.params.Verify(commitments[i], balance, blind) {
			return fmt.Errorf("%w: balance %d at nonce %d does "+
				"not open", ErrInvalidCommitment, i, nonce)
		}
	}

	return nil
}

// Zero clears the blinding key.
func (c *Committer) Zero() {
	zero.Bytes(c.key)
}
