// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package channel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcchan/commitment"
	"github.com/btcsuite/btcchan/netparams"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	typeStateNetwork        tlv.Type = 1
	typeStateInitialBalance tlv.Type = 2
	typeStateSecurityBits   tlv.Type = 3
	typeStateNumParties     tlv.Type = 4
	typeStateBalances       tlv.Type = 5
	typeStateNonce          tlv.Type = 6

	typeTxID        tlv.Type = 1
	typeTxSender    tlv.Type = 2
	typeTxRecipient tlv.Type = 3
	typeTxAmount    tlv.Type = 4
	typeTxTimestamp tlv.Type = 5
	typeTxData      tlv.Type = 6

	typeUpdateTransaction tlv.Type = 1
	typeUpdateState       tlv.Type = 2
	typeUpdateSig         tlv.Type = 3
	typeUpdateCommitments tlv.Type = 4
)

// EncodeState writes s to w as a TLV stream. Amounts are written as their
// fixed-width satoshi value.
func EncodeState(w io.Writer, s State) error {
	var (
		network  = uint8(s.Network)
		initial  = uint64(s.InitialBalance)
		bits     = s.SecurityBits
		parties  = s.NumParties
		nonce    = s.Nonce
		balances = s.Balances
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeStateNetwork, &network),
		tlv.MakePrimitiveRecord(typeStateInitialBalance, &initial),
		tlv.MakePrimitiveRecord(typeStateSecurityBits, &bits),
		tlv.MakePrimitiveRecord(typeStateNumParties, &parties),
		tlv.MakeDynamicRecord(
			typeStateBalances, &balances, func() uint64 {
				return uint64(8 * len(balances))
			}, balancesEncoder, balancesDecoder,
		),
		tlv.MakePrimitiveRecord(typeStateNonce, &nonce),
	)
	if err != nil {
		return err
	}

	return tlvStream.Encode(w)
}

// DecodeState reads a State written by EncodeState.
func DecodeState(r io.Reader) (State, error) {
	var (
		network  uint8
		initial  uint64
		bits     uint16
		parties  uint16
		nonce    uint64
		balances []btcutil.Amount
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeStateNetwork, &network),
		tlv.MakePrimitiveRecord(typeStateInitialBalance, &initial),
		tlv.MakePrimitiveRecord(typeStateSecurityBits, &bits),
		tlv.MakePrimitiveRecord(typeStateNumParties, &parties),
		tlv.MakeDynamicRecord(
			typeStateBalances, &balances, func() uint64 {
				return uint64(8 * len(balances))
			}, balancesEncoder, balancesDecoder,
		),
		tlv.MakePrimitiveRecord(typeStateNonce, &nonce),
	)
	if err != nil {
		return State{}, err
	}

	if err := tlvStream.Decode(r); err != nil {
		return State{}, err
	}

	return State{
		Config: Config{
			Network:        netparams.Network(network),
			InitialBalance: btcutil.Amount(initial),
			SecurityBits:   bits,
			NumParties:     parties,
		},
		Balances: balances,
		Nonce:    nonce,
	}, nil
}

// balancesEncoder is a custom TLV encoder for a balance vector.
func balancesEncoder(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(*[]btcutil.Amount); ok {
		for _, amt := range *v {
			binary.BigEndian.PutUint64(buf[:], uint64(amt))
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}

		return nil
	}

	return tlv.NewTypeForEncodingErr(val, "[]btcutil.Amount")
}

// balancesDecoder is a custom TLV decoder for a balance vector.
func balancesDecoder(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	if v, ok := val.(*[]btcutil.Amount); ok && l%8 == 0 &&
		l <= 8*MaxNumParties {

		balances := make([]btcutil.Amount, 0, l/8)
		for i := uint64(0); i < l/8; i++ {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return err
			}
			balances = append(
				balances,
				btcutil.Amount(binary.BigEndian.Uint64(buf[:])),
			)
		}

		*v = balances
		return nil
	}

	return tlv.NewTypeForDecodingErr(val, "[]btcutil.Amount", l, l)
}

// EncodeTransaction writes tx to w as a TLV stream. The timestamp is stored
// with nanosecond precision in UTC.
func EncodeTransaction(w io.Writer, tx Transaction) error {
	var (
		id        = tx.ID
		sender    = uint16(tx.Sender)
		recipient = uint16(tx.Recipient)
		amount    = uint64(tx.Amount)
		timestamp = uint64(tx.Timestamp.UnixNano())
		data      = tx.Data
	)

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeTxID, &id),
		tlv.MakePrimitiveRecord(typeTxSender, &sender),
		tlv.MakePrimitiveRecord(typeTxRecipient, &recipient),
		tlv.MakePrimitiveRecord(typeTxAmount, &amount),
		tlv.MakePrimitiveRecord(typeTxTimestamp, &timestamp),
	}
	if len(data) > 0 {
		records = append(
			records, tlv.MakePrimitiveRecord(typeTxData, &data),
		)
	}

	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	return tlvStream.Encode(w)
}

// DecodeTransaction reads a Transaction written by EncodeTransaction.
func DecodeTransaction(r io.Reader) (Transaction, error) {
	var (
		id        uint64
		sender    uint16
		recipient uint16
		amount    uint64
		timestamp uint64
		data      []byte
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeTxID, &id),
		tlv.MakePrimitiveRecord(typeTxSender, &sender),
		tlv.MakePrimitiveRecord(typeTxRecipient, &recipient),
		tlv.MakePrimitiveRecord(typeTxAmount, &amount),
		tlv.MakePrimitiveRecord(typeTxTimestamp, &timestamp),
		tlv.MakePrimitiveRecord(typeTxData, &data),
	)
	if err != nil {
		return Transaction{}, err
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(r)
	if err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		ID:        id,
		Sender:    PartyIndex(sender),
		Recipient: PartyIndex(recipient),
		Amount:    btcutil.Amount(amount),
		Timestamp: time.Unix(0, int64(timestamp)).UTC(),
	}

	// Only set the payload when it was actually present so a missing
	// payload stays nil.
	if t, ok := parsedTypes[typeTxData]; ok && t == nil {
		tx.Data = data
	}

	return tx, nil
}

// EncodeStateUpdate serializes update, including its optional signature.
func EncodeStateUpdate(update *StateUpdate) ([]byte, error) {
	var txBuf, stateBuf bytes.Buffer
	if err := EncodeTransaction(&txBuf, update.Transaction); err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	if err := EncodeState(&stateBuf, update.NewState); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	var (
		txBytes    = txBuf.Bytes()
		stateBytes = stateBuf.Bytes()
		sig        = update.Sig
		commits    = update.Commitments
	)

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeUpdateTransaction, &txBytes),
		tlv.MakePrimitiveRecord(typeUpdateState, &stateBytes),
	}
	if len(sig) > 0 {
		records = append(
			records, tlv.MakePrimitiveRecord(typeUpdateSig, &sig),
		)
	}
	if len(commits) > 0 {
		records = append(records, commitmentsRecord(&commits))
	}

	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeStateUpdate parses bytes produced by EncodeStateUpdate.
func DecodeStateUpdate(b []byte) (*StateUpdate, error) {
	var (
		txBytes, stateBytes, sig []byte
		commits                  []commitment.Commitment
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeUpdateTransaction, &txBytes),
		tlv.MakePrimitiveRecord(typeUpdateState, &stateBytes),
		tlv.MakePrimitiveRecord(typeUpdateSig, &sig),
		commitmentsRecord(&commits),
	)
	if err != nil {
		return nil, err
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(
		bytes.NewReader(b),
	)
	if err != nil {
		return nil, err
	}

	tx, err := DecodeTransaction(bytes.NewReader(txBytes))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	state, err := DecodeState(bytes.NewReader(stateBytes))
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	update := &StateUpdate{
		Transaction: tx,
		NewState:    state,
	}
	if t, ok := parsedTypes[typeUpdateSig]; ok && t == nil {
		update.Sig = sig
	}
	if t, ok := parsedTypes[typeUpdateCommitments]; ok && t == nil {
		update.Commitments = commits
	}

	return update, nil
}

// commitmentsRecord returns the TLV record for a list of balance
// commitments.
func commitmentsRecord(commits *[]commitment.Commitment) tlv.Record {
	return tlv.MakeDynamicRecord(
		typeUpdateCommitments, commits, func() uint64 {
			return uint64(commitment.Size * len(*commits))
		}, commitmentsEncoder, commitmentsDecoder,
	)
}

// commitmentsEncoder is a custom TLV encoder for a list of commitments.
func commitmentsEncoder(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(*[]commitment.Commitment); ok {
		for _, c := range *v {
			if _, err := w.Write(c[:]); err != nil {
				return err
			}
		}

		return nil
	}

	return tlv.NewTypeForEncodingErr(val, "[]commitment.Commitment")
}

// commitmentsDecoder is a custom TLV decoder for a list of commitments.
func commitmentsDecoder(r io.Reader, val interface{}, _ *[8]byte,
	l uint64) error {

	if v, ok := val.(*[]commitment.Commitment); ok &&
		l%commitment.Size == 0 && l <= commitment.Size*MaxNumParties {

		commits := make([]commitment.Commitment, l/commitment.Size)
		for i := range commits {
			if _, err := io.ReadFull(r, commits[i][:]); err != nil {
				return err
			}
		}

		*v = commits
		return nil
	}

	return tlv.NewTypeForDecodingErr(
		val, "[]commitment.Commitment", l, l,
	)
}
