// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chandb

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcchan/auditlog"
	"github.com/btcsuite/btcchan/channel"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	typeLogTimestamp tlv.Type = 1
	typeLogMessage   tlv.Type = 2
)

// nonceKey returns the big endian key an update is stored under, so cursor
// order is commit order.
func nonceKey(nonce uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], nonce)
	return k[:]
}

// EncodeConfig serializes a channel configuration as its genesis state.
func EncodeConfig(cfg channel.Config) ([]byte, error) {
	var b bytes.Buffer
	if err := channel.EncodeState(&b, channel.Genesis(cfg)); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodeConfig parses bytes produced by EncodeConfig.
func DecodeConfig(b []byte) (channel.Config, error) {
	state, err := channel.DecodeState(bytes.NewReader(b))
	if err != nil {
		return channel.Config{}, err
	}
	return state.Config, nil
}

// EncodeLogMessage serializes an audit entry.
func EncodeLogMessage(msg auditlog.LogMessage) ([]byte, error) {
	var (
		timestamp = uint64(msg.Timestamp.UnixNano())
		message   = []byte(msg.Message)
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeLogTimestamp, &timestamp),
		tlv.MakePrimitiveRecord(typeLogMessage, &message),
	)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := tlvStream.Encode(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodeLogMessage parses bytes produced by EncodeLogMessage.
func DecodeLogMessage(b []byte) (auditlog.LogMessage, error) {
	var (
		timestamp uint64
		message   []byte
	)

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeLogTimestamp, &timestamp),
		tlv.MakePrimitiveRecord(typeLogMessage, &message),
	)
	if err != nil {
		return auditlog.LogMessage{}, err
	}

	if err := tlvStream.Decode(bytes.NewReader(b)); err != nil {
		return auditlog.LogMessage{}, err
	}

	return auditlog.LogMessage{
		Timestamp: time.Unix(0, int64(timestamp)).UTC(),
		Message:   string(message),
	}, nil
}
