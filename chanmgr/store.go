// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chanmgr

import (
	"errors"

	"github.com/btcsuite/btcchan/auditlog"
	"github.com/btcsuite/btcchan/channel"
)

// ErrChannelNotFound is returned by a Store that holds no channel yet.
var ErrChannelNotFound = errors.New("channel not found")

// Snapshot is everything a Store keeps about a channel.
type Snapshot struct {
	// Config is the configuration the channel was created with.
	Config channel.Config

	// Updates are the committed state updates in commit order.
	Updates []channel.StateUpdate

	// Logs are the audit entries the store accepted, oldest first.
	Logs []auditlog.LogMessage
}

// Store is the durable home of a channel. The manager loads the channel from
// it on Initialize and writes every committed update through it before the
// update becomes visible. Calls are made while the manager holds its lock.
type Store interface {
	auditlog.Sink

	// FetchChannel returns the stored channel, or ErrChannelNotFound.
	FetchChannel() (*Snapshot, error)

	// PutGenesis records the creation of a channel.
	PutGenesis(cfg channel.Config) error

	// PutUpdate appends a committed state update.
	PutUpdate(update *channel.StateUpdate) error
}
