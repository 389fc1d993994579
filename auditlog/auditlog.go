// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package auditlog keeps the append-only, human readable record of channel
// events. Appending never fails: entries are kept in memory and, when a Sink
// is configured, copied to it by a background flusher that retries until the
// sink accepts them.
package auditlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultFlushInterval is how often pending entries are offered to the sink.
const DefaultFlushInterval = 5 * time.Second

// LogMessage is a single audit entry.
type LogMessage struct {
	Timestamp time.Time
	Message   string
}

// String renders the entry as a single line.
func (m LogMessage) String() string {
	return m.Timestamp.Format(time.RFC3339Nano) + " " + m.Message
}

// Sink persists audit entries. Entries are offered in append order and an
// entry is only offered again if the previous attempt failed.
type Sink interface {
	PutLogMessage(msg LogMessage) error
}

// Config houses the collaborators of a Log.
type Config struct {
	// Clock stamps new entries.
	Clock clock.Clock

	// Sink is optional. When nil, entries only live in memory.
	Sink Sink

	// FlushTicker drives the background flusher. When nil a ticker with
	// DefaultFlushInterval is used.
	FlushTicker ticker.Ticker

	// Restored are entries loaded from a previous run. They are not
	// offered to the sink again.
	Restored []LogMessage
}

// Log is the audit log of a channel. It is safe for concurrent use.
type Log struct {
	cfg Config

	mu      sync.Mutex
	entries []LogMessage
	pending []LogMessage

	// flushMu serializes flushes so entries reach the sink in order.
	flushMu sync.Mutex

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New creates a log. Start must be called for a configured sink to receive
// entries in the background.
func New(cfg Config) *Log {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	entries := make([]LogMessage, len(cfg.Restored))
	copy(entries, cfg.Restored)

	return &Log{
		cfg:     cfg,
		entries: entries,
		quit:    make(chan struct{}),
	}
}

// Start launches the background flusher if a sink is configured.
func (l *Log) Start() {
	if l.cfg.Sink == nil {
		return
	}

	l.started.Do(func() {
		if l.cfg.FlushTicker == nil {
			l.cfg.FlushTicker = ticker.New(DefaultFlushInterval)
		}

		l.wg.Add(1)
		go l.flusher()
	})
}

// Stop halts the flusher after a final flush attempt.
func (l *Log) Stop() {
	l.stopped.Do(func() {
		close(l.quit)
		l.wg.Wait()

		if l.cfg.Sink != nil {
			l.Flush()
		}
	})
}

// flusher periodically offers pending entries to the sink.
//
// NOTE: This MUST be run as a goroutine.
func (l *Log) flusher() {
	defer l.wg.Done()

	l.cfg.FlushTicker.Resume()
	defer l.cfg.FlushTicker.Stop()

	for {
		select {
		case <-l.cfg.FlushTicker.Ticks():
			l.Flush()

		case <-l.quit:
			return
		}
	}
}

// Append records message with the current time.
func (l *Log) Append(message string) {
	entry := LogMessage{
		Timestamp: l.cfg.Clock.Now(),
		Message:   message,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if l.cfg.Sink != nil {
		l.pending = append(l.pending, entry)
	}
	l.mu.Unlock()

	log.Tracef("Audit: %v", message)
}

// Appendf formats according to a format specifier and appends the result.
func (l *Log) Appendf(format string, args ...interface{}) {
	l.Append(fmt.Sprintf(format, args...))
}

// Entries returns a copy of all entries, oldest first.
func (l *Log) Entries() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]LogMessage, len(l.entries))
	copy(entries, l.entries)

	return entries
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Pending returns the number of entries the sink has not accepted yet.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.pending)
}

// Flush offers pending entries to the sink in order and stops at the first
// failure. Failed entries stay pending for the next attempt. The number of
// entries written is returned.
func (l *Log) Flush() int {
	if l.cfg.Sink == nil {
		return 0
	}

	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	batch := make([]LogMessage, len(l.pending))
	copy(batch, l.pending)
	l.mu.Unlock()

	var written int
	for _, entry := range batch {
		if err := l.cfg.Sink.PutLogMessage(entry); err != nil {
			log.Warnf("Unable to persist audit entry, %d pending: "+
				"%v", len(batch)-written, err)
			break
		}
		written++
	}

	if written > 0 {
		l.mu.Lock()
		l.pending = l.pending[written:]
		l.mu.Unlock()
	}

	return written
}
