// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sqldb stores a channel in a SQLite or Postgres database.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcchan/auditlog"
	"github.com/btcsuite/btcchan/chandb"
	"github.com/btcsuite/btcchan/chanmgr"
	"github.com/btcsuite/btcchan/channel"
)

// DefaultQueryTimeout bounds every statement the store issues.
const DefaultQueryTimeout = 30 * time.Second

// Store implements chanmgr.Store on top of database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

// A compile time check to ensure Store implements chanmgr.Store.
var _ chanmgr.Store = (*Store)(nil)

// New creates the channel tables in db if needed and returns a store over
// them. The store takes ownership of db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range schema(dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	log.Debugf("Opened %v channel store", dialect)

	return &Store{
		db:      db,
		dialect: dialect,
		timeout: DefaultQueryTimeout,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs f inside a transaction, committing when it returns nil.
func (s *Store) withTx(f func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := f(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// FetchChannel implements chanmgr.Store.
func (s *Store) FetchChannel() (*chanmgr.Snapshot, error) {
	var snapshot *chanmgr.Snapshot
	err := s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		var rawCfg []byte
		err := tx.QueryRowContext(ctx, selectGenesisSQL).Scan(&rawCfg)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return chanmgr.ErrChannelNotFound
		case err != nil:
			return err
		}

		cfg, err := chandb.DecodeConfig(rawCfg)
		if err != nil {
			return fmt.Errorf("%w: genesis: %v", chandb.ErrCorrupt,
				err)
		}
		snapshot = &chanmgr.Snapshot{Config: cfg}

		err = forEachRow(ctx, tx, selectUpdatesSQL,
			func(nonce int64, body []byte) error {
				update, err := channel.DecodeStateUpdate(body)
				if err != nil {
					return fmt.Errorf("%w: update %d: %v",
						chandb.ErrCorrupt, nonce, err)
				}
				snapshot.Updates = append(
					snapshot.Updates, *update,
				)
				return nil
			})
		if err != nil {
			return err
		}

		return forEachRow(ctx, tx, selectLogsSQL,
			func(seq int64, body []byte) error {
				msg, err := chandb.DecodeLogMessage(body)
				if err != nil {
					return fmt.Errorf("%w: log %d: %v",
						chandb.ErrCorrupt, seq, err)
				}
				snapshot.Logs = append(snapshot.Logs, msg)
				return nil
			})
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// forEachRow calls f for every (key, body) row returned by query.
func forEachRow(ctx context.Context, tx *sql.Tx, query string,
	f func(key int64, body []byte) error) error {

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key  int64
			body []byte
		)
		if err := rows.Scan(&key, &body); err != nil {
			return err
		}
		if err := f(key, body); err != nil {
			return err
		}
	}

	return rows.Err()
}

// PutGenesis implements chanmgr.Store.
func (s *Store) PutGenesis(cfg channel.Config) error {
	rawCfg, err := chandb.EncodeConfig(cfg)
	if err != nil {
		return err
	}

	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		var existing []byte
		err := tx.QueryRowContext(ctx, selectGenesisSQL).Scan(&existing)
		switch {
		case err == nil:
			return chandb.ErrChannelExists
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		_, err = tx.ExecContext(ctx, insertGenesisSQL, rawCfg)
		return err
	})
}

// PutUpdate implements chanmgr.Store. Updates must arrive in nonce order.
func (s *Store) PutUpdate(update *channel.StateUpdate) error {
	body, err := channel.EncodeStateUpdate(update)
	if err != nil {
		return err
	}

	nonce := int64(update.NewState.Nonce)
	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		var existing []byte
		err := tx.QueryRowContext(ctx, selectGenesisSQL).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return chanmgr.ErrChannelNotFound
		case err != nil:
			return err
		}

		var last int64
		err = tx.QueryRowContext(ctx, selectLastNonceSQL).Scan(&last)
		if err != nil {
			return err
		}
		if nonce != last+1 {
			return fmt.Errorf("%w: nonce %d after %d",
				chandb.ErrOutOfOrder, nonce, last)
		}

		_, err = tx.ExecContext(ctx, insertUpdateSQL, nonce, body)
		return err
	})
}

// PutLogMessage implements auditlog.Sink.
func (s *Store) PutLogMessage(msg auditlog.LogMessage) error {
	body, err := chandb.EncodeLogMessage(msg)
	if err != nil {
		return err
	}

	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		var last int64
		err := tx.QueryRowContext(ctx, selectLastSeqSQL).Scan(&last)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, insertLogSQL, last+1, body)
		return err
	})
}
