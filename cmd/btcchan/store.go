// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcchan/chandb"
	"github.com/btcsuite/btcchan/chandb/sqldb"
	"github.com/btcsuite/btcchan/chanmgr"
)

// sqliteDBName is the file name of the SQLite channel database.
const sqliteDBName = "channel.sqlite"

// channelStore is a chanmgr.Store that holds database resources.
type channelStore interface {
	chanmgr.Store

	Close() error
}

// openStore opens the channel database of the configured backend.
func openStore(cfg *config) (channelStore, error) {
	switch cfg.DBBackend {
	case "bdb":
		store, err := chandb.Open(cfg.netDir(), true, cfg.DBTimeout)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "sqlite":
		if err := os.MkdirAll(cfg.netDir(), 0700); err != nil {
			return nil, err
		}
		dbPath := filepath.Join(cfg.netDir(), sqliteDBName)
		return openSQLStore(cfg, sqldb.SQLite, func(
			ctx context.Context) (*sql.DB, error) {

			return sqldb.OpenSQLite(ctx, dbPath)
		})

	case "postgres":
		return openSQLStore(cfg, sqldb.Postgres, func(
			ctx context.Context) (*sql.DB, error) {

			return sqldb.OpenPostgres(ctx, cfg.PostgresDSN)
		})

	default:
		return nil, fmt.Errorf("unknown database backend %q",
			cfg.DBBackend)
	}
}

// openSQLStore connects with open and creates the channel tables.
func openSQLStore(cfg *config, dialect sqldb.Dialect,
	open func(context.Context) (*sql.DB, error)) (channelStore, error) {

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBTimeout)
	defer cancel()

	db, err := open(ctx)
	if err != nil {
		return nil, err
	}

	store, err := sqldb.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}
