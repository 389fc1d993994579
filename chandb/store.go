// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chandb stores a channel in a walletdb database.
//
// Layout of the top level bucket:
//
//	genesis          encoded channel configuration
//	updates/<nonce>  encoded state update, one per committed nonce
//	logs/<seq>       encoded audit entry, in append order
package chandb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcchan/auditlog"
	"github.com/btcsuite/btcchan/chanmgr"
	"github.com/btcsuite/btcchan/channel"
	"github.com/btcsuite/btcchan/internal/cfgutil"
	"github.com/btcsuite/btcwallet/walletdb"

	// Register the bolt backed walletdb driver under name "bdb".
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

const (
	// DBName is the file name of the channel database.
	DBName = "channel.db"

	// DefaultDBTimeout is how long opening waits for the file lock.
	DefaultDBTimeout = 60 * time.Second
)

var (
	// ErrChannelExists is returned when a second genesis is written.
	ErrChannelExists = errors.New("channel already exists")

	// ErrOutOfOrder is returned when an update does not follow the last
	// stored nonce.
	ErrOutOfOrder = errors.New("update out of order")

	// ErrCorrupt is returned when stored data cannot be decoded.
	ErrCorrupt = errors.New("corrupt channel database")
)

var (
	rootBucketKey    = []byte("btcchan")
	genesisKey       = []byte("genesis")
	updatesBucketKey = []byte("updates")
	logsBucketKey    = []byte("logs")
)

// Store implements chanmgr.Store on top of a walletdb database.
type Store struct {
	db walletdb.DB
}

// A compile time check to ensure Store implements chanmgr.Store.
var _ chanmgr.Store = (*Store)(nil)

// Open opens the channel database in dir, creating it if it does not exist.
func Open(dir string, noFreelistSync bool,
	timeout time.Duration) (*Store, error) {

	dbPath := filepath.Join(dir, DBName)
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, err
	}

	var db walletdb.DB
	if exists {
		db, err = walletdb.Open(
			"bdb", dbPath, noFreelistSync, timeout, false,
		)
	} else {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		db, err = walletdb.Create(
			"bdb", dbPath, noFreelistSync, timeout, false,
		)
	}
	if err != nil {
		log.Errorf("Failed to open database: %v", err)
		return nil, err
	}

	store, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// New wraps an open database and creates the buckets the store needs.
func New(db walletdb.DB) (*Store, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		root := tx.ReadWriteBucket(rootBucketKey)
		if root == nil {
			var err error
			root, err = tx.CreateTopLevelBucket(rootBucketKey)
			if err != nil {
				return err
			}
		}

		if _, err := root.CreateBucketIfNotExists(
			updatesBucketKey,
		); err != nil {
			return err
		}

		_, err := root.CreateBucketIfNotExists(logsBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchChannel implements chanmgr.Store.
func (s *Store) FetchChannel() (*chanmgr.Snapshot, error) {
	var snapshot *chanmgr.Snapshot
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		root := tx.ReadBucket(rootBucketKey)

		rawCfg := root.Get(genesisKey)
		if rawCfg == nil {
			return chanmgr.ErrChannelNotFound
		}
		cfg, err := DecodeConfig(rawCfg)
		if err != nil {
			return fmt.Errorf("%w: genesis: %v", ErrCorrupt, err)
		}

		snapshot = &chanmgr.Snapshot{Config: cfg}

		updates := root.NestedReadBucket(updatesBucketKey)
		err = updates.ForEach(func(k, v []byte) error {
			update, err := channel.DecodeStateUpdate(v)
			if err != nil {
				return fmt.Errorf("%w: update %x: %v",
					ErrCorrupt, k, err)
			}
			snapshot.Updates = append(snapshot.Updates, *update)
			return nil
		})
		if err != nil {
			return err
		}

		logs := root.NestedReadBucket(logsBucketKey)
		return logs.ForEach(func(k, v []byte) error {
			msg, err := DecodeLogMessage(v)
			if err != nil {
				return fmt.Errorf("%w: log %x: %v",
					ErrCorrupt, k, err)
			}
			snapshot.Logs = append(snapshot.Logs, msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("Fetched channel with %d updates and %d audit entries",
		len(snapshot.Updates), len(snapshot.Logs))

	return snapshot, nil
}

// PutGenesis implements chanmgr.Store.
func (s *Store) PutGenesis(cfg channel.Config) error {
	rawCfg, err := EncodeConfig(cfg)
	if err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		root := tx.ReadWriteBucket(rootBucketKey)
		if root.Get(genesisKey) != nil {
			return ErrChannelExists
		}

		return root.Put(genesisKey, rawCfg)
	})
}

// PutUpdate implements chanmgr.Store. Updates must arrive in nonce order.
func (s *Store) PutUpdate(update *channel.StateUpdate) error {
	raw, err := channel.EncodeStateUpdate(update)
	if err != nil {
		return err
	}

	nonce := update.NewState.Nonce
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		root := tx.ReadWriteBucket(rootBucketKey)
		if root.Get(genesisKey) == nil {
			return chanmgr.ErrChannelNotFound
		}

		updates := root.NestedReadWriteBucket(updatesBucketKey)

		var last uint64
		if k, _ := updates.ReadCursor().Last(); k != nil {
			last = binary.BigEndian.Uint64(k)
		}
		if nonce != last+1 {
			return fmt.Errorf("%w: nonce %d after %d",
				ErrOutOfOrder, nonce, last)
		}

		return updates.Put(nonceKey(nonce), raw)
	})
}

// PutLogMessage implements auditlog.Sink.
func (s *Store) PutLogMessage(msg auditlog.LogMessage) error {
	raw, err := EncodeLogMessage(msg)
	if err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		logs := tx.ReadWriteBucket(rootBucketKey).
			NestedReadWriteBucket(logsBucketKey)

		var seq uint64
		if k, _ := logs.ReadCursor().Last(); k != nil {
			seq = binary.BigEndian.Uint64(k)
		}

		return logs.Put(nonceKey(seq+1), raw)
	})
}
