// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqldb

// Statements use $n placeholders, which both backends accept.
const (
	selectGenesisSQL = `SELECT config FROM channel WHERE id = 1`
	insertGenesisSQL = `INSERT INTO channel (id, config) VALUES (1, $1)`

	selectUpdatesSQL = `
		SELECT nonce, body FROM channel_updates ORDER BY nonce`
	selectLastNonceSQL = `
		SELECT COALESCE(MAX(nonce), 0) FROM channel_updates`
	insertUpdateSQL = `
		INSERT INTO channel_updates (nonce, body) VALUES ($1, $2)`

	selectLogsSQL = `
		SELECT seq, body FROM channel_logs ORDER BY seq`
	selectLastSeqSQL = `
		SELECT COALESCE(MAX(seq), 0) FROM channel_logs`
	insertLogSQL = `
		INSERT INTO channel_logs (seq, body) VALUES ($1, $2)`
)

// schema returns the table definitions for the dialect. Only the blob column
// type differs between backends.
func schema(d Dialect) []string {
	blob := "BLOB"
	if d == Postgres {
		blob = "BYTEA"
	}

	return []string{`
		CREATE TABLE IF NOT EXISTS channel (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			config ` + blob + ` NOT NULL
		);`, `
		CREATE TABLE IF NOT EXISTS channel_updates (
			nonce BIGINT PRIMARY KEY,
			body ` + blob + ` NOT NULL
		);`, `
		CREATE TABLE IF NOT EXISTS channel_logs (
			seq BIGINT PRIMARY KEY,
			body ` + blob + ` NOT NULL
		);`,
	}
}
