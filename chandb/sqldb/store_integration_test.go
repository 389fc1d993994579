//go:build integration_test

package sqldb_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcchan/chandb/sqldb"
	"github.com/btcsuite/btcchan/chanmgr"
	"github.com/btcsuite/btcchan/channel"
	"github.com/btcsuite/btcchan/internal/sqltest"
	"github.com/btcsuite/btcchan/netparams"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// TestManagerOverDatabases runs the payment scenario against both backends.
func TestManagerOverDatabases(t *testing.T) {
	sqltest.RunDatabaseTest(t, func(t *testing.T,
		dbFactory sqltest.DBFactory, dialect sqldb.Dialect) {

		// Arrange.
		store, err := sqldb.New(
			context.Background(), dbFactory(t), dialect,
		)
		require.NoError(t, err)

		cfg := channel.Config{
			Network:        netparams.RegTest,
			InitialBalance: 100,
			SecurityBits:   128,
			NumParties:     2,
		}
		managerCfg := chanmgr.Config{
			Seed:  chanmgr.StaticSeed(bytes.Repeat([]byte{7}, 32)),
			Clock: clock.NewTestClock(time.Unix(1700000000, 0)),
			Store: store,
		}

		// Act.
		m := chanmgr.New(managerCfg)
		require.NoError(t, m.Initialize(cfg))
		_, err = m.ProcessTransaction(30, 1)
		require.NoError(t, err)
		_, err = m.ProcessTransaction(80, 1)
		require.ErrorIs(t, err, channel.ErrInsufficientBalance)
		m.Stop()

		restored := chanmgr.New(managerCfg)
		require.NoError(t, restored.Initialize(cfg))
		defer restored.Stop()

		// Assert.
		state, err := restored.GetState()
		require.NoError(t, err)
		require.Equal(t, []btcutil.Amount{70, 30}, state.Balances)

		logs, err := restored.GetLogs()
		require.NoError(t, err)
		require.Len(t, logs, 4)
	})
}
