// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestAmountFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  btcutil.Amount
		fail  bool
	}{
		{value: "1", want: btcutil.SatoshiPerBitcoin},
		{value: "0.5 BTC", want: btcutil.SatoshiPerBitcoin / 2},
		{value: "1500sat", want: 1500},
		{value: "42 sat", want: 42},
		{value: "0sat", want: 0},
		{value: "-1sat", fail: true},
		{value: "-0.1", fail: true},
		{value: "1.5sat", fail: true},
		{value: "lots", fail: true},
	}

	for _, test := range tests {
		flag := NewAmountFlag(7)
		err := flag.UnmarshalFlag(test.value)
		if test.fail {
			require.Error(t, err, test.value)
			require.Equal(t, btcutil.Amount(7), flag.Amount)
			continue
		}

		require.NoError(t, err, test.value)
		require.Equal(t, test.want, flag.Amount, test.value)
	}
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	exists, err := FileExists(dir)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = FileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.False(t, exists)
}
