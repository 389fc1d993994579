// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// TestParseNetwork checks that every network name round trips through
// ParseNetwork and String, and that unknown names are rejected.
func TestParseNetwork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    Network
		wantErr bool
	}{
		{name: "mainnet", want: MainNet},
		{name: "testnet", want: TestNet},
		{name: "testnet3", want: TestNet},
		{name: "regtest", want: RegTest},
		{name: "simnet", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseNetwork(test.name)
			if test.wantErr {
				require.ErrorIs(t, err, ErrUnknownNetwork)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}

// TestParamsForNetwork ensures each network maps to the matching chain
// parameters and coin type.
func TestParamsForNetwork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		network  Network
		chain    *chaincfg.Params
		coinType uint32
	}{
		{MainNet, &chaincfg.MainNetParams, 0},
		{TestNet, &chaincfg.TestNet3Params, 1},
		{RegTest, &chaincfg.RegressionNetParams, 1},
	}

	for _, test := range tests {
		params, err := ParamsForNetwork(test.network)
		require.NoError(t, err)
		require.Equal(t, test.chain.Name, params.Name)
		require.Equal(t, test.coinType, params.CoinType)
		require.Equal(t, test.network, params.Network)
		require.NoError(t, test.network.Validate())
	}

	_, err := ParamsForNetwork(Network(42))
	require.ErrorIs(t, err, ErrUnknownNetwork)
	require.ErrorIs(t, Network(42).Validate(), ErrUnknownNetwork)
	require.Equal(t, "Unknown Network (42)", Network(42).String())
}
