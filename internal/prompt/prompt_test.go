// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

// TestPassPrompt covers the non-terminal input path. The tests in this file
// replace isTerminal and so do not run in parallel.
func TestPassPrompt(t *testing.T) {
	restore := isTerminal
	isTerminal = func(int) bool { return false }
	defer func() { isTerminal = restore }()

	// Blank lines are skipped, and a mismatched confirmation restarts
	// the prompt.
	var out strings.Builder
	pass, err := PassPrompt(
		reader("\nfirst\nsecond\n  hunter2 \nhunter2"), &out, "Pass",
		true,
	)
	require.NoError(t, err)
	require.Equal(t, []byte("hunter2"), pass)
	require.Contains(t, out.String(), "do not match")

	pass, err = SeedPassphrase(reader("open sesame\n"), io.Discard)
	require.NoError(t, err)
	require.Equal(t, []byte("open sesame"), pass)

	_, err = NewSeedPassphrase(reader(""), io.Discard)
	require.ErrorIs(t, err, io.EOF)
}

func TestReuseSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "\n", want: true},
		{input: "no\n", want: false},
		{input: "maybe\nY\n", want: true},
		{input: "n", want: false},
	}

	for _, test := range tests {
		got, err := ReuseSeed(reader(test.input), io.Discard)
		require.NoError(t, err, test.input)
		require.Equal(t, test.want, got, test.input)
	}

	_, err := ReuseSeed(reader(""), io.Discard)
	require.ErrorIs(t, err, io.EOF)
}
