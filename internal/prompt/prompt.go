// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// isTerminal reports whether the file descriptor is an interactive terminal.
var isTerminal = term.IsTerminal

// readPassphrase reads a line without echo when stdin is a terminal, and a
// plain line from reader otherwise.
func readPassphrase(reader *bufio.Reader) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		return term.ReadPassword(fd)
	}

	line, err := reader.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}
	return line, nil
}

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, w io.Writer, prefix string,
	validResponses []string, defaultEntry string) (string, error) {

	// Setup the prompt according to the parameters.
	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	// Prompt the user until one of the valid responses is given.
	for {
		fmt.Fprint(w, prompt)
		reply, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && reply != "") {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// promptListBool prompts the user for a boolean (yes/no) with the given prefix.
// The function will repeat the prompt to the user until they enter a valid
// reponse.
func promptListBool(reader *bufio.Reader, w io.Writer, prefix string,
	defaultEntry string) (bool, error) {

	// Setup the valid responses.
	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, w, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// PassPrompt prompts the user for a passphrase with the given prefix.  The
// function will ask the user to confirm the passphrase and will repeat the
// prompts until they enter a matching response.
func PassPrompt(reader *bufio.Reader, w io.Writer, prefix string,
	confirm bool) ([]byte, error) {

	// Prompt the user until they enter a passphrase.
	prompt := fmt.Sprintf("%s: ", prefix)
	for {
		fmt.Fprint(w, prompt)
		pass, err := readPassphrase(reader)
		if err != nil {
			return nil, err
		}
		fmt.Fprint(w, "\n")
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}

		if !confirm {
			return pass, nil
		}

		fmt.Fprint(w, "Confirm passphrase: ")
		confirm, err := readPassphrase(reader)
		if err != nil {
			return nil, err
		}
		fmt.Fprint(w, "\n")
		confirm = bytes.TrimSpace(confirm)
		if !bytes.Equal(pass, confirm) {
			fmt.Fprintln(w, "The entered passphrases do not match")
			continue
		}

		return pass, nil
	}
}

// NewSeedPassphrase prompts for the passphrase a new channel seed is
// encrypted with.
func NewSeedPassphrase(reader *bufio.Reader, w io.Writer) ([]byte, error) {
	return PassPrompt(reader, w, "Enter the passphrase to encrypt the "+
		"channel seed", true)
}

// SeedPassphrase prompts for the passphrase of an existing encrypted seed.
func SeedPassphrase(reader *bufio.Reader, w io.Writer) ([]byte, error) {
	return PassPrompt(reader, w, "Enter the channel seed passphrase", false)
}

// ReuseSeed asks whether a seed left on disk by an earlier channel should be
// used for the new one.
func ReuseSeed(reader *bufio.Reader, w io.Writer) (bool, error) {
	return promptListBool(reader, w, "A channel seed already exists. "+
		"Derive the new channel keys from it?", "yes")
}
