// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

func main() {
	// Work around defer not working after os.Exit.
	if err := btcchanMain(); err != nil {
		os.Exit(1)
	}
}

// btcchanMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func btcchanMain() error {
	cfg, args, err := loadConfig(os.Args[1:])
	if errors.Is(err, errShowVersion) {
		fmt.Println(filepath.Base(os.Args[0]), "version", version())
		return nil
	}
	var flagErr *flags.Error
	if errors.As(err, &flagErr) {
		// The parser already printed the error.
		if flagErr.Type == flags.ErrHelp {
			fmt.Println(commandUsage)
			return nil
		}
		return err
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logRotator.Close()

	log.Infof("Version %s", version())

	err = run(cfg, args, bufio.NewReader(os.Stdin), os.Stdout)
	if err != nil {
		log.Errorf("%v", err)
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	return nil
}
