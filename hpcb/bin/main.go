// Copyright 2026, Square, Inc.

package main

import (
	"fmt"
	"os"

	"github.com/square/hpcbuild/hpcb"
	"github.com/square/hpcbuild/hpcb/app"
)

func main() {
	defaultContext := app.Context{
		In:        os.Stdin,
		Out:       os.Stdout,
		Hooks:     app.Hooks{},
		Factories: app.Factories{},
	}
	if err := hpcb.Run(defaultContext); err != nil {
		if err != app.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
