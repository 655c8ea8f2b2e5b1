// Copyright 2026, Square, Inc.

// Package cmd provides all the commands that hpcb can run: build, plan, etc.
package cmd

import (
	"errors"

	"github.com/square/hpcbuild/hpcb/app"
)

var (
	ErrNotExist = errors.New("command does not exist")
)

type DefaultFactory struct {
}

func (f *DefaultFactory) Make(name string, ctx app.Context) (app.Command, error) {
	switch name {
	case "build":
		return NewBuild(ctx), nil
	case "plan":
		return NewPlan(ctx), nil
	case "graph":
		return NewGraph(ctx), nil
	case "cache":
		return NewCacheCmd(ctx), nil
	case "report":
		return NewReport(ctx), nil
	case "scan":
		return NewScan(ctx), nil
	case "shell":
		return NewShellCmd(ctx), nil
	default:
		return nil, ErrNotExist
	}
}
