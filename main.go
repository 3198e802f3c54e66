/*
This is an example of application that will use the
engine package to drive the testbed frame
*/
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/cli"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/headless"
	"github.com/spaghettifunk/framegraph/testbed"
)

func main() {
	config, opts, exit, err := cli.Parse(os.Args[1:], os.Stderr)
	if exit {
		return
	}
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			core.LogError("%s", exitErr.Message)
			os.Exit(exitErr.Code)
		}
		core.LogFatal("%s", err)
	}

	level, err := core.ParseLogLevel(config.LogLevel)
	if err != nil {
		core.LogFatal("%s", err)
	}
	core.SetLogLevel(level)

	backend, err := engine.NewBackend(config)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if h, ok := backend.(*headless.HeadlessRenderer); ok {
		testbed.RegisterHeadlessPasses(h)
	}

	tb, err := testbed.NewTestGame(config)
	if err != nil {
		core.LogFatal("%s", err)
	}

	e, err := engine.New(tb.Game, backend)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if err := e.Initialize(); err != nil {
		core.LogFatal("%s", err)
	}

	if opts.Dump {
		if err := e.Plan().Dump(os.Stdout); err != nil {
			core.LogError("%s", err)
		}
		if err := e.Shutdown(); err != nil {
			core.LogFatal("%s", err)
		}
		return
	}

	// cancelled on the usual termination signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("%s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
