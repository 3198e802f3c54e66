// Package cli turns command-line arguments into an application config and
// the run options that only make sense from a terminal.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/spaghettifunk/framegraph/engine"
)

// ExitError carries the process exit code for a failed parse.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

type Options struct {
	// Dump prints the compiled plan and exits without drawing.
	Dump bool
}

// Parse reads the config file named by -config, if any, and applies the
// flags set on the command line over it. The boolean is true when the
// program should exit cleanly, as after -h.
func Parse(args []string, output io.Writer) (*engine.ApplicationConfig, Options, bool, error) {
	var opts Options
	flagSet := flag.NewFlagSet("framegraph", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
framegraph - compiles a render graph description and drives frames through it.

Usage:
  framegraph [options] [GRAPH_PATH]

Arguments:
  GRAPH_PATH
    A .toml or .hcl graph description. Overrides the config's graph.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to a TOML application config.")
	graphFlag := flagSet.String("graph", "", "Path to the graph description.")
	framesFlag := flagSet.Uint64("frames", 0, "Stop after this many frames. 0 runs until interrupted.")
	watchFlag := flagSet.Bool("watch", false, "Rebuild the graph when the description changes.")
	dumpFlag := flagSet.Bool("dump", false, "Print the compiled plan and exit.")
	logLevelFlag := flagSet.String("log-level", "", "Logging level: debug, info, warn, error.")
	backendFlag := flagSet.String("backend", "", "Renderer backend: headless, wgpu or vulkan.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, opts, true, nil
		}
		return nil, opts, false, &ExitError{Code: 2, Message: err.Error()}
	}

	config := engine.DefaultApplicationConfig()
	if *configFlag != "" {
		loaded, err := engine.LoadApplicationConfig(*configFlag)
		if err != nil {
			return nil, opts, false, &ExitError{Code: 2, Message: err.Error()}
		}
		config = loaded
	}

	// Only flags given explicitly override the file.
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "graph":
			config.GraphPath = *graphFlag
		case "frames":
			config.FrameLimit = *framesFlag
		case "watch":
			config.Watch = *watchFlag
		case "log-level":
			config.LogLevel = *logLevelFlag
		case "backend":
			config.Backend = *backendFlag
		}
	})
	if flagSet.NArg() > 0 {
		config.GraphPath = flagSet.Arg(0)
	}
	opts.Dump = *dumpFlag

	if config.GraphPath == "" {
		flagSet.Usage()
		return nil, opts, false, &ExitError{Code: 2, Message: "no graph description given"}
	}
	if err := config.Validate(); err != nil {
		return nil, opts, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, opts, false, nil
}
