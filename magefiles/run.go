//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed config until interrupted.
func (Run) Engine() error {
	mg.Deps(Build.Binary)
	fmt.Println("Run engine...")
	_, err := executeCmd("bin/framegraph", withArgs("-config", "testbed/config.toml"), withStream())
	return err
}

// Prints the compiled plan of the testbed graph.
func (Run) Dump() error {
	mg.Deps(Build.Binary)
	_, err := executeCmd("bin/framegraph", withArgs("-dump", "testbed/graphs/deferred.toml"), withStream())
	return err
}
