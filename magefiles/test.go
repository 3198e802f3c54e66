//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests of every package.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the unit tests with the race detector, which matters for the
// concurrent level recording.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./engine/..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
