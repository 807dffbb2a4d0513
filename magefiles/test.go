//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every test of the module.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withEnv(cgoEnabled), withStream())
	return err
}

// Runs the tests that need no window or GPU.
func (Test) Headless() error {
	_, err := executeCmd("go", withArgs("test",
		"./engine/core/...",
		"./engine/config/...",
		"./engine/geometry/...",
		"./engine/math/...",
		"./engine/world/...",
		"./engine/renderer",
		"./engine/renderer/headless/...",
		"./engine/renderer/components/...",
		"./engine/systems/...",
		"./engine/assets/...",
	), withStream())
	return err
}
