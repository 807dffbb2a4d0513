//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Opens a window and renders the demo scene with the wgpu backend.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "run", "--backend", "wgpu"), withEnv(cgoEnabled), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles the shaders and renders the demo scene with the Vulkan backend.
func (Run) Vulkan() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("run", ".", "run", "--backend", "vulkan"), withEnv(cgoEnabled), withStream())
	return err
}

// Renders a few frames of the demo scene without a device.
func (Run) Headless() error {
	if _, err := executeCmd("go", withArgs("run", ".", "run", "--backend", "headless", "--frames", "60"), withEnv(cgoEnabled), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders maps/demo.toml and reloads it on every save.
func (Run) Watch() error {
	mg.Deps(Build.DemoMap)
	_, err := executeCmd("bin/renderworld", withArgs("run", "--backend", "wgpu", "--map", "maps/demo.toml", "--watch"), withStream())
	return err
}
