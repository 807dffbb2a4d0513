//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/renderworld/engine/config"
)

type Build mg.Namespace

// Downloads the modules and builds the renderworld binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/renderworld", "."), withEnv(cgoEnabled), withStream()); err != nil {
		return err
	}
	return nil
}

// Writes the demo scene to maps/demo.toml.
func (Build) DemoMap() error {
	mg.Deps(Build.Binary)
	_, err := executeCmd("bin/renderworld", withArgs("map", "new", "maps/demo.toml"), withStream())
	return err
}

// Compiles the Vulkan shaders to SPIR-V with glslc. The binding registers come
// from the file named by RENDERWORLD_CONFIG, or the defaults.
func (Build) Shaders() error {
	cfg := config.Default()
	if path := os.Getenv("RENDERWORLD_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	out := cfg.Renderer.Vulkan.ShaderDir
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	r := cfg.Renderer.Registers
	defines := []string{
		fmt.Sprintf("-DFRAME_CONSTANTS=%d", r.FrameConstants),
		fmt.Sprintf("-DMESHES=%d", r.Meshes),
		fmt.Sprintf("-DWORLD_MATRICES=%d", r.WorldMatrices),
		fmt.Sprintf("-DINDICES=%d", r.Indices),
		fmt.Sprintf("-DVERTICES=%d", r.Vertices),
	}
	for _, stage := range []string{"vert", "frag"} {
		src := filepath.Join("engine", "renderer", "vulkan", "shaders", "renderworld."+stage)
		args := append([]string{"-o", filepath.Join(out, "renderworld."+stage+".spv")}, defines...)
		if _, err := executeCmd("glslc", withArgs(append(args, src)...), withStream()); err != nil {
			return err
		}
	}
	return nil
}
