/*
renderworld runs the scene aggregator on top of the engine package:
a window (or a headless device) draws every geometry entity of a map.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/renderworld/engine"
	"github.com/spaghettifunk/renderworld/engine/config"
	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/world"
	"github.com/spaghettifunk/renderworld/testbed"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath string
	backend    string
	mapFile    string
	frames     uint64
	watch      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "renderworld",
		Short:        "Draws the geometry entities of a world map",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newMapCmd())
	return root
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the scene and render until closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "renderer backend (headless, wgpu, vulkan)")
	cmd.Flags().StringVarP(&opts.mapFile, "map", "m", "", "map file to load instead of the demo scene")
	cmd.Flags().Uint64Var(&opts.frames, "frames", 0, "frames to render before exiting, 0 runs until closed")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "reload the map file when it changes")
	return cmd
}

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Work with map files",
	}

	newCmd := &cobra.Command{
		Use:   "new <path>",
		Short: "Write the demo scene as a map file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := world.SaveMap(args[0], testbed.DemoMap()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "map written to %s\n", args[0])
			return nil
		},
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Load a map headless, render one frame and print what was drawn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd, args[0])
		},
	}

	cmd.AddCommand(newCmd, inspectCmd)
	return cmd
}

func loadConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Renderer.Backend = config.BackendType(opts.backend)
	}
	if flags.Changed("map") {
		cfg.World.MapFile = opts.mapFile
	}
	if flags.Changed("frames") {
		cfg.Application.MaxFrames = opts.frames
	}
	if flags.Changed("watch") {
		cfg.World.Watch = opts.watch
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config) error {
	tb := testbed.NewTestGame(cfg)

	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		return err
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := e.Initialize(ctx); err != nil {
		_ = e.Shutdown()
		return err
	}

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	return runErr
}

func inspect(cmd *cobra.Command, path string) error {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendHeadless
	cfg.World.MapFile = path
	cfg.Application.MaxFrames = 1
	cfg.Application.LogLevel = core.WarnLevel

	e, err := engine.New(&engine.Game{}, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Shutdown() }()

	if err := e.Initialize(cmd.Context()); err != nil {
		return err
	}
	if err := e.Run(cmd.Context()); err != nil {
		return err
	}

	scene := e.Scene()
	meshes := scene.Renderer.Meshes()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "entities:        %d\n", scene.World.EntityCount())
	fmt.Fprintf(out, "lights:          %d\n", scene.World.LightCount())
	fmt.Fprintf(out, "render entities: %d\n", len(scene.Renderer.RenderEntities()))
	fmt.Fprintf(out, "meshes:          %d (%d vertices, %d indices)\n", meshes.MeshCount(), meshes.VertexCount(), meshes.IndexCount())
	return nil
}
