/*
vulx draws the demo scene through the path renderer, either into an image
file or into a window.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/vulx/engine"
	"github.com/spaghettifunk/vulx/engine/assets"
	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/platform"
	"github.com/spaghettifunk/vulx/engine/renderer"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
	"github.com/spaghettifunk/vulx/engine/renderer/softgpu"
	"github.com/spaghettifunk/vulx/engine/renderer/vulkan"
	"github.com/spaghettifunk/vulx/testbed"
)

type options struct {
	configPath string
	driver     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "vulx",
		Short:        "Render vector paths through Vulkan",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "graphics driver: vulkan or soft")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newDevicesCmd(opts), newRenderCmd(opts), newWindowCmd(opts))
	return root
}

// load reads the configuration and applies the command line overrides.
func (o *options) load() (*core.Config, error) {
	cfg := core.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = core.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.driver != "" {
		cfg.Render.Driver = o.driver
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newInstance opens the configured driver. The returned release destroys the
// instance only; glfw must outlive it.
func newInstance(cfg *core.Config, extensions []string) (gpu.Instance, func(), error) {
	if cfg.Render.Driver == "soft" {
		inst := softgpu.NewInstance()
		return inst, inst.Destroy, nil
	}
	if err := platform.Init(); err != nil {
		return nil, nil, err
	}
	inst, err := vulkan.NewInstance(vulkan.Config{
		AppName:    cfg.Window.Title,
		ProcAddr:   platform.ProcAddr(),
		Extensions: extensions,
		Debug:      cfg.Render.Validation,
	})
	if err != nil {
		return nil, nil, err
	}
	return inst, inst.Destroy, nil
}

func newDevicesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List physical devices, queue families and memory heaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			if cfg.Render.Driver == "vulkan" {
				defer platform.Terminate()
			}
			inst, release, err := newInstance(cfg, nil)
			if err != nil {
				return err
			}
			defer release()
			return renderer.DescribeDevices(inst, cmd.OutOrStdout())
		},
	}
}

func newRenderCmd(o *options) *cobra.Command {
	var output string
	var width, height uint32
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw the demo scene into an image file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Render.Output = output
			}
			if width != 0 {
				cfg.Window.Width = width
			}
			if height != 0 {
				cfg.Window.Height = height
			}
			if cfg.Render.Driver == "vulkan" {
				defer platform.Terminate()
			}
			return renderImage(cfg)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.png, .bmp, .tiff)")
	cmd.Flags().Uint32Var(&width, "width", 0, "image width in pixels")
	cmd.Flags().Uint32Var(&height, "height", 0, "image height in pixels")
	return cmd
}

func renderImage(cfg *core.Config) error {
	opts, err := renderer.TargetOptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	inst, release, err := newInstance(cfg, nil)
	if err != nil {
		return err
	}
	defer release()

	dev, err := renderer.NewDevice(inst, renderer.DefaultRequirements())
	if err != nil {
		return err
	}
	defer dev.Destroy()

	target, err := renderer.NewPNGTarget(renderer.PNGTargetConfig{
		TargetOptions: opts,
		Device:        dev,
		Width:         cfg.Window.Width,
		Height:        cfg.Window.Height,
		Path:          cfg.Render.Output,
	})
	if err != nil {
		return err
	}
	defer target.Destroy()

	if err := target.Stage().Update(); err != nil {
		return err
	}
	sources, err := testbed.Scene(cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return err
	}
	if err := target.Begin(); err != nil {
		return err
	}
	for _, src := range sources {
		if err := target.Fill(src); err != nil {
			_ = target.End()
			return err
		}
	}
	if err := target.End(); err != nil {
		return err
	}
	core.LogInfo("wrote %s", cfg.Render.Output)
	return nil
}

// windowHost releases the instance between the target and glfw, which
// unloads the Vulkan loader on terminate.
type windowHost struct {
	*platform.Platform
	release func()
}

func (h windowHost) Shutdown() error {
	h.release()
	return h.Platform.Shutdown()
}

func newWindowCmd(o *options) *cobra.Command {
	var frames uint64
	var watch bool
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Draw the demo scene into a window until it is closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			if cfg.Render.Driver != "vulkan" {
				return fmt.Errorf("the window command needs the vulkan driver, got %q", cfg.Render.Driver)
			}
			if cmd.Flags().Changed("watch") {
				cfg.Shaders.Watch = watch
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWindow(ctx, cfg, frames)
		},
	}
	cmd.Flags().Uint64Var(&frames, "frames", 0, "stop after this many frames (0 runs until closed)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload shader files when they change")
	return cmd
}

func runWindow(ctx context.Context, cfg *core.Config, frames uint64) error {
	opts, err := renderer.TargetOptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	if cfg.Shaders.Watch && (cfg.Shaders.Vertex != "" || cfg.Shaders.Fragment != "") {
		watcher, err := assets.NewShaderWatcher(cfg.Shaders.Vertex, cfg.Shaders.Fragment)
		if err != nil {
			return err
		}
		defer watcher.Close()
		opts.Watcher = watcher
	}

	bus := core.NewEventBus(core.DefaultEventQueueSize)
	input := core.NewInput(bus)
	p := platform.New(bus, input)
	if err := p.Startup(cfg.Window); err != nil {
		return err
	}

	inst, release, err := newInstance(cfg, p.RequiredExtensions())
	if err != nil {
		_ = p.Shutdown()
		return err
	}
	target, err := renderer.NewSurfaceTarget(renderer.SurfaceTargetConfig{
		TargetOptions: opts,
		Instance:      inst,
		Window:        p.Window(),
	})
	if err != nil {
		release()
		_ = p.Shutdown()
		return err
	}

	appConfig := engine.NewApplicationConfig(cfg)
	appConfig.MaxFrames = frames
	e, err := engine.New(testbed.NewTestGame(appConfig), windowHost{Platform: p, release: release}, target, bus, input)
	if err != nil {
		_ = target.Destroy()
		release()
		_ = p.Shutdown()
		return err
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
