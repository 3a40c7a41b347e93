package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/pkg/imageio"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
	"github.com/matzehuels/atlaspack/pkg/sprite"
)

// buildOpts holds the command-line flags for the build command. Zero values
// mean "not given"; only flags the user set override the config file.
type buildOpts struct {
	output     string   // base path for <base><i>.png and <base>.ats
	width      uint32   // layer width in pixels
	height     uint32   // layer height in pixels
	workers    int      // layers composited in parallel (0 = one per CPU)
	extensions []string // source extensions, e.g. .png
	compress   string   // PNG compression level name
	configPath string   // explicit atlaspack.toml
	noCache    bool     // skip the metadata cache entirely
	refresh    bool     // re-probe every image and refresh the cache
	dumpTrees  bool     // write each layer's free-rectangle tree as SVG
}

// buildCommand creates the build command that packs a sprite directory.
func (c *CLI) buildCommand() *cobra.Command {
	var opts buildOpts

	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Pack a directory of sprites into atlas layers",
		Long: `Pack a directory of sprites into atlas layers.

Every image under dir (recursively) becomes a sprite named by its path
relative to dir without the extension, e.g. ui/buttons/ok. Sprites are
packed into as many fixed-size layers as needed with a 1px gutter between
them. The build writes one PNG per layer and a binary descriptor:

  <base>0.png, <base>1.png, ...
  <base>.ats

base defaults to dir without its trailing separator. Settings are read from
atlaspack.toml (in the working directory or dir) and overridden by flags.
Image sizes are cached between runs; edited files are always re-read.`,
		Example: `  atlaspack build textures/
  atlaspack build textures -o build/atlas --width 2048 --height 2048
  atlaspack build textures --ext .png --no-cache -v
  atlaspack build textures --compression best`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output base path (default: dir without trailing separator)")
	cmd.Flags().Uint32Var(&opts.width, "width", pipeline.DefaultCanvasSize, "layer width in pixels")
	cmd.Flags().Uint32Var(&opts.height, "height", pipeline.DefaultCanvasSize, "layer height in pixels")
	cmd.Flags().IntVar(&opts.workers, "workers", pipeline.DefaultWorkers, "layers composited in parallel (0 = one per CPU)")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", pipeline.DefaultExtensions(), "source image extensions")
	cmd.Flags().StringVar(&opts.compress, "compression", "", "layer PNG compression: "+strings.Join(imageio.CompressionNames, ", "))
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./atlaspack.toml or <dir>/atlaspack.toml)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the metadata cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "re-read every image size and refresh the cache")
	cmd.Flags().BoolVar(&opts.dumpTrees, "dump-trees", false, "write each layer's packing tree as <base><i>.tree.svg")

	return cmd
}

// resolveBuildOptions layers flags the user set over the config file.
func resolveBuildOptions(cmd *cobra.Command, base pipeline.Options, opts buildOpts) pipeline.Options {
	flags := cmd.Flags()
	if flags.Changed("output") {
		base.Output = opts.output
	}
	if flags.Changed("width") {
		base.Width = opts.width
	}
	if flags.Changed("height") {
		base.Height = opts.height
	}
	if flags.Changed("workers") {
		base.Workers = opts.workers
	}
	if flags.Changed("ext") {
		base.Extensions = opts.extensions
	}
	if flags.Changed("compression") {
		base.Compression = opts.compress
	}
	base.Refresh = opts.refresh
	base.DumpTrees = opts.dumpTrees
	return base
}

// runBuild loads config, runs the pipeline and reports the artifacts.
func (c *CLI) runBuild(cmd *cobra.Command, root string, opts buildOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	// A zero canvas would otherwise fall back to the default size.
	for name, v := range map[string]uint32{"width": opts.width, "height": opts.height} {
		if cmd.Flags().Changed(name) {
			if err := pipeline.ValidateCanvasSize("--"+name, v); err != nil {
				return err
			}
		}
	}

	cfg, err := c.loadConfig(opts.configPath, root)
	if err != nil {
		return err
	}
	buildOptions := resolveBuildOptions(cmd, cfg.Options(root), opts)

	runner, err := c.newRunner(ctx, cfg, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	result, err := c.execute(ctx, runner, buildOptions, logger)
	if err != nil {
		return err
	}

	fmt.Println(formatBuildStats(result.Stats, result.CacheInfo))
	for _, p := range result.LayerPaths {
		printFile(p)
	}
	for _, p := range result.TreePaths {
		printFile(p)
	}
	printFile(result.DescriptorPath)

	if _, ok := result.Descriptor.Lookup(sprite.UnknownName); !ok {
		printWarning("No %q sprite: the registry will refuse to load this atlas", sprite.UnknownName)
		printDetail("Add %s/%s.png to provide the fallback sprite", root, sprite.UnknownName)
		return nil
	}
	printNextStep("Inspect", "atlaspack inspect "+result.DescriptorPath)
	return nil
}

// execute runs the build. With --verbose the pipeline logs every stage;
// otherwise a spinner narrates the stages and only errors are logged.
func (c *CLI) execute(ctx context.Context, runner *pipeline.Runner, opts pipeline.Options, logger *log.Logger) (*pipeline.Result, error) {
	if c.verbose() {
		opts.Logger = logger
		prog := newProgress(logger)
		result, err := runner.Execute(ctx, opts)
		if err != nil {
			return nil, err
		}
		prog.done(fmt.Sprintf("Built %d sprites into %d layers", result.Stats.Sprites, result.Stats.Layers))
		printSuccess("Packed %s", StyleHighlight.Render(opts.Root))
		return result, nil
	}

	quiet := logger.With()
	quiet.SetLevel(log.ErrorLevel)
	opts.Logger = quiet

	spinner := newSpinnerWithContext(ctx, "Building atlas...")
	observability.SetBuildHooks(newSpinnerHooks(spinner))
	defer observability.SetBuildHooks(observability.NoopBuildHooks{})
	spinner.Start()

	result, err := runner.Execute(ctx, opts)
	if err != nil {
		if spinner.Cancelled() {
			spinner.Stop()
		} else {
			spinner.StopWithError("Build failed")
		}
		return nil, err
	}
	spinner.StopWithSuccess("Packed " + StyleHighlight.Render(opts.Root))
	return result, nil
}
