package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/internal/config"
	"github.com/matzehuels/atlaspack/pkg/buildinfo"
	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "atlaspack"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// FS is the filesystem every command reads and writes through.
	FS afero.Fs
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		FS:     afero.NewOsFs(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// verbose reports whether debug logging is on.
func (c *CLI) verbose() bool {
	return c.Logger.GetLevel() <= log.DebugLevel
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Atlaspack packs sprite images into texture atlases",
		Long: `Atlaspack packs a directory of sprite images into one or more fixed-size
atlas layers and writes a binary descriptor that maps each sprite name to its
place in the atlas. A runtime registry loads the descriptor and resolves names
to normalized UV transforms, falling back to the sprite named "unknown".`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.buildCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.lookupCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Config & Runner Factory
// =============================================================================

// loadConfig reads the --config file, or atlaspack.toml from the working
// directory or the source directory when no path is given.
func (c *CLI) loadConfig(path string, dirs ...string) (config.Config, error) {
	cfg, err := config.LoadOrDefault(c.FS, path, append([]string{"."}, dirs...)...)
	if err != nil {
		return cfg, err
	}
	if cfg.Path != "" {
		c.Logger.Debug("loaded config", "path", cfg.Path)
	}
	return cfg, nil
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, cfg config.Config, noCache bool) (*pipeline.Runner, error) {
	mc, keyer, err := c.newCache(ctx, cfg, noCache)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(c.FS, mc, keyer, c.Logger)
	if ttl, err := cfg.Cache.TTLDuration(); err == nil {
		runner.MetadataTTL = ttl
	}
	return runner, nil
}

// newCache opens the metadata cache selected by cfg. An unusable file
// cache degrades to no caching; an unreachable redis server is an error
// because the user asked for it explicitly.
func (c *CLI) newCache(ctx context.Context, cfg config.Config, noCache bool) (cache.Cache, cache.Keyer, error) {
	var keyer cache.Keyer = cache.NewDefaultKeyer()
	if cfg.Cache.Prefix != "" {
		keyer = cache.NewScopedKeyer(keyer, cfg.Cache.Prefix)
	}

	if noCache {
		return cache.NewNullCache(), keyer, nil
	}

	switch cfg.Cache.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), keyer, nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{Addr: cfg.Cache.RedisAddr})
		if err != nil {
			return nil, nil, err
		}
		return rc, keyer, nil
	}

	dir, err := cfg.Cache.CacheDir(appName)
	if err != nil {
		c.Logger.Warn("cache directory unavailable, caching disabled", "error", err)
		return cache.NewNullCache(), keyer, nil
	}
	fc, err := cache.NewFileCache(c.FS, dir)
	if err != nil {
		c.Logger.Warn("cache directory unavailable, caching disabled", "dir", dir, "error", err)
		return cache.NewNullCache(), keyer, nil
	}
	return fc, keyer, nil
}
