package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/internal/config"
	"github.com/matzehuels/atlaspack/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the image metadata cache",
		Long: `Manage the image metadata cache.

Builds cache each image's dimensions keyed by path, size and modification
time, so unchanged images are not decoded again. These commands act on the
file cache; a redis cache (cache.backend = "redis") expires on its own.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./atlaspack.toml)")

	cmd.AddCommand(c.cacheClearCommand(&configPath))
	cmd.AddCommand(c.cachePathCommand(&configPath))

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached image metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.fileCacheDir(*configPath)
			if err != nil {
				return err
			}

			if _, err := c.FS.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			fc, err := cache.NewFileCache(c.FS, dir)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			count, err := fc.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}

			printSuccess("Cleared %d cached entries", count)
			printDetail("Directory: %s", dir)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.fileCacheDir(*configPath)
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		},
	}
}

// fileCacheDir resolves the file cache directory from config, honouring
// cache.dir.
func (c *CLI) fileCacheDir(configPath string) (string, error) {
	cfg, err := c.loadConfig(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Cache.Backend != config.BackendFile {
		printWarning("cache.backend is %q; showing the file cache location", cfg.Cache.Backend)
	}
	dir, err := cfg.Cache.CacheDir(appName)
	if err != nil {
		return "", fmt.Errorf("get cache dir: %w", err)
	}
	return dir, nil
}
