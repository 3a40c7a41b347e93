// Package config loads atlaspack.toml.
//
// A config file supplies project defaults for the build command. Values
// resolve in three layers: built-in defaults from package pipeline, then
// the file, then command-line flags (applied by the CLI).
//
//	[canvas]
//	width = 2048
//	height = 2048
//
//	[build]
//	output = "assets/atlas"
//	workers = 4
//	extensions = [".png", ".bmp"]
//	compression = "best"
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//	ttl = "168h"
//	prefix = "team-a"
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/imageio"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
)

// FileName is the config file looked up when no path is given.
const FileName = "atlaspack.toml"

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Config is the decoded form of atlaspack.toml.
type Config struct {
	Canvas Canvas `toml:"canvas"`
	Build  Build  `toml:"build"`
	Cache  Cache  `toml:"cache"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

// Canvas sets the layer size in pixels.
type Canvas struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

// Build holds build output settings.
type Build struct {
	Output     string   `toml:"output"`
	Workers    int      `toml:"workers"`
	Extensions []string `toml:"extensions"`

	// Compression is the PNG level for layer images: default, fast,
	// best or none.
	Compression string `toml:"compression"`
}

// Cache selects and configures the metadata cache.
type Cache struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	RedisAddr string `toml:"redis_addr"`
	TTL       string `toml:"ttl"`
	Prefix    string `toml:"prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Canvas: Canvas{Width: pipeline.DefaultCanvasSize, Height: pipeline.DefaultCanvasSize},
		Build: Build{
			Workers:    pipeline.DefaultWorkers,
			Extensions: pipeline.DefaultExtensions(),
		},
		Cache: Cache{Backend: BackendFile},
	}
}

// Load reads the config file at path on top of the defaults. Keys the
// file sets override defaults; keys it omits keep them. Unknown keys are
// rejected so a typo never silently falls back to a default.
func Load(afs afero.Fs, path string) (Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(afs, path)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Find returns the first FileName found in dirs, or "" when none exists.
func Find(afs afero.Fs, dirs ...string) string {
	for _, dir := range dirs {
		path := filepath.Join(dir, FileName)
		if fi, err := afs.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// LoadOrDefault loads path when set, otherwise the first FileName found in
// dirs, otherwise the defaults. An explicit path that does not exist is an
// error.
func LoadOrDefault(afs afero.Fs, path string, dirs ...string) (Config, error) {
	if path != "" {
		if _, err := afs.Stat(path); os.IsNotExist(err) {
			return Default(), errors.New(errors.ErrCodeInvalidConfig, "config file %s does not exist", path)
		}
		return Load(afs, path)
	}
	if found := Find(afs, dirs...); found != "" {
		return Load(afs, found)
	}
	return Default(), nil
}

// Validate checks every value the file can set.
func (c Config) Validate() error {
	if err := pipeline.ValidateCanvasSize("canvas.width", c.Canvas.Width); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", c.where())
	}
	if err := pipeline.ValidateCanvasSize("canvas.height", c.Canvas.Height); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", c.where())
	}
	if c.Build.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: build.workers must not be negative", c.where())
	}
	if err := pipeline.ValidateExtensions(c.Build.Extensions); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", c.where())
	}
	if _, err := imageio.ParseCompression(c.Build.Compression); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s: build.compression", c.where())
	}
	if !slices.Contains([]string{BackendFile, BackendRedis, BackendNone}, c.Cache.Backend) {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: cache.backend %q is not one of file, redis, none", c.where(), c.Cache.Backend)
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: cache.redis_addr is required for the redis backend", c.where())
	}
	if _, err := c.Cache.TTLDuration(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s: cache.ttl", c.where())
	}
	return nil
}

// TTLDuration parses the cache TTL, defaulting to cache.TTLMetadata.
func (c Cache) TTLDuration() (time.Duration, error) {
	if c.TTL == "" {
		return cache.TTLMetadata, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "ttl must be positive, got %s", c.TTL)
	}
	return d, nil
}

// CacheDir returns the file cache directory: cache.dir when set, otherwise
// the XDG cache directory for appName.
func (c Cache) CacheDir(appName string) (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// Options returns build options for root with the config applied.
func (c Config) Options(root string) pipeline.Options {
	return pipeline.Options{
		Root:        root,
		Output:      c.Build.Output,
		Width:       c.Canvas.Width,
		Height:      c.Canvas.Height,
		Workers:     c.Build.Workers,
		Extensions:  slices.Clone(c.Build.Extensions),
		Compression: c.Build.Compression,
	}
}

func (c Config) where() string {
	if c.Path == "" {
		return "config"
	}
	return c.Path
}
