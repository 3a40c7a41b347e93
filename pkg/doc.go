// Package pkg provides the core libraries for atlaspack sprite atlases.
//
// # Overview
//
// Atlaspack packs a directory of sprite images into fixed-size atlas layers
// and describes where each sprite landed in a compact binary descriptor.
// At run time the descriptor is loaded into a registry that resolves sprite
// names to UV transforms. The pkg directory is organized into three areas:
//
//  1. Build - [scan], [pack], [compose] and [imageio] turn images into layers
//  2. Format - [descriptor] reads and writes the .ats file
//  3. Runtime - [sprite] resolves names against a loaded descriptor
//
// [pipeline] orchestrates the build; [cache], [errors], [observability] and
// [buildinfo] are shared infrastructure.
//
// # Architecture
//
// The typical data flow through atlaspack:
//
//	sprite directory
//	         ↓
//	    [scan] package (enumerate images, derive names)
//	         ↓
//	    [imageio] package (probe dimensions, cached by [cache])
//	         ↓
//	    [pack] package (guillotine placement into layers)
//	         ↓
//	    [compose] package (one RGBA image per layer)
//	         ↓
//	    [descriptor] package (<base>.ats, written last)
//	         ↓
//	    [sprite] package (runtime name → id → transform)
//
// # Quick Start
//
// Build an atlas:
//
//	runner := pipeline.NewRunner(afero.NewOsFs(), nil, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{Root: "textures"})
//
// Resolve sprites at run time:
//
//	reg, err := sprite.Load(afero.NewOsFs(), "textures.ats")
//	id := reg.Lookup("ui/buttons/ok")
//	m := reg.TransformFor(id) // "unknown" sprite's transform when id is 0
//
// # Main Packages
//
// [pack] - Guillotine rectangle packing. Images are sorted by width then
// height (both descending) and placed into a binary tree of free
// rectangles per layer, with a 1px gutter right of and below every sprite.
// Images that fit no existing layer open a new one.
//
// [compose] - Copies each placed image's pixels into its layer buffer and
// hands the buffer to an encoder. Layers are composited in parallel.
//
// [descriptor] - The big-endian .ats format: a 16-byte header (count,
// canvas width, canvas height, layer count) followed by fixed-size records
// and NUL-terminated names.
//
// [sprite] - Immutable registry built from a descriptor. Lookups never
// fail; misses fall back to the sprite named "unknown".
//
// [cache] - Metadata cache backends (file, redis, null) and key builders.
//
// [observability] - Hook interfaces for build, cache and HTTP events.
//
// # Testing
//
// Run tests:
//
//	go test ./...                                   # All tests
//	go test ./pkg/pack/...                          # Specific package
//	ATLASPACK_TEST_REDIS=localhost:6379 go test ./pkg/cache/...  # Include redis
//
// [scan]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/scan
// [pack]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/pack
// [compose]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/compose
// [imageio]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/imageio
// [descriptor]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/descriptor
// [sprite]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/sprite
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/atlaspack/pkg/buildinfo
package pkg
