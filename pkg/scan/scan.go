// Package scan enumerates source images under a directory tree.
//
// Each image becomes an Asset whose Name is its path relative to the root,
// slash-separated, without the extension: "ui/buttons/ok.png" under the
// root becomes "ui/buttons/ok". Results are sorted by name so builds are
// reproducible across filesystems.
package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// Asset is one source image found by Walk.
type Asset struct {
	Name string // sprite name
	Path string // filesystem path, as joined from the walk root
}

// Walk returns every regular file below root whose extension matches one
// of exts, compared case-insensitively. Extensions include the dot.
//
// I/O failures and two files mapping to the same sprite name (a.png and
// a.bmp) are SCAN_FAILED. Names failing ValidateSpriteName are
// INVALID_NAME.
func Walk(afs afero.Fs, root string, exts []string) ([]Asset, error) {
	info, err := afs.Stat(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeScan, err, "scan %s", root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeScan, "scan %s: not a directory", root)
	}

	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	var assets []Asset
	seen := make(map[string]string)
	err = afero.Walk(afs, root, func(path string, fi fs.FileInfo, err error) error {
		if err != nil {
			return errors.Wrap(errors.ErrCodeScan, err, "scan %s", path)
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		ext := filepath.Ext(path)
		if !want[strings.ToLower(ext)] {
			return nil
		}

		name, err := spriteName(root, path, ext)
		if err != nil {
			return err
		}
		if prev, dup := seen[name]; dup {
			return errors.New(errors.ErrCodeScan, "sprite name %q is produced by both %s and %s", name, prev, path)
		}
		seen[name] = path
		assets = append(assets, Asset{Name: name, Path: path})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(assets, func(a, b Asset) int { return strings.Compare(a.Name, b.Name) })
	return assets, nil
}

func spriteName(root, path, ext string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeScan, err, "scan %s", path)
	}
	name := filepath.ToSlash(strings.TrimSuffix(rel, ext))
	if err := errors.ValidateSpriteName(name); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return name, nil
}
