package pipeline

import (
	"context"

	"github.com/spf13/afero"

	"github.com/matzehuels/atlaspack/pkg/errors"
	"github.com/matzehuels/atlaspack/pkg/pack"
)

// DumpTrees renders each layer's free-rectangle tree to SVG beside the
// layer images and returns the written paths. Trees are a debugging aid;
// they are never read back by the build.
func (r *Runner) DumpTrees(ctx context.Context, trees []*pack.Tree, opts Options) ([]string, error) {
	paths := make([]string, 0, len(trees))
	for _, t := range trees {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		svg, err := pack.RenderTreeSVG(ctx, t)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeEncode, err, "render tree for layer %d", t.Layer)
		}
		path := opts.TreePath(t.Layer)
		if err := afero.WriteFile(r.FS, path, svg, 0o644); err != nil {
			return nil, errors.Wrap(errors.ErrCodeEncode, err, "write %s", path)
		}
		opts.Logger.Debug("wrote tree", "layer", t.Layer, "path", path, "nodes", len(t.Nodes))
		paths = append(paths, path)
	}
	return paths, nil
}
