package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/pkg/sprite"
)

// lookupCommand creates the lookup command that resolves sprite names the
// way the runtime registry does.
func (c *CLI) lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup [file.ats] [name...]",
		Short: "Resolve sprite names to IDs and UV transforms",
		Long: `Resolve sprite names to IDs and UV transforms.

Names that are not in the atlas resolve to ID 0 and the transform of the
"unknown" sprite, exactly as the runtime registry does.`,
		Example: `  atlaspack lookup textures.ats ui/buttons/ok hero`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			prog := newProgress(logger)
			reg, err := sprite.Load(c.FS, args[0])
			if err != nil {
				return err
			}
			logger.Debug("loaded registry", "path", args[0], "sprites", reg.Len(), "duration", prog.elapsed())

			for _, name := range args[1:] {
				printLookup(reg, name)
			}
			return nil
		},
	}
}

func printLookup(reg *sprite.Registry, name string) {
	id := reg.Lookup(name)
	m := reg.TransformFor(id)
	if id == sprite.Miss {
		printWarning("%s not found, using %q", name, sprite.UnknownName)
	} else {
		printSuccess("%s", StyleHighlight.Render(name))
	}
	printKeyValue("  id", strconv.FormatUint(uint64(id), 10))
	printKeyValue("  scale", formatPair(m.Scale()))
	printKeyValue("  offset", formatPair(m.Translation()))
	printKeyValue("  layer", fmt.Sprintf("%g", m.Layer()))
	u0, v0, _ := m.Apply(0, 0)
	u1, v1, _ := m.Apply(1, 1)
	printKeyValue("  uv", formatPair(u0, v0)+" → "+formatPair(u1, v1))
}

func formatPair(a, b float32) string {
	return strconv.FormatFloat(float64(a), 'g', 6, 32) + ", " + strconv.FormatFloat(float64(b), 'g', 6, 32)
}
