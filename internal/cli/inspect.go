package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/pkg/descriptor"
	"github.com/matzehuels/atlaspack/pkg/sprite"
)

// descriptorJSON is the --json form of a descriptor.
type descriptorJSON struct {
	Canvas struct {
		Width  uint32 `json:"width"`
		Height uint32 `json:"height"`
		Layers uint32 `json:"layers"`
	} `json:"canvas"`
	Records []recordJSON `json:"records"`
}

type recordJSON struct {
	Name  string `json:"name"`
	Layer uint32 `json:"layer"`
	X     uint32 `json:"x"`
	Y     uint32 `json:"y"`
	W     uint32 `json:"w"`
	H     uint32 `json:"h"`
}

// inspectCommand creates the inspect command that prints a descriptor.
func (c *CLI) inspectCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [file.ats]",
		Short: "Print a descriptor's canvas and sprite records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := descriptor.ReadFile(c.FS, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeDescriptorJSON(d)
			}
			printDescriptor(args[0], d)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}

func writeDescriptorJSON(d *descriptor.Descriptor) error {
	var out descriptorJSON
	out.Canvas.Width = d.CanvasWidth
	out.Canvas.Height = d.CanvasHeight
	out.Canvas.Layers = d.LayerCount
	out.Records = make([]recordJSON, len(d.Records))
	for i, r := range d.Records {
		out.Records[i] = recordJSON{Name: r.Name, Layer: r.Layer, X: r.X, Y: r.Y, W: r.W, H: r.H}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printDescriptor(path string, d *descriptor.Descriptor) {
	fmt.Println(StyleTitle.Render(path))
	printKeyValue("Canvas", fmt.Sprintf("%dx%d", d.CanvasWidth, d.CanvasHeight))
	printKeyValue("Layers", strconv.FormatUint(uint64(d.LayerCount), 10))
	printKeyValue("Sprites", strconv.Itoa(len(d.Records)))
	for l, f := range layerFill(d) {
		printKeyValue(fmt.Sprintf("Layer %d", l), fmt.Sprintf("%.1f%% filled", 100*f))
	}
	fmt.Println()

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	cell := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, len(d.Records))
	for i, r := range d.Records {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			r.Name,
			strconv.FormatUint(uint64(r.Layer), 10),
			strconv.FormatUint(uint64(r.X), 10),
			strconv.FormatUint(uint64(r.Y), 10),
			fmt.Sprintf("%dx%d", r.W, r.H),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Name", "Layer", "X", "Y", "Size").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if row >= 0 && row < len(d.Records) && d.Records[row].Name == sprite.UnknownName {
				return cell.Foreground(colorYellow)
			}
			if col == 1 {
				return cell.Foreground(colorWhite)
			}
			return cell.Foreground(colorGray)
		})
	fmt.Println(t.Render())

	if _, ok := d.Lookup(sprite.UnknownName); !ok {
		printWarning("No %q sprite: the registry will refuse to load this atlas", sprite.UnknownName)
	}
}

// layerFill returns the share of each layer covered by sprites, gutters
// excluded.
func layerFill(d *descriptor.Descriptor) []float64 {
	if d.LayerCount == 0 || d.CanvasWidth == 0 || d.CanvasHeight == 0 {
		return nil
	}
	used := make([]uint64, d.LayerCount)
	for _, r := range d.Records {
		if r.Layer < d.LayerCount {
			used[r.Layer] += uint64(r.W) * uint64(r.H)
		}
	}
	total := float64(uint64(d.CanvasWidth) * uint64(d.CanvasHeight))
	fill := make([]float64, len(used))
	for i, u := range used {
		fill[i] = float64(u) / total
	}
	return fill
}
