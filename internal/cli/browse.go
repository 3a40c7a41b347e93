package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlaspack/pkg/sprite"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// browseCommand creates the browse command, an interactive sprite list.
func (c *CLI) browseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse [file.ats]",
		Short: "Browse a descriptor's sprites interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := sprite.Load(c.FS, args[0])
			if err != nil {
				return err
			}
			p := tea.NewProgram(NewSpriteListModel(args[0], reg), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
}

// =============================================================================
// SpriteListModel - Interactive sprite browser
// =============================================================================

// SpriteListModel is the bubbletea model for browsing a registry.
type SpriteListModel struct {
	Title     string
	Canvas    sprite.Canvas
	Sprites   []sprite.Sprite
	Visible   []int // indexes into Sprites that match Filter
	Filter    string
	Filtering bool
	Cursor    int
	Height    int
	Offset    int
}

// NewSpriteListModel creates a browser over every sprite in reg.
func NewSpriteListModel(title string, reg *sprite.Registry) SpriteListModel {
	m := SpriteListModel{
		Title:   title,
		Canvas:  reg.Canvas(),
		Sprites: reg.Sprites(),
		Height:  15,
	}
	m.applyFilter()
	return m
}

func (m SpriteListModel) Init() tea.Cmd {
	return nil
}

func (m SpriteListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Filtering {
			return m.updateFilter(msg), nil
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "/":
			m.Filtering = true
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "pgup":
			m.move(-m.Height)
		case "pgdown":
			m.move(m.Height)
		case "home", "g":
			m.move(-len(m.Visible))
		case "end", "G":
			m.move(len(m.Visible))
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 12
		if m.Height < 5 {
			m.Height = 5
		}
		m.move(0)
	}
	return m, nil
}

// updateFilter edits the filter while the user types.
func (m SpriteListModel) updateFilter(msg tea.KeyMsg) SpriteListModel {
	switch msg.Type {
	case tea.KeyEnter:
		m.Filtering = false
	case tea.KeyEsc:
		m.Filtering = false
		m.Filter = ""
	case tea.KeyBackspace:
		if r := []rune(m.Filter); len(r) > 0 {
			m.Filter = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.Filter += string(msg.Runes)
	}
	m.applyFilter()
	return m
}

func (m *SpriteListModel) applyFilter() {
	needle := strings.ToLower(m.Filter)
	visible := make([]int, 0, len(m.Sprites))
	for i, sp := range m.Sprites {
		if needle == "" || strings.Contains(strings.ToLower(sp.Name), needle) {
			visible = append(visible, i)
		}
	}
	m.Visible = visible
	m.Cursor, m.Offset = 0, 0
}

// move shifts the cursor by delta and keeps it in the visible window.
func (m *SpriteListModel) move(delta int) {
	m.Cursor = max(0, min(m.Cursor+delta, len(m.Visible)-1))
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
}

// Selected returns the sprite under the cursor.
func (m SpriteListModel) Selected() (sprite.Sprite, bool) {
	if len(m.Visible) == 0 {
		return sprite.Sprite{}, false
	}
	return m.Sprites[m.Visible[m.Cursor]], true
}

func (m SpriteListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %dx%d · %d layers · %d sprites",
		m.Canvas.Width, m.Canvas.Height, m.Canvas.Layers, len(m.Sprites))))
	b.WriteString("\n")
	if m.Filtering {
		b.WriteString(listSelectedStyle.Render("/" + m.Filter + "▏"))
	} else if m.Filter != "" {
		b.WriteString(listDimStyle.Render("filter: " + m.Filter + "  (/ edit, esc in filter clears)"))
	} else {
		b.WriteString(listDimStyle.Render("↑/↓ navigate  / filter  q quit"))
	}
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Visible))
	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		sp := m.Sprites[m.Visible[i]]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, strconv.FormatUint(uint64(sp.ID), 10), sp.Name, strconv.FormatUint(uint64(sp.Layer), 10)})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Name", "Layer").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return listSelectedStyle
			}
			if idx := m.Offset + row; idx < len(m.Visible) && m.Sprites[m.Visible[idx]].Name == sprite.UnknownName {
				return lipgloss.NewStyle().Foreground(colorYellow)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})

	b.WriteString(t.Render())
	b.WriteString("\n")

	if sp, ok := m.Selected(); ok {
		sx, sy := sp.Transform.Scale()
		tx, ty := sp.Transform.Translation()
		b.WriteString(listDimStyle.Render(fmt.Sprintf("  scale %g, %g  offset %g, %g  layer %g",
			sx, sy, tx, ty, sp.Transform.Layer())))
		b.WriteString("\n")
		b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Visible))))
	} else {
		b.WriteString(listDimStyle.Render("  no sprites match"))
	}

	return b.String()
}
