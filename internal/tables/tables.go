// Package tables holds the terminal table styles shared by the command-line tools.
package tables

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	// TitleStyle is used for the title printed before a table.
	TitleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0, 0, 0)
)

// New returns a table with alternating row styles. Columns without an alignment take the last one given,
// and they are left aligned if none is given.
func New(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return headerRowStyle
			}
			s := evenRowStyle
			if row%2 == 0 {
				s = oddRowStyle
			}
			return s.Align(Alignment(col, alignments))
		})
}

// Alignment returns the alignment of column col.
func Alignment(col int, alignments []lipgloss.Position) lipgloss.Position {
	switch {
	case col < len(alignments):
		return alignments[col]
	case len(alignments) > 0:
		return alignments[len(alignments)-1]
	default:
		return lipgloss.Left
	}
}
