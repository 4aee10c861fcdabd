// Package columnlist is the left pane of partexplorer: a flat, cursor-
// navigable list of a partition's columns with their type and bounds,
// broadcasting the current selection over a columnselection.Bus.
package columnlist

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/partdb/partdb/cmd/partexplorer/columnselection"
	"github.com/partdb/partdb/cmd/partexplorer/virtuallist"
	"github.com/partdb/partdb/partition"
)

type Row struct {
	Name        string
	Type        string
	ElementSize int
	BoundsSet   bool
	Lower       float64
	Upper       float64
	HasIndex    bool
}

type Keys struct {
	Up, Down, Home, End, PageUp, PageDown key.Binding
}

type Model struct {
	rows     []Row
	cursor   int
	keys     Keys
	navBus   *columnselection.Bus
	renderer *virtuallist.Renderer

	cursorStyle lipgloss.Style
	dimStyle    lipgloss.Style
}

func New(p *partition.Partition) Model {
	var rows []Row
	for _, name := range p.ColumnNames() {
		c, ok := p.Column(name)
		if !ok {
			continue
		}
		r := Row{Name: name, Type: c.Type().String(), ElementSize: c.ElementSize(), HasIndex: c.HasIndex()}
		if lo, hi, ok := c.Bounds(); ok {
			r.BoundsSet, r.Lower, r.Upper = true, lo, hi
		}
		rows = append(rows, r)
	}
	m := Model{
		rows:        rows,
		cursorStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		dimStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
	m.renderer = virtuallist.New(m)
	return m
}

// SetSize resizes the underlying virtual-list viewport.
func (m *Model) SetSize(w, h int) { m.renderer.SetSize(w, h) }

// View renders the currently visible rows through the virtual-list
// renderer, so scrolling stays cheap no matter how many columns exist.
func (m Model) View() string { return m.renderer.View() }

func (m *Model) SetKeys(k Keys)                          { m.keys = k }
func (m *Model) SetNavigationBus(b *columnselection.Bus) { m.navBus = b }

func (m Model) Len() int { return len(m.rows) }

func (m Model) Selected() (Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return Row{}, false
	}
	return m.rows[m.cursor], true
}

func (m *Model) MoveTo(i int) {
	if i < 0 {
		i = 0
	}
	if i >= len(m.rows) {
		i = len(m.rows) - 1
	}
	if i == m.cursor {
		return
	}
	m.cursor = i
	m.renderer.SetCursor(i)
	if m.navBus != nil {
		if row, ok := m.Selected(); ok {
			m.navBus.Notify(row.Name)
		}
	}
}

func (m *Model) HandleKey(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.MoveTo(m.cursor - 1)
	case key.Matches(msg, m.keys.Down):
		m.MoveTo(m.cursor + 1)
	case key.Matches(msg, m.keys.Home):
		m.MoveTo(0)
	case key.Matches(msg, m.keys.End):
		m.MoveTo(len(m.rows) - 1)
	case key.Matches(msg, m.keys.PageUp):
		m.MoveTo(m.cursor - 10)
	case key.Matches(msg, m.keys.PageDown):
		m.MoveTo(m.cursor + 10)
	default:
		return false
	}
	return true
}

// RenderRow draws one column's name, type, bounds, and index marker. A
// column row isn't a fixed-width record the way a registry key name is:
// bounds are a variable-length numeric pair. When the pane is too narrow
// to hold name, type, and bounds on one line, bounds wrap onto their own
// indented continuation line rather than being truncated away; wide
// panes keep the compact single-line form.
func (m Model) RenderRow(i int, selected bool, width int) string {
	r := m.rows[i]
	bounds := "unset"
	if r.BoundsSet {
		bounds = fmt.Sprintf("[%g,%g]", r.Lower, r.Upper)
	}
	idx := " "
	if r.HasIndex {
		idx = "*"
	}
	marker := "  "
	if selected {
		marker = "> "
	}
	head := fmt.Sprintf("%-20s %-8s", truncate(r.Name, 20), r.Type)
	tail := bounds + idx

	var out string
	if width > 0 && len(marker)+len(head)+1+len(tail) > width {
		out = marker + head + "\n" + strings.Repeat(" ", len(marker)+2) + tail
	} else {
		out = marker + head + " " + tail
	}
	if selected {
		return m.cursorStyle.Render(out)
	}
	return m.dimStyle.Render(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
