// Package histview is partexplorer's right pane: it runs a 1-D
// histogram over the selected column and renders the bucket counts as
// ASCII bars, recomputing whenever columnselection.Bus fires.
package histview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/partition"
	"github.com/partdb/partdb/partition/histogram"
)

type Model struct {
	eng *histogram.Engine

	column string
	begin  float64
	end    float64
	stride float64

	counts []uint64
	err    error

	barStyle   lipgloss.Style
	errStyle   lipgloss.Style
	titleStyle lipgloss.Style
}

func New(p *partition.Partition, mgr *filemgr.Manager) Model {
	return Model{
		eng:        histogram.New(p, mgr, nil),
		barStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		errStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		titleStyle: lipgloss.NewStyle().Bold(true),
	}
}

// Load rebuilds the histogram for column over [lower, upper) split into
// up to 20 bins, a sane default for a terminal-width bar chart.
func (m *Model) Load(column string, lower, upper float64) {
	m.column = column
	if upper <= lower {
		upper = lower + 1
	}
	stride := (upper - lower) / 20
	if stride <= 0 {
		stride = 1
	}
	m.begin, m.end, m.stride = lower, upper, stride
	counts, err := m.eng.Histogram1D(column, lower, upper, stride, nil)
	m.counts, m.err = counts, err
}

func (m Model) View(width int) string {
	if m.column == "" {
		return "select a column to see its distribution"
	}
	var b strings.Builder
	b.WriteString(m.titleStyle.Render(fmt.Sprintf("%s  [%g, %g) / %g", m.column, m.begin, m.end, m.stride)))
	b.WriteByte('\n')
	if m.err != nil {
		b.WriteString(m.errStyle.Render(m.err.Error()))
		return b.String()
	}

	var max uint64
	for _, c := range m.counts {
		if c > max {
			max = c
		}
	}
	barWidth := width - 28
	if barWidth < 4 {
		barWidth = 4
	}
	for i, c := range m.counts {
		lo := m.begin + float64(i)*m.stride
		bars := 0
		if max > 0 {
			bars = int(float64(c) / float64(max) * float64(barWidth))
		}
		line := fmt.Sprintf("%10.3g %6d %s", lo, c, m.barStyle.Render(strings.Repeat("█", bars)))
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}
