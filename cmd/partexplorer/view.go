package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.width == 0 {
		return "loading…"
	}

	header := headerStyle.Render(fmt.Sprintf("partexplorer — %s", m.dir))

	colWidth := m.width/3 - 2
	paneHeight := m.height - 6
	if paneHeight < 3 {
		paneHeight = 3
	}

	columnsView := m.renderColumns(colWidth, paneHeight)
	predicateView := m.renderPredicate(colWidth, paneHeight)
	histView := m.hist.View(colWidth)

	panes := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.paneStyleFor(ColumnsPane).Width(colWidth).Height(paneHeight).Render(columnsView),
		m.paneStyleFor(PredicatePane).Width(colWidth).Height(paneHeight).Render(predicateView),
		m.paneStyleFor(HistogramPane).Width(colWidth).Height(paneHeight).Render(histView),
	)

	footer := statusStyle.Render("tab: switch pane  ↑/↓: move  enter: evaluate  q: quit")

	return strings.Join([]string{header, panes, footer}, "\n")
}

func (m Model) paneStyleFor(p Pane) lipgloss.Style {
	if m.focused == p {
		return activePaneStyle
	}
	return paneStyle
}

func (m Model) renderColumns(width, height int) string {
	return "Columns\n" + m.columns.View()
}

func (m Model) renderPredicate(width, height int) string {
	var b strings.Builder
	b.WriteString("Predicate\n")
	if m.form.column == "" {
		b.WriteString("(no column selected)")
		return b.String()
	}
	lowMark, highMark := " ", " "
	if m.form.activeLow {
		lowMark = ">"
	} else {
		highMark = ">"
	}
	b.WriteString(fmt.Sprintf("column: %s\n", m.form.column))
	b.WriteString(fmt.Sprintf("%s low:  %s\n", lowMark, m.form.lowInput))
	b.WriteString(fmt.Sprintf("%s high: %s\n", highMark, m.form.highInput))
	if m.form.haveResult {
		if m.form.err != nil {
			b.WriteString(errStyle.Render(m.form.err.Error()))
		} else {
			b.WriteString(fmt.Sprintf("matched: %d rows", m.form.count))
		}
	}
	return b.String()
}
