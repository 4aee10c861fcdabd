package main

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		colWidth := m.width/3 - 2
		paneHeight := m.height - 8
		if paneHeight < 3 {
			paneHeight = 3
		}
		m.columns.SetSize(colWidth, paneHeight)
		return m, nil

	case columnSelectedMsg:
		m.form = predicateForm{column: msg.column, activeLow: true}
		m.hist.Load(msg.column, msg.lower, msg.upper)
		return m, m.listenForSelection()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key := msg.String(); key == "q" || key == "ctrl+c" {
		return m, tea.Quit
	}
	if msg.String() == "tab" {
		m.focused = (m.focused + 1) % 3
		return m, nil
	}

	switch m.focused {
	case ColumnsPane:
		// Model.columns.MoveTo already notifies navBus on cursor change.
		m.columns.HandleKey(msg)
		return m, nil

	case PredicatePane:
		return m.handlePredicateKey(msg)

	case HistogramPane:
		// no interactive state yet beyond the recomputed bars
		return m, nil
	}
	return m, nil
}

func (m Model) handlePredicateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "right":
		m.form.activeLow = !m.form.activeLow
	case "enter":
		m.runEval()
	case "backspace":
		if m.form.activeLow {
			m.form.lowInput = trimLast(m.form.lowInput)
		} else {
			m.form.highInput = trimLast(m.form.highInput)
		}
	default:
		if r := msg.String(); isNumericInput(r) {
			if m.form.activeLow {
				m.form.lowInput += r
			} else {
				m.form.highInput += r
			}
		}
	}
	return m, nil
}

func trimLast(s string) string {
	if len(s) == 0 {
		return s
	}
	return s[:len(s)-1]
}

func isNumericInput(s string) bool {
	if s == "." || s == "-" {
		return true
	}
	_, err := strconv.Atoi(s)
	return err == nil
}
