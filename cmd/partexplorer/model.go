package main

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/partdb/partdb/cmd/partexplorer/columnlist"
	"github.com/partdb/partdb/cmd/partexplorer/columnselection"
	"github.com/partdb/partdb/cmd/partexplorer/histview"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/partition"
	"github.com/partdb/partdb/partition/evaluator"
	"github.com/partdb/partdb/partition/predicate"
)

// Pane identifies which of the three panes has keyboard focus.
type Pane int

const (
	ColumnsPane Pane = iota
	PredicatePane
	HistogramPane
)

// predicateForm is the middle pane: a lower/upper bound entered as text,
// evaluated against the selected column with evaluator.CountHits.
type predicateForm struct {
	column     string
	lowInput   string
	highInput  string
	activeLow  bool
	count      uint64
	haveResult bool
	err        error
}

type Model struct {
	dir string
	p   *partition.Partition
	mgr *filemgr.Manager
	ev  *evaluator.Evaluator

	columns columnlist.Model
	hist    histview.Model
	form    predicateForm
	navBus  *columnselection.Bus

	focused Pane
	width   int
	height  int

	statusMessage string
	err           error
}

type columnSelectedMsg struct {
	column string
	lower  float64
	upper  float64
}

func NewModel(dir string, p *partition.Partition, mgr *filemgr.Manager) Model {
	navBus := columnselection.NewBus()
	columns := columnlist.New(p)
	columns.SetNavigationBus(navBus)
	columns.SetKeys(defaultListKeys())

	return Model{
		dir:     dir,
		p:       p,
		mgr:     mgr,
		ev:      evaluator.New(p, mgr, nil),
		columns: columns,
		hist:    histview.New(p, mgr),
		navBus:  navBus,
		focused: ColumnsPane,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listenForSelection(), m.selectInitialColumn())
}

// selectInitialColumn nudges the column list's cursor so the first
// column is broadcast and the histogram/predicate panes have something
// to show before the user presses a key.
func (m Model) selectInitialColumn() tea.Cmd {
	return func() tea.Msg {
		row, ok := m.columns.Selected()
		if !ok {
			return nil
		}
		return columnSelectedMsg{column: row.Name, lower: row.Lower, upper: row.Upper}
	}
}

func (m Model) listenForSelection() tea.Cmd {
	sig := m.navBus.Subscribe()
	return func() tea.Msg {
		ev, ok := <-sig
		if !ok {
			return nil
		}
		row, found := m.columns.Selected()
		lower, upper := 0.0, 0.0
		if found && row.Name == ev.Column {
			lower, upper = row.Lower, row.Upper
		}
		return columnSelectedMsg{column: ev.Column, lower: lower, upper: upper}
	}
}

func (m Model) Close() error {
	m.navBus.Close()
	return nil
}

func parseFloatOr(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func (m *Model) runEval() {
	if m.form.column == "" {
		return
	}
	r := predicate.Range{Column: m.form.column, LowOp: predicate.None, HighOp: predicate.None}
	if m.form.lowInput != "" {
		r.LowOp, r.Low = predicate.Ge, parseFloatOr(m.form.lowInput, 0)
	}
	if m.form.highInput != "" {
		r.HighOp, r.High = predicate.Le, parseFloatOr(m.form.highInput, 0)
	}
	count, err := m.ev.CountHits(r)
	m.form.count, m.form.err, m.form.haveResult = count, err, true
}
