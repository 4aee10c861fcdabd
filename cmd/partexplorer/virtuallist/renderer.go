// Package virtuallist renders only the visible slice of a long list
// instead of materializing every row, so the drawn output stays within
// the visible height regardless of how many columns or rows a partition
// has. Clamping the scroll offset still measures the rows from the offset
// to the end of the list.
package virtuallist

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Source is implemented by whatever is being scrolled: a column list, a
// histogram bucket table, anything with a count and a per-row renderer.
// RenderRow's result may span more than one terminal line (e.g. a
// column's bounds wrapping onto their own line in a narrow pane); the
// renderer measures each row's height rather than assuming one row is
// one line.
type Source interface {
	Len() int
	RenderRow(i int, selected bool, width int) string
}

// Renderer owns the scroll offset and cursor for one Source and draws
// through a bubbles viewport. Because rows may render to a variable
// number of lines, the visible window is sized by accumulating rendered
// line counts rather than by row count.
type Renderer struct {
	src    Source
	vp     viewport.Model
	cursor int
	offset int
	w, h   int
}

func New(src Source) *Renderer {
	return &Renderer{src: src, vp: viewport.New(0, 0)}
}

func (r *Renderer) SetSize(w, h int) {
	r.w, r.h = w, h
	r.vp.Width, r.vp.Height = w, h
}

func (r *Renderer) SetCursor(i int) {
	r.cursor = i
	r.clampOffset()
}

func (r *Renderer) Cursor() int { return r.cursor }

func (r *Renderer) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(tea.WindowSizeMsg); ok {
		var cmd tea.Cmd
		r.vp, cmd = r.vp.Update(msg)
		return cmd
	}
	return nil
}

// rowHeight returns the number of terminal lines row i occupies when
// rendered at the renderer's current width.
func (r *Renderer) rowHeight(i int) int {
	return strings.Count(r.src.RenderRow(i, i == r.cursor, r.w), "\n") + 1
}

func (r *Renderer) effectiveHeight() int {
	if r.h > 0 {
		return r.h
	}
	return 20
}

func (r *Renderer) View() string {
	n := r.src.Len()
	if n == 0 {
		return "(empty)"
	}
	r.clampOffset()
	height := r.effectiveHeight()

	var b strings.Builder
	used, first := 0, true
	for i := r.offset; i < n; i++ {
		row := r.src.RenderRow(i, i == r.cursor, r.w)
		lines := strings.Count(row, "\n") + 1
		if used > 0 && used+lines > height {
			break
		}
		if !first {
			b.WriteByte('\n')
		}
		b.WriteString(row)
		used += lines
		first = false
	}
	r.vp.SetContent(b.String())
	r.vp.YOffset = 0
	return r.vp.View()
}

// clampOffset keeps the cursor's row within the visible window,
// accounting for each row's actual rendered height: it scrolls up
// immediately if the cursor is above the window, and walks the offset
// forward one row at a time until the rows from offset through cursor
// fit within the pane height. It then snaps the offset back up to
// absorb any trailing blank space left at the end of the list.
func (r *Renderer) clampOffset() {
	n := r.src.Len()
	if n == 0 {
		r.offset = 0
		return
	}
	if r.offset > r.cursor {
		r.offset = r.cursor
	}
	if r.offset < 0 {
		r.offset = 0
	}
	height := r.effectiveHeight()

	for r.offset < r.cursor {
		used := 0
		for i := r.offset; i <= r.cursor; i++ {
			used += r.rowHeight(i)
		}
		if used <= height {
			break
		}
		r.offset++
	}

	for r.offset > 0 {
		used := 0
		for i := r.offset - 1; i < n; i++ {
			used += r.rowHeight(i)
		}
		if used > height {
			break
		}
		r.offset--
	}
}
