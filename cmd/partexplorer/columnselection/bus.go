// Package columnselection coordinates the column list pane with the
// histogram/stats panes: selecting a column broadcasts an Event so the
// dependent panes can recompute without the list pane knowing anything
// about them.
package columnselection

import "context"

// Event fires when the cursor lands on a different column. Ctx is
// cancelled if the user moves on again before a pending recompute
// finishes.
type Event struct {
	Column string
	Ctx    context.Context
}

type Bus struct {
	subs   []chan Event
	cancel context.CancelFunc
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 1)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Notify(column string) {
	if b.cancel != nil {
		b.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	ev := Event{Column: column, Ctx: ctx}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Bus) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	for _, ch := range b.subs {
		close(ch)
	}
}
