package term

import (
	"fmt"

	"github.com/starford/lexicon/internal/apperr"
)

// History is the undo/redo session of one term: an ordered list of
// snapshots and a cursor on the current one. Every snapshot other than the
// current one is frozen.
type History struct {
	snapshots []*Term
	cursor    int
}

// NewHistory starts a session whose first snapshot is t.
func NewHistory(t *Term) *History {
	return &History{snapshots: []*Term{t}}
}

// Next freezes the current snapshot, drops any redo tail and returns a new
// editable clone as the current snapshot.
func (h *History) Next() *Term {
	return h.Push(h.Current().Clone())
}

// Push appends t as the new current snapshot, freezing the previous one and
// dropping any redo tail.
func (h *History) Push(t *Term) *Term {
	h.Current().freeze()
	h.snapshots = append(h.snapshots[:h.cursor+1], t)
	h.cursor++
	return t
}

// Current returns the snapshot under the cursor.
func (h *History) Current() *Term { return h.snapshots[h.cursor] }

// Previous returns the snapshot before the current one, or nil.
func (h *History) Previous() *Term {
	if !h.CanUndo() {
		return nil
	}
	return h.snapshots[h.cursor-1]
}

// Following returns the snapshot after the current one, or nil.
func (h *History) Following() *Term {
	if !h.CanRedo() {
		return nil
	}
	return h.snapshots[h.cursor+1]
}

func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.snapshots)-1 }

// Undo moves the cursor back and returns an editable copy of the snapshot
// it lands on. The stored snapshots stay frozen.
func (h *History) Undo() (*Term, error) {
	if !h.CanUndo() {
		return nil, fmt.Errorf("%w: nothing to undo", apperr.ErrConflict)
	}
	h.Current().freeze()
	h.cursor--
	return h.Current().Clone(), nil
}

// Redo moves the cursor forward and returns an editable copy of the
// snapshot it lands on.
func (h *History) Redo() (*Term, error) {
	if !h.CanRedo() {
		return nil, fmt.Errorf("%w: nothing to redo", apperr.ErrConflict)
	}
	h.Current().freeze()
	h.cursor++
	return h.Current().Clone(), nil
}

// Commit ends the session after a save. saved, the snapshot as it was
// written, becomes the only one: there is nothing to undo or redo.
func (h *History) Commit(saved *Term) {
	saved.frozen = false
	h.snapshots = []*Term{saved}
	h.cursor = 0
}

// Len returns the number of snapshots in the session.
func (h *History) Len() int { return len(h.snapshots) }
