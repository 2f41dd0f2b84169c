package highlight

// DefaultHistoryLimit bounds how many operations stay undoable.
const DefaultHistoryLimit = 30

// Action is one recorded operation: the full highlight set before and
// after it ran. Whole-set snapshots make undo of a merge (which can
// collapse several records into one) a plain swap.
type Action struct {
	Label  string // "add", "remove", "clear", ...
	Before []*Record
	After  []*Record
}

// History is a bounded undo/redo stack. Not safe for concurrent use;
// the session serialises access.
type History struct {
	limit int
	undo  []Action
	redo  []Action
}

// NewHistory creates a history keeping at most limit undoable actions.
// Non-positive limits fall back to DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push records an action. Snapshots are deep-copied so later edits to the
// live set cannot corrupt them. Any redo tail is discarded, and the
// oldest action is evicted once the limit is reached.
func (h *History) Push(label string, before, after []*Record) {
	h.redo = nil
	h.undo = append(h.undo, Action{
		Label:  label,
		Before: CloneSet(before),
		After:  CloneSet(after),
	})
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
}

// Undo pops the latest action and moves it to the redo stack. The caller
// restores Action.Before.
func (h *History) Undo() (Action, bool) {
	if len(h.undo) == 0 {
		return Action{}, false
	}
	act := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, act)
	return act, true
}

// Redo re-applies the most recently undone action. The caller restores
// Action.After.
func (h *History) Redo() (Action, bool) {
	if len(h.redo) == 0 {
		return Action{}, false
	}
	act := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, act)
	return act, true
}

// CanUndo reports whether an undoable action exists.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether a redoable action exists.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Len returns the number of undoable actions.
func (h *History) Len() int { return len(h.undo) }
