package parking

import "time"

type ActionKind string

const (
	ActionPark    ActionKind = "park"
	ActionEnqueue ActionKind = "enqueue"
	ActionRemove  ActionKind = "remove"
)

// Action is one state-changing step. SlotNo is nil for enqueue actions.
// ParkedAt carries the start of the stay for park and remove actions. Seq is
// the lot sequence number of the latest time the action was applied, undone
// or redone.
type Action struct {
	Kind     ActionKind `json:"kind"`
	SlotNo   *int       `json:"slot_no"`
	Plate    string     `json:"plate"`
	ParkedAt time.Time  `json:"-"`
	Seq      uint64     `json:"-"`
}

type ActionLog struct {
	undo []Action
	redo []Action
}

func NewActionLog() *ActionLog {
	return &ActionLog{}
}

// RecordAndClearRedo pushes a fresh action. Any fresh action invalidates the
// redo history.
func (l *ActionLog) RecordAndClearRedo(a Action) {
	l.undo = append(l.undo, a)
	l.redo = nil
}

func (l *ActionLog) Undo() (Action, bool) {
	return pop(&l.undo)
}

func (l *ActionLog) Redo() (Action, bool) {
	return pop(&l.redo)
}

func (l *ActionLog) PushUndo(a Action) {
	l.undo = append(l.undo, a)
}

func (l *ActionLog) PushRedo(a Action) {
	l.redo = append(l.redo, a)
}

func (l *ActionLog) PeekUndo() (Action, bool) {
	return peek(l.undo)
}

func (l *ActionLog) PeekRedo() (Action, bool) {
	return peek(l.redo)
}

// UndoEntries lists the undo stack oldest first.
func (l *ActionLog) UndoEntries() []Action {
	return copyActions(l.undo)
}

// RedoEntries lists the redo stack oldest first.
func (l *ActionLog) RedoEntries() []Action {
	return copyActions(l.redo)
}

func pop(stack *[]Action) (Action, bool) {
	s := *stack
	if len(s) == 0 {
		return Action{}, false
	}
	a := s[len(s)-1]
	*stack = s[:len(s)-1]
	return a, true
}

func peek(s []Action) (Action, bool) {
	if len(s) == 0 {
		return Action{}, false
	}
	return s[len(s)-1], true
}

func copyActions(s []Action) []Action {
	out := make([]Action, len(s))
	copy(out, s)
	return out
}
