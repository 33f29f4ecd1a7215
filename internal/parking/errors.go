package parking

import "errors"

var (
	ErrDuplicate     = errors.New("plate is already parked or waiting")
	ErrNotFound      = errors.New("slot not occupied or not found")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrInvalidSlot   = errors.New("invalid slot number")
	ErrDuplicateSlot = errors.New("slot number already exists")
	ErrEmptyPlate    = errors.New("plate must not be empty")
)

// ErrorTag returns the short tag used in API error bodies.
func ErrorTag(err error) string {
	switch {
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNothingToUndo):
		return "nothing_to_undo"
	case errors.Is(err, ErrNothingToRedo):
		return "nothing_to_redo"
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, ErrEmptyPlate):
		return "invalid_plate"
	default:
		return "internal"
	}
}

// IsEmptyLog reports whether err only means there was no history to navigate.
func IsEmptyLog(err error) bool {
	return errors.Is(err, ErrNothingToUndo) || errors.Is(err, ErrNothingToRedo)
}
