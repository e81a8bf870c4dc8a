package journey

import "errors"

// Refusals returned by Session operations. A refused operation leaves the
// session untouched.
var (
	ErrInvalidTransition    = errors.New("operation not allowed in current state")
	ErrNotActive            = errors.New("no active journey")
	ErrUnknownItem          = errors.New("unknown inspection item")
	ErrInspectionIncomplete = errors.New("inspection has unanswered items")
	ErrMissingProblem       = errors.New("failed inspection item needs a problem description")
	ErrInvalidOdometer      = errors.New("odometer value is not a valid number")
	ErrInvalidPause         = errors.New("pause type must be rest or meal")
)
