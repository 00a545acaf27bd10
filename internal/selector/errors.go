package selector

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrUnknownRelation = errors.New("unknown relation")
	ErrMalformedRow    = errors.New("malformed row")
)

// Error describes a failed query or hydration
type Error struct {
	Op       string // Operation that failed
	Class    string // Entity class involved
	Relation string // Relation path involved
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("selector: %s", e.Op)
	if e.Class != "" {
		msg += fmt.Sprintf(": class=%s", e.Class)
	}
	if e.Relation != "" {
		msg += fmt.Sprintf(": relation=%s", e.Relation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
