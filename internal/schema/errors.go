package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrDDL           = errors.New("table schema could not be applied")
	ErrCycle         = errors.New("cyclic table dependencies")
)

// Error describes a failure while building or applying the schema
type Error struct {
	Op       string // Operation that failed
	Entity   string // Entity class involved
	Relation string // Relation name involved
	Table    string // Table key involved
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("schema: %s", e.Op))

	var subject []string
	if e.Entity != "" {
		subject = append(subject, fmt.Sprintf("entity=%s", e.Entity))
	}
	if e.Relation != "" {
		subject = append(subject, fmt.Sprintf("relation=%s", e.Relation))
	}
	if e.Table != "" {
		subject = append(subject, fmt.Sprintf("table=%s", e.Table))
	}
	if len(subject) > 0 {
		parts = append(parts, strings.Join(subject, " "))
	}

	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

func configError(entity, relation, format string, args ...interface{}) error {
	return &Error{
		Op:       "configure",
		Entity:   entity,
		Relation: relation,
		Err:      fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...)),
	}
}

func ddlError(table string, err error) error {
	return &Error{
		Op:    "execute",
		Table: table,
		Err:   fmt.Errorf("%w: %w", ErrDDL, err),
	}
}

// IsConfigurationError reports whether err stems from malformed declarations.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsDDLError reports whether err stems from applying a table.
func IsDDLError(err error) bool {
	return errors.Is(err, ErrDDL)
}
