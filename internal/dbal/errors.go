package dbal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Common errors
var (
	ErrInvalidType      = errors.New("invalid column type")
	ErrNotConnected     = errors.New("database has no schema applier")
	ErrDuplicateObject  = errors.New("object already exists")
	ErrUndefinedObject  = errors.New("referenced object does not exist")
	ErrDependentObjects = errors.New("dependent objects still exist")
	ErrForeignKey       = errors.New("foreign key violation")
	ErrConnectionFailed = errors.New("database connection failed")
	ErrTimeout          = errors.New("operation timeout")
	ErrCanceled         = errors.New("operation canceled")
)

// Error provides detailed error information about a table operation
type Error struct {
	Op       string // Operation that failed
	Database string // Database identifier
	Table    string // Table involved
	Code     string // Postgres SQLSTATE (if available)
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("dbal: %s", e.Op))

	if e.Database != "" || e.Table != "" {
		parts = append(parts, fmt.Sprintf("table=%s/%s", e.Database, e.Table))
	}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for Error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return errors.Is(e.Err, target)
	}

	if t.Op != "" && e.Op == t.Op {
		return true
	}

	return errors.Is(e.Err, t.Err)
}

// ParsePostgreSQLError converts driver errors raised while applying DDL into *Error
func ParsePostgreSQLError(err error, op, database, table string) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	e := &Error{Op: op, Database: database, Table: table}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		e.Code = string(pqErr.Code)
		switch pqErr.Code {
		case "42P07", "42710", "42701":
			e.Err = fmt.Errorf("%w: %s", ErrDuplicateObject, pqErr.Message)
		case "42P01", "42703", "42704":
			e.Err = fmt.Errorf("%w: %s", ErrUndefinedObject, pqErr.Message)
		case "2BP01":
			e.Err = fmt.Errorf("%w: %s", ErrDependentObjects, pqErr.Message)
		case "23503":
			e.Err = fmt.Errorf("%w: %s", ErrForeignKey, pqErr.Message)
		case "57014":
			e.Err = fmt.Errorf("%w: %s", ErrCanceled, pqErr.Message)
		default:
			e.Err = err
		}
		return e
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "context deadline exceeded"):
		e.Err = ErrTimeout
	case strings.Contains(errStr, "context canceled"):
		e.Err = ErrCanceled
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "broken pipe"):
		e.Err = fmt.Errorf("%w: %s", ErrConnectionFailed, errStr)
	default:
		e.Err = err
	}

	return e
}
