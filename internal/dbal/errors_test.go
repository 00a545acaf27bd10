package dbal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestError(t *testing.T) {
	baseErr := errors.New("base error")
	dbalErr := &Error{
		Op:       "save",
		Database: "default",
		Table:    "users",
		Err:      baseErr,
	}

	t.Run("Error method", func(t *testing.T) {
		expected := "dbal: save: table=default/users: base error"
		if dbalErr.Error() != expected {
			t.Errorf("expected %q, got %q", expected, dbalErr.Error())
		}
	})

	t.Run("Unwrap method", func(t *testing.T) {
		if errors.Unwrap(dbalErr) != baseErr {
			t.Error("Unwrap should return base error")
		}
	})

	t.Run("Is method", func(t *testing.T) {
		if !errors.Is(dbalErr, baseErr) {
			t.Error("Is should match base error")
		}
		if !errors.Is(dbalErr, &Error{Op: "save"}) {
			t.Error("Is should match on operation")
		}
	})
}

func TestParsePostgreSQLError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType error
		wantCode string
	}{
		{name: "nil error", err: nil},
		{name: "duplicate table", err: &pq.Error{Code: "42P07", Message: "exists"}, wantType: ErrDuplicateObject, wantCode: "42P07"},
		{name: "undefined table", err: &pq.Error{Code: "42P01", Message: "missing"}, wantType: ErrUndefinedObject, wantCode: "42P01"},
		{name: "dependent objects", err: &pq.Error{Code: "2BP01", Message: "depends"}, wantType: ErrDependentObjects, wantCode: "2BP01"},
		{name: "foreign key", err: &pq.Error{Code: "23503", Message: "fk"}, wantType: ErrForeignKey, wantCode: "23503"},
		{name: "wrapped pq error", err: fmt.Errorf("apply: %w", &pq.Error{Code: "42701", Message: "column"}), wantType: ErrDuplicateObject, wantCode: "42701"},
		{name: "deadline", err: context.DeadlineExceeded, wantType: ErrTimeout},
		{name: "canceled", err: context.Canceled, wantType: ErrCanceled},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantType: ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParsePostgreSQLError(tt.err, "save", "default", "users")
			if tt.err == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}

			var dbalErr *Error
			if !errors.As(err, &dbalErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if !errors.Is(err, tt.wantType) {
				t.Errorf("expected %v, got %v", tt.wantType, err)
			}
			if dbalErr.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, dbalErr.Code)
			}
		})
	}

	t.Run("existing error passes through", func(t *testing.T) {
		orig := &Error{Op: "plan", Err: ErrNotConnected}
		if got := ParsePostgreSQLError(orig, "save", "", ""); got != orig {
			t.Errorf("expected original error, got %v", got)
		}
	})
}
