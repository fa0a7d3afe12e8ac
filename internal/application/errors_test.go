package application

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/lab-portal/internal/interval"
	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/scheduler"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"start": "required", "lab_id": "required"}}
	if got := withFields.Error(); got != "validation failed: lab_id, start" {
		t.Fatalf("expected sorted field names, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}
	if !(&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	base.merge(fieldError("second", "another"))
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	slot := interval.Interval{
		Start: time.Date(2024, time.January, 8, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 8, 15, 30, 0, 0, time.UTC),
	}

	cases := map[string]struct {
		err  error
		want string
	}{
		"nil":          {err: nil, want: ""},
		"unauthorized": {err: ErrUnauthorized, want: "unauthorized"},
		"not found":    {err: fmt.Errorf("lookup: %w", ErrNotFound), want: "not_found"},
		"exists":       {err: ErrAlreadyExists, want: "already_exists"},
		"expired":      {err: ErrPreviewExpired, want: "preview_expired"},
		"unavailable":  {err: fmt.Errorf("%w: database is locked", persistence.ErrUnavailable), want: "store_unavailable"},
		"conflict":     {err: &scheduler.ConflictError{Existing: scheduler.Booking{ID: "r-1", Interval: slot}}, want: "conflict"},
		"past":         {err: &scheduler.PastSlotError{Now: slot.End}, want: "past_slot"},
		"validation":   {err: fieldError("name", "required"), want: "validation"},
		"other":        {err: errors.New("boom"), want: "unexpected"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind() = %q, want %q", got, tc.want)
			}
		})
	}
}
