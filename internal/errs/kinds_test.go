package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestKindsSurviveWrapping(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "validation", err: Validation("to", "must be after from"), check: IsValidation},
		{name: "not found", err: NotFound("run", int64(106)), check: IsNotFound},
		{name: "contention", err: Contention("run:106", errors.New("timeout")), check: IsContention},
		{name: "consistency", err: Consistency("run:106/det:1", "overlap"), check: IsConsistency},
		{name: "conflict", err: Conflict("flag is verified"), check: IsConflict},
		{name: "access denied", err: AccessDenied("own flag"), check: IsAccessDenied},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := Wrapf(Wrap(tc.err, "inner"), "outer %d", 1)
			if !tc.check(wrapped) {
				t.Fatalf("kind lost after wrapping: %v", wrapped)
			}
		})
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	err := Validation("from", "bad")
	if IsNotFound(err) || IsContention(err) || IsConflict(err) {
		t.Fatalf("validation error matched another kind")
	}
}

func TestConsistencyCarriesStack(t *testing.T) {
	err := Consistency("scope", "broken")
	var se *StackError
	if !errors.As(err, &se) {
		t.Fatalf("Consistency() expected stack error")
	}
	if len(se.Stack()) == 0 {
		t.Fatalf("Consistency() stack is empty")
	}
}

func TestErrorMessages(t *testing.T) {
	if got := Validation("to", "inverted").Error(); !strings.Contains(got, "to") || !strings.Contains(got, "inverted") {
		t.Fatalf("Validation().Error() = %q", got)
	}
	if got := NotFound("detector", 7).Error(); got != "detector 7 not found" {
		t.Fatalf("NotFound().Error() = %q", got)
	}
	if got := Contention("run:1", nil).Error(); got != `lock "run:1" contended` {
		t.Fatalf("Contention().Error() = %q", got)
	}
}

func TestKind(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{err: nil, want: "ok"},
		{err: Wrap(Validation("to", "bad"), "insert flag"), want: "validation"},
		{err: NotFound("flag", int64(7)), want: "not_found"},
		{err: Contention("scope:1", nil), want: "contention"},
		{err: Consistency("scope:1", "overlap"), want: "consistency"},
		{err: errors.New("boom"), want: "error"},
	}

	for _, tc := range testCases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
