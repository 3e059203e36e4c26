package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("risk %s: %w", "r1", ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("job: %w", ErrAccessDenied), http.StatusForbidden, "access_denied"},
		{fmt.Errorf("status %q: %w", "maybe", ErrInvalidState), http.StatusUnprocessableEntity, "invalid_state"},
		{fmt.Errorf("empty: %w", ErrValidation), http.StatusBadRequest, "validation_error"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{errors.New("db down"), http.StatusInternalServerError, "load_failed"},
	}
	for _, tc := range cases {
		got := From(tc.err, "load_failed")
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("%v: got %d/%s want %d/%s", tc.err, got.Status, got.Code, tc.status, tc.code)
		}
	}
}

func TestFromKeepsExplicitMapping(t *testing.T) {
	in := New(http.StatusConflict, "invalid_transition", ErrInvalidState)
	got := From(fmt.Errorf("wrap: %w", in), "")
	if got.Status != http.StatusConflict || got.Code != "invalid_transition" {
		t.Fatalf("explicit mapping lost: %+v", got)
	}
	if !errors.Is(got, ErrInvalidState) {
		t.Fatalf("unwrap chain broken")
	}
	if From(nil, "") != nil {
		t.Fatalf("nil in should be nil out")
	}
}
