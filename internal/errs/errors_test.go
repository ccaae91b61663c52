package errs_test

import (
	"fmt"
	"testing"

	"LendLedger/internal/errs"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{errs.Validationf("bad amount"), "validation"},
		{errs.Statef("paused"), "state"},
		{errs.Authorizationf("not owner"), "authorization"},
		{errs.Safetyf("undercollateralized"), "safety"},
		{fmt.Errorf("disk full"), "internal"},
	}
	for _, tc := range cases {
		if got := errs.Kind(tc.err); got != tc.kind {
			t.Errorf("Kind(%v): got %q, want %q", tc.err, got, tc.kind)
		}
	}
}

func TestPredicatesSeeWrappedErrors(t *testing.T) {
	err := fmt.Errorf("apply deposit: %w", errs.Statef("market DAI is not active"))
	if !errs.IsState(err) {
		t.Error("IsState must match through wrapping")
	}
	if errs.IsValidation(err) {
		t.Error("IsValidation must not match a state error")
	}
}

func TestErrorPrefixes(t *testing.T) {
	if got := errs.Validationf("x").Error(); got != "validation: x" {
		t.Errorf("got %q", got)
	}
	if got := errs.Safetyf("x").Error(); got != "safety: x" {
		t.Errorf("got %q", got)
	}
}
