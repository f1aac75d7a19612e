package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := UnknownClass("rural")
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("expected %v to match ErrUnknownClass", err)
	}
	if errors.Is(err, ErrUnknownFlag) {
		t.Fatalf("did not expect %v to match ErrUnknownFlag", err)
	}
}

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("compute bill: %w", Newf(KindInvalidPercentage, "tax %q: 1.5", "ICMS"))
	if !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected wrapped error to match ErrInvalidPercentage")
	}
	if got := KindOf(err); got != KindInvalidPercentage {
		t.Fatalf("KindOf = %q, want %q", got, KindInvalidPercentage)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != "" {
		t.Fatalf("KindOf(plain) = %q, want empty", got)
	}
}

func TestError_Message(t *testing.T) {
	err := Wrap(KindInvalidTiers, "residential tiers", errors.New("tier 2 not increasing"))
	want := "[INVALID_TIERS] residential tiers: tier 2 not increasing"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if errors.Unwrap(err) == nil {
		t.Fatalf("expected cause to unwrap")
	}
}

func TestWithContext(t *testing.T) {
	err := UnknownFlag("blue")
	if err.Context["flag"] != "blue" {
		t.Fatalf("unexpected context: %+v", err.Context)
	}
}
