package venue

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapClassifies(t *testing.T) {
	base := errors.New("http 500")
	err := Wrap("place", ErrPlacementRejected, base)
	if !errors.Is(err, ErrPlacementRejected) {
		t.Fatalf("expected placement rejected, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected underlying error to be reachable")
	}
	if errors.Is(err, ErrCancel) {
		t.Fatalf("unexpected cancel classification")
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := &Error{Op: "cancel", Kind: ErrAlreadyFilledOnCancel}
	err := Wrap("cancel", ErrCancel, fmt.Errorf("retry: %w", inner))
	if !errors.Is(err, ErrAlreadyFilledOnCancel) {
		t.Fatalf("expected original kind preserved, got %v", err)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap("op", ErrCancel, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestSideHelpers(t *testing.T) {
	if SideBid.Opposite() != SideAsk || SideAsk.Opposite() != SideBid {
		t.Fatalf("unexpected opposite")
	}
	if SideBid.Wire() != "buy" || SideAsk.Wire() != "sell" {
		t.Fatalf("unexpected wire sides")
	}
	if side, ok := ParseSide("SELL"); !ok || side != SideAsk {
		t.Fatalf("expected ask, got %q", side)
	}
	if _, ok := ParseSide("hold"); ok {
		t.Fatalf("expected parse failure")
	}
	if (Position{NetSize: -1}).Side() != SideAsk {
		t.Fatalf("expected short position on ask side")
	}
}
