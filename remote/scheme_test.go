package remote

import (
	"errors"
	"testing"
)

func expectPhase(t *testing.T, s *GenScheme, want Phase) {
	t.Helper()
	if s.Phase() != want {
		t.Errorf("Phase: got %v, want %v", s.Phase(), want)
	}
}

func TestMinorCollectionCycle(t *testing.T) {
	s := NewGenScheme(nil)

	promoted, err := s.MakeLive(0x1000, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.MakeLive(0x1100, true); err != nil { // will not survive
		t.Fatal(err)
	}
	old, err := s.MakeLive(0x8000, false)
	if err != nil {
		t.Fatal(err)
	}
	expectPhase(t, s, PhaseMutating)

	if err := s.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	expectPhase(t, s, PhaseAnalyzing)
	expectState(t, promoted, YoungRefFrom)
	expectState(t, old, OldRefLive)

	if _, err := s.RecordForwarding(0x1000, 0x8100); err != nil {
		t.Fatal(err)
	}
	expectState(t, promoted, PromotedRef)
	if promoted.Origin() != 0x8100 {
		t.Errorf("Promoted origin: got %s, want 0x8100", promoted.Origin())
	}
	fwd := s.Reference(0x1000)
	if fwd == nil || fwd.State() != YoungForwarder {
		t.Fatalf("Expected a forwarder at the old address, got %v", fwd)
	}
	if fwd.ForwardedTo() != 0x8100 {
		t.Errorf("ForwardedTo: got %s, want 0x8100", fwd.ForwardedTo())
	}

	if err := s.EndAnalyzing(); err != nil {
		t.Fatal(err)
	}
	expectPhase(t, s, PhaseReclaiming)
	expectState(t, promoted, OldRefLive)
	expectState(t, fwd, RefDead)
	if s.Reference(0x1100).State() != RefDead {
		t.Error("Unforwarded nursery reference must be dead")
	}

	n, err := s.Reclaim()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Reclaimed %d references, want 2 (forwarder and dead object)", n)
	}
	expectPhase(t, s, PhaseMutating)
	if s.Collections() != 1 {
		t.Errorf("Collections: got %d, want 1", s.Collections())
	}
	if s.Reference(0x1000) != nil || s.Reference(0x1100) != nil {
		t.Error("Dead references must be dropped from the maps")
	}
	if s.Reference(0x8100) != promoted {
		t.Error("Promoted reference must resolve at its new address")
	}
}

func TestFullCollectionFlipsSemiSpaces(t *testing.T) {
	s := NewGenScheme(nil)

	survivor, err := s.MakeLive(0x8000, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.MakeLive(0x8100, false); err != nil { // unreachable
		t.Fatal(err)
	}

	if err := s.BeginAnalyzing(false); err != nil {
		t.Fatal(err)
	}
	expectState(t, survivor, OldRefFrom)

	if _, err := s.RecordForwarding(0x8000, 0x9000); err != nil {
		t.Fatal(err)
	}
	expectState(t, survivor, OldSurvivorRef)

	if err := s.EndAnalyzing(); err != nil {
		t.Fatal(err)
	}
	expectState(t, survivor, OldRefLive)

	if _, err := s.Reclaim(); err != nil {
		t.Fatal(err)
	}
	if s.Reference(0x8000) != nil {
		t.Error("From-space must be empty after the cycle")
	}
	if s.Reference(0x9000) != survivor {
		t.Error("Survivor must resolve at its to-space address")
	}
}

func TestFullCollectionRequiresEmptyNursery(t *testing.T) {
	s := NewGenScheme(nil)
	if _, err := s.MakeLive(0x1000, true); err != nil {
		t.Fatal(err)
	}
	err := s.BeginAnalyzing(false)
	if err == nil {
		t.Fatal("Expected a corruption error")
	}
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestRecordForwardingDiscoveryOrders(t *testing.T) {
	// survivor seen first: the to-space scan beat the forwarder decode
	s := NewGenScheme(nil)
	if err := s.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	survivor, err := s.DiscoverSurvivor(0x8000)
	if err != nil {
		t.Fatal(err)
	}
	expectState(t, survivor, PromotedUnknownForwarderRef)
	linked, err := s.RecordForwarding(0x1000, 0x8000)
	if err != nil {
		t.Fatal(err)
	}
	if linked != survivor {
		t.Error("RecordForwarding must link the already-known survivor")
	}
	expectState(t, survivor, PromotedRef)

	// neither copy seen: both references materialize at once
	if _, err := s.RecordForwarding(0x1200, 0x8200); err != nil {
		t.Fatal(err)
	}
	expectState(t, s.Reference(0x8200), PromotedRef)
	expectState(t, s.Reference(0x1200), YoungForwarder)

	// from-space copy seen first
	fromRef, err := s.DiscoverFromOnly(0x1400)
	if err != nil {
		t.Fatal(err)
	}
	expectState(t, fromRef, YoungRefFrom)
	if _, err := s.RecordForwarding(0x1400, 0x8400); err != nil {
		t.Fatal(err)
	}
	expectState(t, fromRef, PromotedRef)
	if fromRef.Origin() != 0x8400 {
		t.Errorf("Relocated origin: got %s, want 0x8400", fromRef.Origin())
	}
}

func TestRecordForwardingRejectsDuplicateRelocation(t *testing.T) {
	s := NewGenScheme(nil)
	if _, err := s.MakeLive(0x1000, true); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DiscoverSurvivor(0x8000); err != nil {
		t.Fatal(err)
	}
	_, err := s.RecordForwarding(0x1000, 0x8000)
	if err == nil {
		t.Fatal("Expected two-references corruption")
	}
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestOverflowSurvivorRejoinsNursery(t *testing.T) {
	s := NewGenScheme(func(a Address) bool { return a >= 0xf000 })

	ref, err := s.MakeLive(0x1000, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordForwarding(0x1000, 0xf100); err != nil {
		t.Fatal(err)
	}
	if err := s.EndAnalyzing(); err != nil {
		t.Fatal(err)
	}
	expectState(t, ref, YoungRefLive)
	if _, err := s.Reclaim(); err != nil {
		t.Fatal(err)
	}

	// the overflowed object participates in the next minor collection
	if err := s.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	expectState(t, ref, YoungRefFrom)
}

func TestSchemePhaseEnforcement(t *testing.T) {
	s := NewGenScheme(nil)

	if _, err := s.DiscoverFromOnly(0x1000); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("DiscoverFromOnly while mutating: got %v", err)
	}
	if err := s.EndAnalyzing(); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("EndAnalyzing while mutating: got %v", err)
	}
	if _, err := s.Reclaim(); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Reclaim while mutating: got %v", err)
	}

	if err := s.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MakeLive(0x1000, true); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("MakeLive while analyzing: got %v", err)
	}
	if err := s.BeginAnalyzing(true); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Nested BeginAnalyzing: got %v", err)
	}
}

func TestMakeLiveIsIdempotent(t *testing.T) {
	s := NewGenScheme(nil)
	a, err := s.MakeLive(0x1000, true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.MakeLive(0x1000, true)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("MakeLive at a known origin must return the existing reference")
	}
}

func TestReferencesOrderedByGeneration(t *testing.T) {
	s := NewGenScheme(nil)
	for _, origin := range []Address{0x1200, 0x1000} {
		if _, err := s.MakeLive(origin, true); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.MakeLive(0x8000, false); err != nil {
		t.Fatal(err)
	}

	refs := s.References()
	if len(refs) != 3 {
		t.Fatalf("Expected 3 references, got %d", len(refs))
	}
	want := []Address{0x1000, 0x1200, 0x8000}
	for i, ref := range refs {
		if ref.Origin() != want[i] {
			t.Errorf("References[%d]: got %s, want %s", i, ref.Origin(), want[i])
		}
	}
}
