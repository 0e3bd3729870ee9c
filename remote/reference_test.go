package remote

import (
	"errors"
	"testing"
)

// testHeap is a Heap with a settable phase gate and overflow predicate.
type testHeap struct {
	mutating bool
	overflow func(Address) bool
}

func (h *testHeap) CanCreateLive() bool { return h.mutating }

func (h *testHeap) IsInOverflowArea(origin Address) bool {
	return h.overflow != nil && h.overflow(origin)
}

func mutatingHeap() *testHeap { return &testHeap{mutating: true} }

func mustCreateLive(t *testing.T, heap Heap, origin Address, isYoung bool) *Reference {
	t.Helper()
	ref, err := CreateLive(heap, origin, isYoung)
	if err != nil {
		t.Fatalf("CreateLive: %v", err)
	}
	return ref
}

func expectState(t *testing.T, ref *Reference, want RefState) {
	t.Helper()
	if ref.State() != want {
		t.Errorf("State: got %q, want %q", ref.State(), want)
	}
}

func expectIllegal(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected an illegal transition")
	}
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestCreateLiveRequiresMutatingHeap(t *testing.T) {
	heap := &testHeap{mutating: false}
	_, err := CreateLive(heap, 0x1000, true)
	expectIllegal(t, err)
}

func TestBeginAnalyzingYoung(t *testing.T) {
	ref := mustCreateLive(t, mutatingHeap(), 0x1000, true)

	// a nursery object is untouched by a full collection
	expectIllegal(t, ref.BeginAnalyzing(false))
	expectState(t, ref, YoungRefLive)

	if err := ref.BeginAnalyzing(true); err != nil {
		t.Fatalf("BeginAnalyzing(minor): %v", err)
	}
	expectState(t, ref, YoungRefFrom)
	if ref.PriorStatus() != StatusLive {
		t.Errorf("PriorStatus: got %v, want live", ref.PriorStatus())
	}
}

func TestBeginAnalyzingOld(t *testing.T) {
	ref := mustCreateLive(t, mutatingHeap(), 0x8000, false)

	// minor collections leave old objects in place
	if err := ref.BeginAnalyzing(true); err != nil {
		t.Fatalf("BeginAnalyzing(minor): %v", err)
	}
	expectState(t, ref, OldRefLive)

	if err := ref.BeginAnalyzing(false); err != nil {
		t.Fatalf("BeginAnalyzing(full): %v", err)
	}
	expectState(t, ref, OldRefFrom)
}

func TestPromotionRoundTrip(t *testing.T) {
	heap := mutatingHeap()
	ref := mustCreateLive(t, heap, 0x1000, true)

	if err := ref.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	if err := ref.DiscoverForwarded(0x8000, true); err != nil {
		t.Fatalf("DiscoverForwarded: %v", err)
	}
	expectState(t, ref, PromotedRef)
	if ref.Origin() != 0x8000 {
		t.Errorf("Origin after relocation: got %s, want 0x8000", ref.Origin())
	}
	if ref.ForwardedFrom() != 0x1000 {
		t.Errorf("ForwardedFrom: got %s, want 0x1000", ref.ForwardedFrom())
	}

	if err := ref.EndAnalyzing(true); err != nil {
		t.Fatalf("EndAnalyzing: %v", err)
	}
	expectState(t, ref, OldRefLive)
	if ref.ForwardedFrom() != Zero || ref.ForwardedTo() != Zero {
		t.Error("Settled reference must not report forwarding addresses")
	}
}

func TestPromotionIntoOverflowSettlesYoung(t *testing.T) {
	heap := mutatingHeap()
	heap.overflow = func(a Address) bool { return a >= 0xf000 }
	ref := mustCreateLive(t, heap, 0x1000, true)

	if err := ref.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	if err := ref.DiscoverForwarded(0xf800, true); err != nil {
		t.Fatal(err)
	}
	if err := ref.EndAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	expectState(t, ref, YoungRefLive)
}

func TestOldSurvivorRoundTrip(t *testing.T) {
	heap := mutatingHeap()
	ref := mustCreateLive(t, heap, 0x8000, false)

	if err := ref.BeginAnalyzing(false); err != nil {
		t.Fatal(err)
	}
	if err := ref.DiscoverForwarded(0x9000, false); err != nil {
		t.Fatal(err)
	}
	expectState(t, ref, OldSurvivorRef)

	// wrong collection kind must not resolve the survivor
	expectIllegal(t, ref.EndAnalyzing(true))
	expectState(t, ref, OldSurvivorRef)

	if err := ref.EndAnalyzing(false); err != nil {
		t.Fatal(err)
	}
	expectState(t, ref, OldRefLive)
}

func TestUnforwardedFromRefDies(t *testing.T) {
	heap := mutatingHeap()

	young := CreateFromOnly(heap, 0x1000, true)
	if err := young.EndAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	expectState(t, young, RefDead)
	if !young.Status().IsDead() {
		t.Error("Dead reference must classify as dead")
	}
	if young.PriorStatus() != StatusLive {
		t.Errorf("PriorStatus of freshly dead ref: got %v, want live", young.PriorStatus())
	}

	old := CreateFromOnly(heap, 0x8000, false)
	expectIllegal(t, old.EndAnalyzing(true))
	if err := old.EndAnalyzing(false); err != nil {
		t.Fatal(err)
	}
	expectState(t, old, RefDead)
}

func TestDiscoverForwardedRequiresAnalysis(t *testing.T) {
	ref := mustCreateLive(t, mutatingHeap(), 0x1000, true)
	expectIllegal(t, ref.DiscoverForwarded(0x8000, true))
	expectState(t, ref, YoungRefLive)
	if ref.PriorStatus() != StatusUnknown {
		t.Error("Failed transition must not record a prior status")
	}
}

func TestDiscoverForwarderMatchesUnknownSurvivor(t *testing.T) {
	heap := mutatingHeap()

	promoted := CreateOldTo(heap, 0x8000, true)
	expectState(t, promoted, PromotedUnknownForwarderRef)
	expectIllegal(t, promoted.DiscoverForwarder(0x1000, false))
	if err := promoted.DiscoverForwarder(0x1000, true); err != nil {
		t.Fatal(err)
	}
	expectState(t, promoted, PromotedRef)
	if promoted.ForwardedFrom() != 0x1000 {
		t.Errorf("ForwardedFrom: got %s, want 0x1000", promoted.ForwardedFrom())
	}

	survivor := CreateOldTo(heap, 0x9000, false)
	expectState(t, survivor, OldSurvivorUnknownForwarderRef)
	if err := survivor.DiscoverForwarder(0x8800, false); err != nil {
		t.Fatal(err)
	}
	expectState(t, survivor, OldSurvivorRef)
}

func TestCreateForwarderSwapsOrigins(t *testing.T) {
	heap := mutatingHeap()
	ref := mustCreateLive(t, heap, 0x1000, true)
	if err := ref.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	if err := ref.DiscoverForwarded(0x8000, true); err != nil {
		t.Fatal(err)
	}

	fwd, err := CreateForwarder(heap, ref)
	if err != nil {
		t.Fatalf("CreateForwarder: %v", err)
	}
	expectState(t, fwd, YoungForwarder)
	if !fwd.Status().IsForwarder() {
		t.Error("Forwarder must classify as forwarder")
	}
	if fwd.Origin() != 0x1000 {
		t.Errorf("Forwarder origin: got %s, want the old copy 0x1000", fwd.Origin())
	}
	if fwd.ForwardedTo() != 0x8000 {
		t.Errorf("ForwardedTo: got %s, want the new copy 0x8000", fwd.ForwardedTo())
	}

	// forwarders die at the end of any collection's analysis
	if err := fwd.EndAnalyzing(false); err != nil {
		t.Fatal(err)
	}
	expectState(t, fwd, RefDead)
	if fwd.ForwardedTo() != Zero {
		t.Error("Dead forwarder must not report a target")
	}
}

func TestCreateForwarderRequiresKnownForwardee(t *testing.T) {
	heap := mutatingHeap()
	ref := CreateOldTo(heap, 0x8000, true)
	_, err := CreateForwarder(heap, ref)
	expectIllegal(t, err)
}

func TestCreateFromTo(t *testing.T) {
	heap := mutatingHeap()
	ref := CreateFromTo(heap, 0x1000, 0x8000, true)
	expectState(t, ref, PromotedRef)
	if ref.Origin() != 0x8000 || ref.ForwardedFrom() != 0x1000 {
		t.Errorf("Unexpected addresses: origin %s, forwardedFrom %s", ref.Origin(), ref.ForwardedFrom())
	}

	old := CreateFromTo(heap, 0x8800, 0x9000, false)
	expectState(t, old, OldSurvivorRef)
}

func TestCheckNoLiveRef(t *testing.T) {
	heap := mutatingHeap()
	m := NewRefMap()
	ref := mustCreateLive(t, heap, 0x1000, true)
	m.Put(ref.Origin(), ref)

	if err := CheckNoLiveRef(m, true); err == nil {
		t.Error("Expected a live reference to be reported")
	}
	if err := CheckNoLiveRef(m, false); err != nil {
		t.Errorf("Old-generation check must ignore young refs: %v", err)
	}

	if err := ref.BeginAnalyzing(true); err != nil {
		t.Fatal(err)
	}
	if err := CheckNoLiveRef(m, true); err != nil {
		t.Errorf("CheckNoLiveRef after analysis start: %v", err)
	}
}

func TestStateLabels(t *testing.T) {
	if got := PromotedRef.String(); got != "LIVE(Analyzing: promoted, young forwarder known)" {
		t.Errorf("Unexpected label: %q", got)
	}
	if got := RefDead.String(); got != "Dead" {
		t.Errorf("Unexpected label: %q", got)
	}
	if YoungForwarder.Status() != StatusForwarder {
		t.Error("YoungForwarder must classify as forwarder")
	}
}
