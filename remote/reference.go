package remote

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a reference receives a collection
// event its current state does not accept. It always indicates corrupted
// heap bookkeeping on the driver's side; callers must treat it as fatal.
var ErrIllegalTransition = errors.New("remote: illegal state transition")

// RefState identifies where an object lives and what is known about it,
// relative to the current collection cycle of a generational heap with a
// non-aging nursery and a semi-space old generation.
type RefState int

const (
	// YoungRefLive: address in the allocated nursery. Mutating phase only.
	YoungRefLive RefState = iota

	// YoungRefFrom: nursery address under analysis, no forwarder seen yet.
	// Minor-collection analysis only.
	YoungRefFrom

	// YoungForwarder: quasi-object left in the nursery by promotion.
	YoungForwarder

	// PromotedUnknownForwarderRef: evacuated into the old generation, the
	// nursery forwarder has not been matched up yet.
	PromotedUnknownForwarderRef

	// PromotedRef: evacuated into the old generation, nursery forwarder
	// known.
	PromotedRef

	// OldRefLive: address in old to-space. Valid while mutating and during
	// minor-collection analysis.
	OldRefLive

	// OldRefFrom: old from-space address under analysis, no forwarder seen
	// yet. Full-collection analysis only.
	OldRefFrom

	// OldForwarder: quasi-object left in old from-space by evacuation.
	OldForwarder

	// OldSurvivorUnknownForwarderRef: evacuated within the old generation,
	// forwarder not yet matched up.
	OldSurvivorUnknownForwarderRef

	// OldSurvivorRef: evacuated within the old generation, forwarder known.
	OldSurvivorRef

	// RefDead: determined unreachable. Final.
	RefDead
)

var refStateLabels = map[RefState]string{
	YoungRefLive:                   "LIVE(young)",
	YoungRefFrom:                   "LIVE(Analyzing: young, !forwarder)",
	YoungForwarder:                 "FORWARDER(Quasi object, only during minor collection analyzing)",
	PromotedUnknownForwarderRef:    "LIVE(Analyzing: promoted, young forwarder unknown)",
	PromotedRef:                    "LIVE(Analyzing: promoted, young forwarder known)",
	OldRefLive:                     "LIVE(old)",
	OldRefFrom:                     "LIVE(Analyzing: old from-only, !forwarder)",
	OldForwarder:                   "FORWARDER(Quasi object, old collection analyzing only)",
	OldSurvivorUnknownForwarderRef: "LIVE(Analyzing: old survivor, forwarder unknown)",
	OldSurvivorRef:                 "LIVE(Analyzing: old survivor, forwarder known)",
	RefDead:                        "Dead",
}

func (s RefState) String() string {
	if l, ok := refStateLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("RefState(%d)", int(s))
}

// Status maps a reference state to its liveness classification.
func (s RefState) Status() Status {
	switch s {
	case YoungForwarder, OldForwarder:
		return StatusForwarder
	case RefDead:
		return StatusDead
	default:
		return StatusLive
	}
}

// Heap is the collector-side view a reference needs when resolving itself at
// the end of an analysis: whether new live objects may be registered right
// now, and whether an evacuated address landed in an overflow area. The
// overflow criteria belong to the collector; here it is an opaque predicate.
type Heap interface {
	CanCreateLive() bool
	IsInOverflowArea(origin Address) bool
}

// Reference tracks one remote object slot across collection cycles. The
// collector delivers every transition explicitly; nothing is inferred.
// References are created by the Create* constructors and never destroyed:
// a dead reference stays dead until its owning map drops it.
//
// Not safe for concurrent use; the driving scheme serializes all access.
type Reference struct {
	heap            Heap
	origin          Address
	alternateOrigin Address
	state           RefState
	priorStatus     Status
}

func newReference(heap Heap, origin, alternateOrigin Address, state RefState) *Reference {
	return &Reference{
		heap:            heap,
		origin:          origin,
		alternateOrigin: alternateOrigin,
		state:           state,
	}
}

// State returns the current reference state.
func (r *Reference) State() RefState { return r.state }

// Status returns the current liveness classification.
func (r *Reference) Status() Status { return r.state.Status() }

// PriorStatus returns the classification the reference had before its most
// recent successful transition, for diagnostics.
func (r *Reference) PriorStatus() Status { return r.priorStatus }

// Origin returns the address currently believed to hold the object (for a
// forwarder, the forwarder quasi-object itself).
func (r *Reference) Origin() Address { return r.origin }

// ForwardedFrom returns the old copy's address when this reference has been
// relocated and its forwarder is known, and zero otherwise.
func (r *Reference) ForwardedFrom() Address {
	switch r.state {
	case PromotedRef, OldSurvivorRef:
		return r.alternateOrigin
	default:
		return Zero
	}
}

// ForwardedTo returns the new copy's address when this reference designates
// a forwarder, and zero otherwise.
func (r *Reference) ForwardedTo() Address {
	switch r.state {
	case YoungForwarder, OldForwarder:
		return r.alternateOrigin
	default:
		return Zero
	}
}

// GCDescription renders the reference state for heap inspection tools.
func (r *Reference) GCDescription() string {
	return "gen semispace state=" + r.state.String()
}

func (r *Reference) String() string {
	return fmt.Sprintf("%s origin: %s alt: %s", r.state, r.origin, r.alternateOrigin)
}

func (r *Reference) illegal(event string, minor bool) error {
	kind := "full"
	if minor {
		kind = "minor"
	}
	return fmt.Errorf("remote: %s(%s collection) in state %q: %w",
		event, kind, r.state, ErrIllegalTransition)
}

// commit records the pre-transition status and applies the new state.
func (r *Reference) commit(state RefState) {
	r.priorStatus = r.state.Status()
	r.state = state
}

// BeginAnalyzing moves the reference into the analysis view of the starting
// collection. Only references that are live outside a collection accept it.
func (r *Reference) BeginAnalyzing(minor bool) error {
	switch r.state {
	case YoungRefLive:
		if !minor {
			return r.illegal("beginAnalyzing", minor)
		}
		r.commit(YoungRefFrom)
		return nil
	case OldRefLive:
		if minor {
			// old objects are untouched by a nursery collection
			r.priorStatus = r.state.Status()
			return nil
		}
		r.commit(OldRefFrom)
		return nil
	default:
		return r.illegal("beginAnalyzing", minor)
	}
}

// EndAnalyzing resolves the reference when the collection's analysis phase
// finishes. Unforwarded from-space references and forwarders die; survivors
// settle into the generation their final address actually belongs to, which
// may differ from the evacuation target when the copy overflowed.
func (r *Reference) EndAnalyzing(minor bool) error {
	switch r.state {
	case YoungRefFrom:
		if !minor {
			return r.illegal("endAnalyzing", minor)
		}
		r.commit(RefDead)
		return nil
	case OldRefFrom:
		if minor {
			return r.illegal("endAnalyzing", minor)
		}
		r.commit(RefDead)
		return nil
	case YoungForwarder, OldForwarder:
		r.priorStatus = r.state.Status()
		r.alternateOrigin = Zero
		r.state = RefDead
		return nil
	case PromotedUnknownForwarderRef:
		if !minor {
			return r.illegal("endAnalyzing", minor)
		}
		r.commit(r.settledState())
		return nil
	case PromotedRef:
		if !minor {
			return r.illegal("endAnalyzing", minor)
		}
		r.priorStatus = r.state.Status()
		r.alternateOrigin = Zero
		r.state = r.settledState()
		return nil
	case OldSurvivorUnknownForwarderRef:
		if minor {
			return r.illegal("endAnalyzing", minor)
		}
		r.commit(r.settledState())
		return nil
	case OldSurvivorRef:
		if minor {
			return r.illegal("endAnalyzing", minor)
		}
		r.priorStatus = r.state.Status()
		r.alternateOrigin = Zero
		r.state = r.settledState()
		return nil
	default:
		return r.illegal("endAnalyzing", minor)
	}
}

// settledState decides where a resolved survivor belongs once analysis ends.
// Evacuation can overflow its target space under memory pressure, so the
// final address decides, not the collection kind.
func (r *Reference) settledState() RefState {
	if r.heap != nil && r.heap.IsInOverflowArea(r.origin) {
		return YoungRefLive
	}
	return OldRefLive
}

// DiscoverForwarder tells a relocated reference where its forwarder sits.
// The receiver is the forwardee; it learns who points at it.
func (r *Reference) DiscoverForwarder(forwarderOrigin Address, minor bool) error {
	switch r.state {
	case PromotedUnknownForwarderRef:
		if !minor {
			return r.illegal("discoverForwarder", minor)
		}
		r.priorStatus = r.state.Status()
		r.alternateOrigin = forwarderOrigin
		r.state = PromotedRef
		return nil
	case OldSurvivorUnknownForwarderRef:
		if minor {
			return r.illegal("discoverForwarder", minor)
		}
		r.priorStatus = r.state.Status()
		r.alternateOrigin = forwarderOrigin
		r.state = OldSurvivorRef
		return nil
	default:
		return r.illegal("discoverForwarder", minor)
	}
}

// DiscoverForwarded tells a from-space reference that its object has been
// copied out. The receiver is being relocated: its origin moves to the new
// copy and the old origin becomes the alternate, pointing at the forwarder.
func (r *Reference) DiscoverForwarded(forwardedOrigin Address, minor bool) error {
	switch r.state {
	case YoungRefFrom:
		if !minor {
			return r.illegal("discoverForwarded", minor)
		}
		r.priorStatus = r.state.Status()
		r.alternateOrigin = r.origin
		r.origin = forwardedOrigin
		r.state = PromotedRef
		return nil
	case OldRefFrom:
		if minor {
			return r.illegal("discoverForwarded", minor)
		}
		r.priorStatus = r.state.Status()
		r.alternateOrigin = r.origin
		r.origin = forwardedOrigin
		r.state = OldSurvivorRef
		return nil
	default:
		return r.illegal("discoverForwarded", minor)
	}
}

// forwarderState returns the quasi-object state matching a forwardee whose
// forwarder is known.
func (s RefState) forwarderState() (RefState, error) {
	switch s {
	case PromotedRef:
		return YoungForwarder, nil
	case OldSurvivorRef:
		return OldForwarder, nil
	default:
		return RefDead, fmt.Errorf("remote: state %q has no forwarder: %w", s, ErrIllegalTransition)
	}
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// CreateLive registers an object discovered outside any collection. isYoung
// places it in the nursery, otherwise in old to-space.
func CreateLive(heap Heap, toOrigin Address, isYoung bool) (*Reference, error) {
	if !heap.CanCreateLive() {
		return nil, fmt.Errorf("remote: createLive while heap is collecting: %w", ErrIllegalTransition)
	}
	state := OldRefLive
	if isYoung {
		state = YoungRefLive
	}
	return newReference(heap, toOrigin, Zero, state), nil
}

// CreateOldTo registers a copied object discovered in the evacuation target
// area before its forwarder is known. isPromoted distinguishes a nursery
// promotion from an old-generation survivor.
func CreateOldTo(heap Heap, toOrigin Address, isPromoted bool) *Reference {
	state := OldSurvivorUnknownForwarderRef
	if isPromoted {
		state = PromotedUnknownForwarderRef
	}
	return newReference(heap, toOrigin, Zero, state)
}

// CreateFromOnly registers an object discovered in the space under analysis
// with no forwarding information yet.
func CreateFromOnly(heap Heap, fromOrigin Address, isYoung bool) *Reference {
	state := OldRefFrom
	if isYoung {
		state = YoungRefFrom
	}
	return newReference(heap, fromOrigin, Zero, state)
}

// CreateFromTo registers an object discovered with both of its copies known:
// already forwarded from fromOrigin to toOrigin.
func CreateFromTo(heap Heap, fromOrigin, toOrigin Address, isYoung bool) *Reference {
	state := OldSurvivorRef
	if isYoung {
		state = PromotedRef
	}
	return newReference(heap, toOrigin, fromOrigin, state)
}

// CreateForwarder builds the quasi-object reference for a forwardee whose
// forwarder address is known. Origin and alternate swap roles: the forwarder
// sits at the forwardee's old address and points at its new one.
func CreateForwarder(heap Heap, forwarded *Reference) (*Reference, error) {
	state, err := forwarded.state.forwarderState()
	if err != nil {
		return nil, err
	}
	return newReference(heap, forwarded.alternateOrigin, forwarded.origin, state), nil
}

// CheckNoLiveRef verifies that a map holds no reference still in the plain
// live state for the indicated generation. Used after beginAnalyzing has run
// over a map: every live reference must have moved to an analysis state.
func CheckNoLiveRef(m *RefMap, isYoung bool) error {
	prohibited := OldRefLive
	if isYoung {
		prohibited = YoungRefLive
	}
	for _, ref := range m.Values() {
		if ref.state == prohibited {
			return fmt.Errorf("remote: reference %s missed analysis start: %w", ref, ErrIllegalTransition)
		}
	}
	return nil
}
