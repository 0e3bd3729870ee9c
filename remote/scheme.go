package remote

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

// GenScheme is the bookkeeping side of a generational heap with a non-aging
// nursery and a semi-space old generation. The collector drives it through
// explicit phase transitions and discovery notifications; the rest of the
// runtime queries it to resolve possibly-stale addresses.
//
// A minor collection evacuates live nursery objects into old to-space,
// leaving forwarders behind. A full collection runs only on an empty nursery
// and swaps the old semi-spaces. Either evacuation may overflow its target
// area; the overflow predicate decides which generation a survivor finally
// belongs to.
//
// The collector's analysis runs single-threaded; the mutex only protects
// lookups racing against driver calls.
type GenScheme struct {
	mu    sync.Mutex
	phase Phase
	minor bool

	overflow func(Address) bool

	nursery *RefMap // young-generation origins, plus their forwarders during minor analysis
	oldTo   *RefMap // old to-space origins
	oldFrom *RefMap // old from-space origins, only populated during full-collection analysis

	collections uint64
	log         commonlog.Logger
}

// NewGenScheme returns a scheme in the mutating phase. overflow is the
// collector's overflow-area predicate; nil means nothing ever overflows.
func NewGenScheme(overflow func(Address) bool) *GenScheme {
	return &GenScheme{
		phase:    PhaseMutating,
		overflow: overflow,
		nursery:  NewRefMap(),
		oldTo:    NewRefMap(),
		oldFrom:  NewRefMap(),
		log:      commonlog.GetLogger("tern.remote"),
	}
}

// Phase returns the current heap phase.
func (s *GenScheme) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Collections returns how many collection cycles have completed.
func (s *GenScheme) Collections() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections
}

// CanCreateLive reports whether new live objects may be registered. Only
// called from within driver operations, never concurrently with them.
func (s *GenScheme) CanCreateLive() bool { return s.phase == PhaseMutating }

// IsInOverflowArea consults the collector's overflow predicate.
func (s *GenScheme) IsInOverflowArea(origin Address) bool {
	return s.overflow != nil && s.overflow(origin)
}

// corrupt escalates a bookkeeping failure. There is no recovery: the caller
// must halt or drop into diagnostic mode.
func (s *GenScheme) corrupt(err error) error {
	err = fmt.Errorf("remote: heap bookkeeping corrupted: %w", err)
	s.log.Critical(err.Error())
	return err
}

// ---------------------------------------------------------------------------
// Mutating phase
// ---------------------------------------------------------------------------

// MakeLive registers a newly discovered live object and returns its
// reference. An existing reference at the origin is returned as is.
func (s *GenScheme) MakeLive(origin Address, isYoung bool) (*Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseMutating {
		return nil, s.corrupt(fmt.Errorf("makeLive(%s) during %s: %w", origin, s.phase, ErrIllegalTransition))
	}
	gen := s.oldTo
	if isYoung {
		gen = s.nursery
	}
	if ref := gen.Get(origin); ref != nil && !ref.Status().IsDead() {
		return ref, nil
	}
	ref, err := CreateLive(s, origin, isYoung)
	if err != nil {
		return nil, s.corrupt(err)
	}
	gen.Put(origin, ref)
	return ref, nil
}

// ---------------------------------------------------------------------------
// Analysis phase
// ---------------------------------------------------------------------------

// BeginAnalyzing enters the analysis phase of a collection. For a minor
// collection every nursery reference moves under analysis; for a full one
// the old semi-spaces swap and every old reference moves under analysis.
func (s *GenScheme) BeginAnalyzing(minor bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseMutating {
		return s.corrupt(fmt.Errorf("beginAnalyzing during %s: %w", s.phase, ErrIllegalTransition))
	}

	if minor {
		for _, ref := range s.nursery.Values() {
			if ref.Status().IsDead() {
				continue
			}
			if err := ref.BeginAnalyzing(true); err != nil {
				return s.corrupt(err)
			}
		}
		if err := CheckNoLiveRef(s.nursery, true); err != nil {
			return s.corrupt(err)
		}
	} else {
		if !s.nursery.IsEmpty() {
			return s.corrupt(fmt.Errorf("full collection with non-empty nursery: %w", ErrIllegalTransition))
		}
		// semi-space flip: what was to-space is now under analysis
		s.oldFrom, s.oldTo = s.oldTo, NewRefMap()
		for _, ref := range s.oldFrom.Values() {
			if ref.Status().IsDead() {
				continue
			}
			if err := ref.BeginAnalyzing(false); err != nil {
				return s.corrupt(err)
			}
		}
		if err := CheckNoLiveRef(s.oldFrom, false); err != nil {
			return s.corrupt(err)
		}
	}

	s.phase = PhaseAnalyzing
	s.minor = minor
	return nil
}

// fromMap returns the map describing the space being evacuated by the
// current collection.
func (s *GenScheme) fromMap() *RefMap {
	if s.minor {
		return s.nursery
	}
	return s.oldFrom
}

// DiscoverFromOnly registers an object found by scanning the space under
// analysis before any forwarding information is known.
func (s *GenScheme) DiscoverFromOnly(fromOrigin Address) (*Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseAnalyzing {
		return nil, s.corrupt(fmt.Errorf("discoverFromOnly(%s) during %s: %w", fromOrigin, s.phase, ErrIllegalTransition))
	}
	from := s.fromMap()
	if ref := from.Get(fromOrigin); ref != nil {
		return ref, nil
	}
	ref := CreateFromOnly(s, fromOrigin, s.minor)
	from.Put(fromOrigin, ref)
	return ref, nil
}

// DiscoverSurvivor registers an object found by scanning the evacuation
// target area, its forwarder not yet known.
func (s *GenScheme) DiscoverSurvivor(toOrigin Address) (*Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseAnalyzing {
		return nil, s.corrupt(fmt.Errorf("discoverSurvivor(%s) during %s: %w", toOrigin, s.phase, ErrIllegalTransition))
	}
	if ref := s.oldTo.Get(toOrigin); ref != nil {
		return ref, nil
	}
	ref := CreateOldTo(s, toOrigin, s.minor)
	s.oldTo.Put(toOrigin, ref)
	return ref, nil
}

// RecordForwarding links a decoded forwarder header: the object formerly at
// fromOrigin now lives at toOrigin. Whichever copy was discovered first, the
// outcome is one survivor reference with a known forwarder and one forwarder
// quasi-reference at the old address.
func (s *GenScheme) RecordForwarding(fromOrigin, toOrigin Address) (*Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseAnalyzing {
		return nil, s.corrupt(fmt.Errorf("recordForwarding(%s -> %s) during %s: %w",
			fromOrigin, toOrigin, s.phase, ErrIllegalTransition))
	}

	from := s.fromMap()
	survivor := s.oldTo.Get(toOrigin)

	if ref := from.Get(fromOrigin); ref != nil && ref.Status().IsLive() {
		// the from-space copy was seen first: it relocates in place
		if survivor != nil {
			return nil, s.corrupt(fmt.Errorf("two references for one relocation %s -> %s: %w",
				fromOrigin, toOrigin, ErrIllegalTransition))
		}
		if err := ref.DiscoverForwarded(toOrigin, s.minor); err != nil {
			return nil, s.corrupt(err)
		}
		from.Remove(fromOrigin)
		s.oldTo.Put(toOrigin, ref)
		survivor = ref
	} else if survivor != nil {
		// the to-space copy was seen first: it learns its forwarder
		if err := survivor.DiscoverForwarder(fromOrigin, s.minor); err != nil {
			return nil, s.corrupt(err)
		}
	} else {
		// both copies new
		survivor = CreateFromTo(s, fromOrigin, toOrigin, s.minor)
		s.oldTo.Put(toOrigin, survivor)
	}

	forwarder, err := CreateForwarder(s, survivor)
	if err != nil {
		return nil, s.corrupt(err)
	}
	from.Put(fromOrigin, forwarder)
	return survivor, nil
}

// EndAnalyzing leaves the analysis phase. Unforwarded references and
// forwarders die; survivors settle into the generation their final address
// belongs to, overflow included.
func (s *GenScheme) EndAnalyzing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseAnalyzing {
		return s.corrupt(fmt.Errorf("endAnalyzing during %s: %w", s.phase, ErrIllegalTransition))
	}

	for _, m := range []*RefMap{s.nursery, s.oldTo, s.oldFrom} {
		for _, ref := range m.Values() {
			switch ref.State() {
			case YoungRefLive, OldRefLive, RefDead:
				// not part of this collection's analysis
				continue
			}
			if err := ref.EndAnalyzing(s.minor); err != nil {
				return s.corrupt(err)
			}
			// an overflowed survivor now counts as young
			if ref.State() == YoungRefLive && m != s.nursery {
				m.Remove(ref.Origin())
				s.nursery.Put(ref.Origin(), ref)
			}
		}
	}

	s.phase = PhaseReclaiming
	return nil
}

// ---------------------------------------------------------------------------
// Reclaiming phase
// ---------------------------------------------------------------------------

// Reclaim drops every dead reference, completes the cycle and returns to the
// mutating phase. Reports how many references were dropped.
func (s *GenScheme) Reclaim() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseReclaiming {
		return 0, s.corrupt(fmt.Errorf("reclaim during %s: %w", s.phase, ErrIllegalTransition))
	}

	n := s.nursery.SweepDead() + s.oldTo.SweepDead() + s.oldFrom.SweepDead()
	if !s.oldFrom.IsEmpty() {
		return n, s.corrupt(fmt.Errorf("%d references survived in from-space: %w",
			s.oldFrom.Size(), ErrIllegalTransition))
	}

	s.phase = PhaseMutating
	s.collections++
	s.log.Debugf("collection %d reclaimed %d references", s.collections, n)
	return n, nil
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Reference resolves an address to its reference, or nil. Forwarder
// quasi-references resolve like any other.
func (s *GenScheme) Reference(origin Address) *Reference {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range []*RefMap{s.nursery, s.oldTo, s.oldFrom} {
		if ref := m.Get(origin); ref != nil {
			return ref
		}
	}
	return nil
}

// References returns every tracked reference, ascending by origin within
// each generation: nursery, then old to-space, then old from-space.
func (s *GenScheme) References() []*Reference {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Reference
	out = append(out, s.nursery.Values()...)
	out = append(out, s.oldTo.Values()...)
	out = append(out, s.oldFrom.Values()...)
	return out
}
