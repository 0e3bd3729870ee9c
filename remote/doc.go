// Package remote tracks object references in an inspected runtime's heap
// across a moving, generational collector.
//
// The heap has a non-aging nursery and a semi-space old generation. When the
// collector relocates an object it leaves a forwarder behind, and the
// inspector only learns about it piecemeal: a scan may find the old copy,
// the new copy, or the forwarder header first. Each tracked slot is a
// Reference running a strict state machine over these discoveries; an event
// a state does not accept is never absorbed, it surfaces as
// ErrIllegalTransition and the GenScheme driver escalates it as fatal
// bookkeeping corruption.
//
// References live in weak-style RefMaps keyed by origin address and are
// dropped once a collection proves them dead.
package remote
