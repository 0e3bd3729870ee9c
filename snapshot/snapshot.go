// Package snapshot serializes allocation results and heap reference state
// for persistence and inspection tooling. Encoding is canonical CBOR so that
// equal snapshots produce identical bytes.
package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ternvm/tern/alloc"
	"github.com/ternvm/tern/remote"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Allocation snapshots
// ---------------------------------------------------------------------------

// IntervalRecord is one interval's final placement.
type IntervalRecord struct {
	Operand  string `cbor:"operand"`
	Location string `cbor:"location"`
	From     int    `cbor:"from"`
	To       int    `cbor:"to"`
}

// Allocation captures the outcome of one register allocation run.
type Allocation struct {
	Sequence   string           `cbor:"sequence"`
	SpillSlots int              `cbor:"spill_slots"`
	Intervals  []IntervalRecord `cbor:"intervals"`
}

// FromResult converts an allocation result into its snapshot form.
func FromResult(res *alloc.Result) *Allocation {
	snap := &Allocation{
		Sequence:   res.Sequence.Name,
		SpillSlots: res.SpillSlots,
	}
	for _, a := range res.Assignments {
		snap.Intervals = append(snap.Intervals, IntervalRecord{
			Operand:  a.Operand.String(),
			Location: a.Location.String(),
			From:     a.From,
			To:       a.To,
		})
	}
	return snap
}

// MarshalAllocation serializes an Allocation to CBOR bytes.
func MarshalAllocation(a *Allocation) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalAllocation deserializes an Allocation from CBOR bytes.
func UnmarshalAllocation(data []byte) (*Allocation, error) {
	var a Allocation
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal allocation: %w", err)
	}
	return &a, nil
}

// ---------------------------------------------------------------------------
// Heap snapshots
// ---------------------------------------------------------------------------

// ReferenceRecord is one tracked reference.
type ReferenceRecord struct {
	Origin        uint64 `cbor:"origin"`
	Status        string `cbor:"status"`
	State         string `cbor:"state"`
	ForwardedFrom uint64 `cbor:"forwarded_from,omitempty"`
	ForwardedTo   uint64 `cbor:"forwarded_to,omitempty"`
}

// Heap captures the reference bookkeeping of a scheme at one instant.
type Heap struct {
	Phase       string            `cbor:"phase"`
	Collections uint64            `cbor:"collections"`
	References  []ReferenceRecord `cbor:"references"`
}

// FromScheme converts a scheme's current state into its snapshot form.
func FromScheme(s *remote.GenScheme) *Heap {
	snap := &Heap{
		Phase:       s.Phase().String(),
		Collections: s.Collections(),
	}
	for _, ref := range s.References() {
		snap.References = append(snap.References, ReferenceRecord{
			Origin:        uint64(ref.Origin()),
			Status:        ref.Status().String(),
			State:         ref.State().String(),
			ForwardedFrom: uint64(ref.ForwardedFrom()),
			ForwardedTo:   uint64(ref.ForwardedTo()),
		})
	}
	return snap
}

// MarshalHeap serializes a Heap to CBOR bytes.
func MarshalHeap(h *Heap) ([]byte, error) {
	return cborEncMode.Marshal(h)
}

// UnmarshalHeap deserializes a Heap from CBOR bytes.
func UnmarshalHeap(data []byte) (*Heap, error) {
	var h Heap
	if err := cbor.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal heap: %w", err)
	}
	return &h, nil
}
