package alloc

import "fmt"

// MaxPosition is the sentinel "infinite" instruction position. Use-position
// scans return it when no use meets the requested priority; callers must
// treat it as "never used at sufficient priority", not as an error.
const MaxPosition = int(^uint(0) >> 1)

// Range is one node in an interval's sorted list of disjoint [From,To)
// liveness ranges. The list ends with RangeEndMarker.
type Range struct {
	From int
	To   int
	Next *Range
}

// RangeEndMarker terminates every range list. Its bounds sit at MaxPosition
// so ordered walks fall off the end naturally, and it links to itself so a
// stray step past the end stays on the sentinel.
var RangeEndMarker = &Range{From: MaxPosition, To: MaxPosition}

func init() {
	RangeEndMarker.Next = RangeEndMarker
}

func newRange(from, to int, next *Range) *Range {
	return &Range{From: from, To: to, Next: next}
}

// Intersects reports whether this range list and r2's share any position.
func (r *Range) Intersects(r2 *Range) bool {
	return r.IntersectsAt(r2) != -1
}

// IntersectsAt returns the lowest position contained by both range lists,
// or -1 when they are disjoint.
func (r *Range) IntersectsAt(other *Range) int {
	r1, r2 := r, other
	for {
		switch {
		case r1.From < r2.From:
			if r1.To <= r2.From {
				r1 = r1.Next
				if r1 == RangeEndMarker {
					return -1
				}
			} else {
				return r2.From
			}
		case r2.From < r1.From:
			if r2.To <= r1.From {
				r2 = r2.Next
				if r2 == RangeEndMarker {
					return -1
				}
			} else {
				return r1.From
			}
		default: // r1.From == r2.From
			if r1.From == r1.To {
				r1 = r1.Next
				if r1 == RangeEndMarker {
					return -1
				}
			} else if r2.From == r2.To {
				r2 = r2.Next
				if r2 == RangeEndMarker {
					return -1
				}
			} else {
				return r1.From
			}
		}
	}
}

func (r *Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.From, r.To)
}
