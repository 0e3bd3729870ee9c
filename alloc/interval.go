package alloc

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Interval: the live range of one value during register allocation
// ---------------------------------------------------------------------------

// RegisterPriority expresses how badly a use position wants the value in a
// register. The constants are declared in ascending order of priority.
type RegisterPriority int

const (
	// PriorityNone marks a use with no register requirement at all.
	PriorityNone RegisterPriority = iota

	// PriorityLiveAtLoopEnd marks a value live across a loop back-edge.
	PriorityLiveAtLoopEnd

	// PriorityShouldHaveRegister marks a use that prefers a register.
	PriorityShouldHaveRegister

	// PriorityMustHaveRegister marks a use that cannot tolerate memory.
	PriorityMustHaveRegister
)

var priorityNames = [...]string{"none", "liveAtLoopEnd", "shouldHaveRegister", "mustHaveRegister"}

func (p RegisterPriority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// GreaterEqual reports whether this priority is at least other.
func (p RegisterPriority) GreaterEqual(other RegisterPriority) bool { return p >= other }

// LessThan reports whether this priority is below other.
func (p RegisterPriority) LessThan(other RegisterPriority) bool { return p < other }

// RegisterBinding distinguishes intervals pre-colored to a specific register
// from intervals the allocator is free to place.
type RegisterBinding int

const (
	BindingFixed RegisterBinding = iota
	BindingAny
)

func (b RegisterBinding) String() string {
	if b == BindingFixed {
		return "fixed"
	}
	return "any"
}

// State is the linear-scan lifecycle state of an interval relative to the
// position currently being processed.
type State int

const (
	// StateUnhandled: starts after the current position.
	StateUnhandled State = iota

	// StateActive: covers the current position and holds its location.
	StateActive

	// StateInactive: surrounds the current position but sits in a lifetime
	// hole.
	StateInactive

	// StateHandled: ended before the current position or was spilled.
	StateHandled
)

var stateNames = [...]string{"unhandled", "active", "inactive", "handled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// SpillState drives the spill-move optimization for one split family. The
// states only ever move forward in ordinal order; StartInMemory and
// NoOptimization are absorbing.
type SpillState int

const (
	// SpillNoDefinitionFound is the starting state: no definition seen yet.
	SpillNoDefinitionFound SpillState = iota

	// SpillNoStore: one definition found, no spill store inserted yet. The
	// definition position is held in spillDefinitionPos.
	SpillNoStore

	// SpillOneStore: one spill move has been inserted.
	SpillOneStore

	// SpillStoreAtDefinition: the value should be stored right after its
	// definition, otherwise multiple redundant stores would accumulate.
	SpillStoreAtDefinition

	// SpillStartInMemory: the value starts in memory (e.g. an incoming
	// parameter), so a store is never necessary.
	SpillStartInMemory

	// SpillNoOptimization: more than one definition site (e.g. phi moves),
	// stores are not optimized.
	SpillNoOptimization
)

var spillStateNames = [...]string{
	"no definition", "no spill store", "one spill store",
	"store at definition", "start in memory", "no optimization",
}

func (s SpillState) String() string {
	if s < 0 || int(s) >= len(spillStateNames) {
		return fmt.Sprintf("spillState(%d)", int(s))
	}
	return spillStateNames[s]
}

// ---------------------------------------------------------------------------
// Use positions
// ---------------------------------------------------------------------------

type usePos struct {
	pos      int
	priority RegisterPriority
}

// UsePosList records (position, priority) pairs in descending position
// order. The order is a construction invariant: positions are appended while
// walking the instruction stream backward.
type UsePosList struct {
	entries []usePos
}

// Size returns the number of recorded use positions.
func (u *UsePosList) Size() int { return len(u.entries) }

// UsePos returns the position of entry i. Entry 0 is the highest position.
func (u *UsePosList) UsePos(i int) int { return u.entries[i].pos }

// Priority returns the register priority of entry i.
func (u *UsePosList) Priority(i int) RegisterPriority { return u.entries[i].priority }

func (u *UsePosList) add(pos int, priority RegisterPriority) {
	if len(u.entries) > 0 && u.entries[len(u.entries)-1].pos <= pos {
		panic(fmt.Sprintf("alloc: use position %d not added in descending order (last %d)",
			pos, u.entries[len(u.entries)-1].pos))
	}
	u.entries = append(u.entries, usePos{pos, priority})
}

func (u *UsePosList) setPriority(i int, priority RegisterPriority) {
	u.entries[i].priority = priority
}

func (u *UsePosList) removeLowest() {
	u.entries = u.entries[:len(u.entries)-1]
}

// splitAt removes all entries with position >= splitPos and returns them as
// a new list. Both halves keep their descending order.
func (u *UsePosList) splitAt(splitPos int) *UsePosList {
	i := len(u.entries) - 1
	for i >= 0 && u.entries[i].pos < splitPos {
		i--
	}
	child := &UsePosList{entries: append([]usePos(nil), u.entries[:i+1]...)}
	u.entries = append(u.entries[:0], u.entries[i+1:]...)
	return child
}

func (u *UsePosList) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i := len(u.entries) - 1; i >= 0; i-- {
		if b.Len() != 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d:%s", u.entries[i].pos, u.entries[i].priority)
	}
	b.WriteByte(']')
	return b.String()
}

// ---------------------------------------------------------------------------
// Interval
// ---------------------------------------------------------------------------

// Interval represents the live range of one operand across instruction
// positions. An interval may be split during allocation; split children link
// back to one split parent, which holds the state shared by the whole family
// (canonical spill slot, spill state, definition position).
type Interval struct {
	// Operand is the register or variable this interval describes.
	Operand Value

	// OperandNumber is the dense index of Operand in the compilation's
	// operand pool.
	OperandNumber int

	location  Value // assigned register, stack slot or address
	spillSlot Value // canonical spill slot, stored on the split parent
	kind      Kind

	first      *Range
	usePosList *UsePosList

	current *Range // range-iteration cursor for the interval walker

	// next links intervals in the walker's sorted work lists and ends with
	// IntervalEndMarker.
	next *Interval

	state State

	cachedTo int // to() of the last range; -1 when not cached

	splitParent       *Interval
	splitChildren     []*Interval
	currentSplitChild *Interval

	insertMoveWhenActivated bool

	spillState         SpillState
	spillDefinitionPos int

	locationHint *Interval
}

// IntervalEndMarker terminates the walker's sorted interval lists.
var IntervalEndMarker = newSentinelInterval()

func newSentinelInterval() *Interval {
	it := &Interval{
		Operand:            IllegalValue,
		OperandNumber:      -1,
		first:              RangeEndMarker,
		usePosList:         &UsePosList{},
		current:            RangeEndMarker,
		cachedTo:           -1,
		spillState:         SpillNoDefinitionFound,
		spillDefinitionPos: -1,
	}
	it.next = it
	it.splitParent = it
	it.currentSplitChild = it
	return it
}

// NewInterval creates the interval for one operand. Register operands start
// with their own register as location; variables start unassigned.
func NewInterval(operand Value, operandNumber int) *Interval {
	it := &Interval{
		Operand:            operand,
		OperandNumber:      operandNumber,
		location:           IllegalValue,
		spillSlot:          IllegalValue,
		kind:               KindIllegal,
		first:              RangeEndMarker,
		usePosList:         &UsePosList{},
		current:            RangeEndMarker,
		next:               IntervalEndMarker,
		cachedTo:           -1,
		spillState:         SpillNoDefinitionFound,
		spillDefinitionPos: -1,
	}
	it.splitParent = it
	it.currentSplitChild = it
	if operand.IsRegister() {
		it.location = operand
	}
	return it
}

// AssignLocation fixes the physical location of this interval. A location is
// assigned at most once; the only legal second assignment replaces a
// register with a stack slot when the interval is spilled.
func (it *Interval) AssignLocation(location Value) {
	if location.IsRegister() {
		if !it.location.IsIllegal() {
			panic(fmt.Sprintf("alloc: cannot re-assign location for %s", it))
		}
	} else {
		if !it.location.IsIllegal() && !it.location.IsRegister() {
			panic(fmt.Sprintf("alloc: cannot re-assign location for %s", it))
		}
		if !location.IsStackSlot() && !location.IsAddress() {
			panic(fmt.Sprintf("alloc: %s is not a memory location", location))
		}
	}
	it.location = location
}

// Location returns the register, stack slot or address assigned to this
// interval, or IllegalValue while unassigned.
func (it *Interval) Location() Value { return it.location }

// Kind returns the primitive type tag of this variable interval.
func (it *Interval) Kind() Kind {
	if it.Operand.IsRegister() {
		panic("alloc: cannot access kind for fixed interval")
	}
	return it.kind
}

// SetKind records the type tag. Overwriting with a different kind is an
// internal error.
func (it *Interval) SetKind(kind Kind) {
	if !it.Operand.IsRegister() && it.kind != KindIllegal && it.kind != kind {
		panic(fmt.Sprintf("alloc: overwriting kind %s with %s on %s", it.kind, kind, it))
	}
	it.kind = kind
}

// First returns the head of the range list.
func (it *Interval) First() *Range { return it.first }

// From returns the first covered position.
func (it *Interval) From() int { return it.first.From }

// To returns the position one past the last covered range.
func (it *Interval) To() int {
	if it.cachedTo == -1 {
		it.cachedTo = it.calcTo()
	}
	return it.cachedTo
}

func (it *Interval) calcTo() int {
	if it.first == RangeEndMarker {
		panic("alloc: interval has no range")
	}
	r := it.first
	for r.Next != RangeEndMarker {
		r = r.Next
	}
	return r.To
}

// NumUsePositions returns the number of recorded use positions.
func (it *Interval) NumUsePositions() int { return it.usePosList.Size() }

// UsePositions exposes the use-position list for logging and tooling.
func (it *Interval) UsePositions() *UsePosList { return it.usePosList }

// State returns the walker lifecycle state.
func (it *Interval) State() State { return it.state }

// SetState moves the interval to a new walker state.
func (it *Interval) SetState(s State) { it.state = s }

// SetLocationHint suggests that this interval be given the same location as
// hint, enabling move coalescing.
func (it *Interval) SetLocationHint(hint *Interval) { it.locationHint = hint }

// IsSplitParent reports whether this interval is the canonical head of its
// split family.
func (it *Interval) IsSplitParent() bool { return it.splitParent == it }

// IsSplitChild reports whether this interval was split off another.
func (it *Interval) IsSplitChild() bool { return it.splitParent != it }

// SplitParent returns the canonical head of this interval's split family.
func (it *Interval) SplitParent() *Interval {
	if !it.splitParent.IsSplitParent() {
		panic(fmt.Sprintf("alloc: not a split parent: %s", it.splitParent))
	}
	return it.splitParent
}

// SpillSlot returns the canonical spill slot shared by the whole split
// family, or IllegalValue when none has been assigned.
func (it *Interval) SpillSlot() Value { return it.SplitParent().spillSlot }

// SetSpillSlot assigns the canonical spill slot. Assigning twice is an
// internal error.
func (it *Interval) SetSpillSlot(slot Value) {
	parent := it.SplitParent()
	if !parent.spillSlot.IsIllegal() {
		panic(fmt.Sprintf("alloc: cannot overwrite existing spill slot of %s", parent))
	}
	parent.spillSlot = slot
}

// CurrentSplitChild returns the family member most recently active or
// inactive.
func (it *Interval) CurrentSplitChild() *Interval { return it.SplitParent().currentSplitChild }

// MakeCurrentSplitChild records this interval as the family's current child.
func (it *Interval) MakeCurrentSplitChild() { it.SplitParent().currentSplitChild = it }

// InsertMoveWhenActivated reports whether a move from the previous split
// child must be emitted when this interval first becomes active.
func (it *Interval) InsertMoveWhenActivated() bool { return it.insertMoveWhenActivated }

// SetInsertMoveWhenActivated controls the move-on-activation flag.
func (it *Interval) SetInsertMoveWhenActivated(b bool) { it.insertMoveWhenActivated = b }

// SpillState returns the spill optimization state of the split family.
func (it *Interval) SpillState() SpillState { return it.SplitParent().spillState }

// SpillDefinitionPos returns the single definition position, or -1.
func (it *Interval) SpillDefinitionPos() int { return it.SplitParent().spillDefinitionPos }

// SetSpillState advances the family's spill state. The state machine only
// moves forward; a regression indicates a corrupted allocation and panics.
func (it *Interval) SetSpillState(s SpillState) {
	if s < it.SpillState() {
		panic(fmt.Sprintf("alloc: spill state cannot decrease from %s to %s on %s",
			it.SpillState(), s, it))
	}
	it.SplitParent().spillState = s
}

// SetSpillDefinitionPos records the definition position. Setting it twice is
// an internal error.
func (it *Interval) SetSpillDefinitionPos(pos int) {
	if it.SpillDefinitionPos() != -1 {
		panic(fmt.Sprintf("alloc: cannot set spill definition position twice on %s", it))
	}
	it.SplitParent().spillDefinitionPos = pos
}

// AlwaysInMemory reports whether the value has a stack shadow copy that is
// always correct.
func (it *Interval) AlwaysInMemory() bool {
	s := it.SplitParent().spillState
	return s == SpillStoreAtDefinition || s == SpillStartInMemory
}

// RemoveFirstUsePos drops the lowest recorded use position.
func (it *Interval) RemoveFirstUsePos() { it.usePosList.removeLowest() }

// Intersects reports whether the live ranges of two intervals overlap.
func (it *Interval) Intersects(other *Interval) bool { return it.first.Intersects(other.first) }

// IntersectsAt returns the first position covered by both intervals, or -1.
func (it *Interval) IntersectsAt(other *Interval) int { return it.first.IntersectsAt(other.first) }

// --- range iteration (used by the interval walker) ---

// RewindRange resets the iteration cursor to the first range.
func (it *Interval) RewindRange() { it.current = it.first }

// NextRange advances the iteration cursor.
func (it *Interval) NextRange() {
	if it == IntervalEndMarker {
		panic("alloc: nextRange on sentinel interval")
	}
	it.current = it.current.Next
}

// CurrentFrom returns the start of the cursor range.
func (it *Interval) CurrentFrom() int { return it.current.From }

// CurrentTo returns the end of the cursor range.
func (it *Interval) CurrentTo() int { return it.current.To }

// CurrentAtEnd reports whether the cursor ran off the range list.
func (it *Interval) CurrentAtEnd() bool { return it.current == RangeEndMarker }

// CurrentIntersects reports whether the cursor ranges of two intervals
// overlap.
func (it *Interval) CurrentIntersects(other *Interval) bool {
	return it.current.Intersects(other.current)
}

// CurrentIntersectsAt returns the first position where the cursor ranges of
// two intervals overlap, or -1.
func (it *Interval) CurrentIntersectsAt(other *Interval) int {
	return it.current.IntersectsAt(other.current)
}

// --- split family queries ---

// checkSplitChildren validates the family invariants: children share kind
// and spill slot and never overlap pairwise. Violations panic.
func (it *Interval) checkSplitChildren() {
	if len(it.splitChildren) == 0 {
		return
	}
	if !it.IsSplitParent() {
		panic("alloc: only split parents can have children")
	}
	for i, c1 := range it.splitChildren {
		if c1.splitParent != it {
			panic(fmt.Sprintf("alloc: %s is not a split child of %s", c1, it))
		}
		if c1.kind != it.kind {
			panic("alloc: split children must share the parent kind")
		}
		for _, c2 := range it.splitChildren[i+1:] {
			if c1.OperandNumber == c2.OperandNumber {
				panic("alloc: split children with same operand number")
			}
			lo, hi := c1, c2
			if c2.From() < c1.From() {
				lo, hi = c2, c1
			}
			if lo.From() == hi.From() || lo.To() > hi.From() || lo.To() >= hi.To() {
				panic(fmt.Sprintf("alloc: split children overlap: %s and %s", c1, c2))
			}
		}
	}
}

// LocationHint returns the interval whose location this one should share.
// With searchSplitChild set, the hint's family is searched for a member that
// already has a register.
func (it *Interval) LocationHint(searchSplitChild bool) *Interval {
	if !searchSplitChild {
		return it.locationHint
	}
	if it.locationHint != nil {
		if !it.locationHint.IsSplitParent() {
			panic("alloc: only split parents are valid location hints")
		}
		if it.locationHint.location.IsRegister() {
			return it.locationHint
		}
		for _, child := range it.locationHint.splitChildren {
			if child.location.IsRegister() {
				return child
			}
		}
	}
	return nil
}

// SplitChildAtOpID finds the family member covering opID for the given
// operand mode. A missing or ambiguous child is reported as a Bailout: it
// means the allocation state is unusable for this compilation.
func (it *Interval) SplitChildAtOpID(opID int, mode OperandMode) (*Interval, error) {
	if !it.IsSplitParent() {
		panic("alloc: SplitChildAtOpID can only be called on split parents")
	}
	if opID < 0 {
		panic("alloc: invalid opID (cannot be called for spill moves)")
	}

	if len(it.splitChildren) == 0 {
		if !it.Covers(opID, mode) {
			return nil, bailoutf("%s does not cover %d", it, opID)
		}
		return it, nil
	}

	// in output mode the end of the interval (opID == to()) is not valid
	toOffset := 1
	if mode == ModeOutput {
		toOffset = 0
	}

	var result *Interval
	for i, cur := range it.splitChildren {
		if cur.From() <= opID && opID < cur.To()+toOffset {
			if i > 0 {
				// move the hit to the front for faster repeat lookups
				it.splitChildren[i] = it.splitChildren[0]
				it.splitChildren[0] = cur
			}
			result = cur
			break
		}
	}

	if result == nil {
		b := bailoutf("interval %s has no child at %d", it, opID)
		if n := len(it.splitChildren); n > 0 {
			b.Detail = fmt.Sprintf("first=%s last=%s", it.splitChildren[0], it.splitChildren[n-1])
		}
		return nil, b
	}
	for _, other := range it.splitChildren {
		if other != result && other.From() <= opID && opID < other.To()+toOffset {
			return nil, &Bailout{
				Reason: fmt.Sprintf("two valid intervals found for opID %d", opID),
				Detail: result.LogString() + " and " + other.LogString(),
			}
		}
	}
	if !result.Covers(opID, mode) {
		panic(fmt.Sprintf("alloc: opID %d not covered by %s", opID, result))
	}
	return result, nil
}

// SplitChildBeforeOpID returns the last family member that ends at or before
// opID.
func (it *Interval) SplitChildBeforeOpID(opID int) *Interval {
	if opID < 0 {
		panic("alloc: invalid opID")
	}
	parent := it.SplitParent()
	if len(parent.splitChildren) == 0 {
		panic(fmt.Sprintf("alloc: no split children available on %s", parent))
	}
	var result *Interval
	for i := len(parent.splitChildren) - 1; i >= 0; i-- {
		cur := parent.splitChildren[i]
		if cur.To() <= opID && (result == nil || result.To() < cur.To()) {
			result = cur
		}
	}
	if result == nil {
		panic(fmt.Sprintf("alloc: no split child of %s ends before %d", parent, opID))
	}
	return result
}

// SplitChildCovers reports whether any family member covers opID.
func (it *Interval) SplitChildCovers(opID int, mode OperandMode) bool {
	if !it.IsSplitParent() {
		panic("alloc: SplitChildCovers can only be called on split parents")
	}
	if opID < 0 {
		panic("alloc: invalid opID (cannot be called for spill moves)")
	}
	if len(it.splitChildren) == 0 {
		return it.Covers(opID, mode)
	}
	for _, cur := range it.splitChildren {
		if cur.Covers(opID, mode) {
			return true
		}
	}
	return false
}

// --- use position scans ---

// FirstUsage returns the lowest use position with at least minPriority, or
// MaxPosition when there is none.
func (it *Interval) FirstUsage(minPriority RegisterPriority) int {
	u := it.usePosList
	for i := u.Size() - 1; i >= 0; i-- {
		if u.Priority(i).GreaterEqual(minPriority) {
			return u.UsePos(i)
		}
	}
	return MaxPosition
}

// NextUsage returns the lowest use position >= from with at least
// minPriority, or MaxPosition.
func (it *Interval) NextUsage(minPriority RegisterPriority, from int) int {
	u := it.usePosList
	for i := u.Size() - 1; i >= 0; i-- {
		if u.UsePos(i) >= from && u.Priority(i).GreaterEqual(minPriority) {
			return u.UsePos(i)
		}
	}
	return MaxPosition
}

// NextUsageExact returns the lowest use position >= from with exactly the
// given priority, or MaxPosition.
func (it *Interval) NextUsageExact(priority RegisterPriority, from int) int {
	u := it.usePosList
	for i := u.Size() - 1; i >= 0; i-- {
		if u.UsePos(i) >= from && u.Priority(i) == priority {
			return u.UsePos(i)
		}
	}
	return MaxPosition
}

// PreviousUsage returns the highest use position <= from with at least
// minPriority, or 0 when there is none.
func (it *Interval) PreviousUsage(minPriority RegisterPriority, from int) int {
	u := it.usePosList
	prev := 0
	for i := u.Size() - 1; i >= 0; i-- {
		if u.UsePos(i) > from {
			return prev
		}
		if u.Priority(i).GreaterEqual(minPriority) {
			prev = u.UsePos(i)
		}
	}
	return prev
}

// AddUsePos records a use at pos with the given priority. The position must
// lie inside a covered range and positions must arrive in descending order.
// A duplicate position upgrades the recorded priority in place; it never
// produces a second entry.
func (it *Interval) AddUsePos(pos int, priority RegisterPriority) {
	if !it.Covers(pos, ModeInput) {
		panic(fmt.Sprintf("alloc: use position %d not covered by live range of %s", pos, it))
	}

	// fixed intervals never consult their use positions
	if priority == PriorityNone || !it.Operand.IsVariable() {
		return
	}

	u := it.usePosList
	n := u.Size()
	if n == 0 || u.UsePos(n-1) > pos {
		u.add(pos, priority)
	} else if u.Priority(n-1).LessThan(priority) {
		if u.UsePos(n-1) != pos {
			panic(fmt.Sprintf("alloc: use positions of %s not sorted descending", it))
		}
		u.setPriority(n-1, priority)
	}
}

// AddRange inserts or merges a liveness range at the head of the range list.
// Ranges are added in reverse flow order, so the new range either prepends
// or merges into the current head; anything else is a corrupted construction
// and panics.
func (it *Interval) AddRange(from, to int) {
	if from >= to {
		panic(fmt.Sprintf("alloc: invalid range [%d, %d)", from, to))
	}
	if it.first != RangeEndMarker && (to >= it.first.Next.From || from > it.first.To) {
		panic(fmt.Sprintf("alloc: range [%d, %d) not inserted at begin of %s", from, to, it))
	}
	it.cachedTo = -1
	if it.first.From <= to {
		// join intersecting or abutting ranges
		if from < it.first.From {
			it.first.From = from
		}
		if to > it.first.To {
			it.first.To = to
		}
	} else {
		it.first = newRange(from, to, it.first)
	}
}

func (it *Interval) newSplitChild(ctx *AllocationContext) *Interval {
	parent := it.SplitParent()
	result := ctx.createDerivedInterval(parent)
	result.SetKind(it.kind)
	result.splitParent = parent
	result.SetLocationHint(parent)

	if len(parent.splitChildren) == 0 {
		if !it.IsSplitParent() {
			panic("alloc: split children list must be initialized at first split")
		}
		parent.splitChildren = append(parent.splitChildren, it)
	}
	parent.splitChildren = append(parent.splitChildren, result)
	return result
}

// Split divides this interval at splitPos and returns the remainder as a new
// child of this interval's split parent.
//
// When an interval is split, a bi-directional link is established between
// the original parent interval and the children split off it. When a split
// child is split again, the new interval becomes a direct child of the
// original parent: the family is a flat list, not a tree. All children spill
// to the same canonical spill slot.
func (it *Interval) Split(splitPos int, ctx *AllocationContext) *Interval {
	if !it.Operand.IsVariable() {
		panic("alloc: cannot split fixed interval")
	}

	result := it.newSplitChild(ctx)

	// split the range list
	var prev *Range
	cur := it.first
	for cur != RangeEndMarker && cur.To <= splitPos {
		prev = cur
		cur = cur.Next
	}
	if cur == RangeEndMarker {
		panic(fmt.Sprintf("alloc: split of %s at %d is after end of last range", it, splitPos))
	}

	if cur.From < splitPos {
		result.first = newRange(splitPos, cur.To, cur.Next)
		cur.To = splitPos
		cur.Next = RangeEndMarker
	} else {
		if prev == nil {
			panic(fmt.Sprintf("alloc: split of %s at %d is before start of first range", it, splitPos))
		}
		result.first = cur
		prev.Next = RangeEndMarker
	}
	result.current = result.first
	it.cachedTo = -1

	// split the use position list
	result.usePosList = it.usePosList.splitAt(splitPos)

	return result
}

// SplitFromStart divides this interval at splitPos and returns the head as a
// new interval; this interval keeps the tail. Only the first range may be
// split this way, and no use position may precede splitPos.
func (it *Interval) SplitFromStart(splitPos int, ctx *AllocationContext) *Interval {
	if !it.Operand.IsVariable() {
		panic("alloc: cannot split fixed interval")
	}
	if splitPos <= it.From() || splitPos >= it.To() {
		panic(fmt.Sprintf("alloc: can only split %s inside interval, not at %d", it, splitPos))
	}
	if splitPos <= it.first.From || splitPos > it.first.To {
		panic(fmt.Sprintf("alloc: can only split %s inside first range, not at %d", it, splitPos))
	}
	if it.FirstUsage(PriorityNone) <= splitPos {
		panic(fmt.Sprintf("alloc: cannot split %s from start when use positions precede %d", it, splitPos))
	}

	result := it.newSplitChild(ctx)

	// the new interval has exactly one range, checked above
	result.AddRange(it.first.From, splitPos)

	if splitPos == it.first.To {
		if it.first.Next == RangeEndMarker {
			panic("alloc: split from start must not consume the whole interval")
		}
		it.first = it.first.Next
	} else {
		it.first.From = splitPos
	}
	it.cachedTo = -1
	return result
}

// Covers reports whether opID lies inside the interval. For ModeOutput the
// upper bound of a range is exclusive: a defining instruction's output slot
// is not yet covered at its own end. For other modes it is inclusive.
func (it *Interval) Covers(opID int, mode OperandMode) bool {
	cur := it.first
	for cur != RangeEndMarker && cur.To < opID {
		cur = cur.Next
	}
	if cur == RangeEndMarker {
		return false
	}
	if cur.To == cur.Next.From {
		panic(fmt.Sprintf("alloc: ranges of %s not separated", it))
	}
	if mode == ModeOutput {
		return cur.From <= opID && opID < cur.To
	}
	return cur.From <= opID && opID <= cur.To
}

// HasHoleBetween reports whether the interval has a liveness gap anywhere in
// [holeFrom, holeTo), even a gap of length one. The allocator uses this to
// decide whether a register can be reused across a call.
func (it *Interval) HasHoleBetween(holeFrom, holeTo int) bool {
	if holeFrom >= holeTo {
		panic(fmt.Sprintf("alloc: invalid hole query [%d, %d)", holeFrom, holeTo))
	}
	if holeFrom < it.From() || holeTo > it.To() {
		panic(fmt.Sprintf("alloc: hole query [%d, %d) outside %s", holeFrom, holeTo, it))
	}

	for cur := it.first; cur != RangeEndMarker; cur = cur.Next {
		if cur.To >= cur.Next.From {
			panic(fmt.Sprintf("alloc: no space between ranges of %s", it))
		}
		switch {
		case holeFrom < cur.From:
			// hole starts before this range
			return true
		case holeTo <= cur.To:
			// hole completely inside this range
			return false
		case holeFrom <= cur.To:
			// hole overlaps the end of this range
			return true
		}
	}
	return false
}

func (it *Interval) String() string {
	from, to := "?", "?"
	if it.first != nil && it.first != RangeEndMarker {
		from = fmt.Sprintf("%d", it.From())
		to = fmt.Sprintf("%d", it.To())
	}
	loc := ""
	if !it.location.IsIllegal() && !it.Operand.IsRegister() {
		loc = "@" + it.location.String()
	}
	return fmt.Sprintf("%d:%s%s[%s,%s]", it.OperandNumber, it.Operand, loc, from, to)
}

// LogString renders a single-line dump of the interval: location, hints,
// ranges, use positions and spill state. This is what bailout messages and
// the allocation trace log carry.
func (it *Interval) LogString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s ", it.OperandNumber, it.Operand)
	if !it.Operand.IsRegister() && !it.location.IsIllegal() {
		fmt.Fprintf(&b, "location{%s} ", it.location)
	}
	fmt.Fprintf(&b, "hints{%d", it.splitParent.OperandNumber)
	if hint := it.LocationHint(false); hint != nil && hint.OperandNumber != it.splitParent.OperandNumber {
		fmt.Fprintf(&b, ", %d", hint.OperandNumber)
	}
	b.WriteString("} ranges{")
	for cur := it.first; cur != RangeEndMarker; cur = cur.Next {
		if cur != it.first {
			b.WriteString(", ")
		}
		b.WriteString(cur.String())
	}
	b.WriteString("} uses{")
	u := it.usePosList
	for i := u.Size() - 1; i >= 0; i-- {
		if i != u.Size()-1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d:%s", u.UsePos(i), u.Priority(i))
	}
	fmt.Fprintf(&b, "} spill-state{%s}", it.SpillState())
	return b.String()
}
