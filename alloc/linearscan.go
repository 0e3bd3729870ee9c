package alloc

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tern.alloc")

// ---------------------------------------------------------------------------
// LinearScan: interval-based register allocation
// ---------------------------------------------------------------------------

// Config describes the target constraints for one allocation.
type Config struct {
	// Registers is the allocatable register set. Register numbers must be
	// dense in [0, len(Registers)).
	Registers []Register

	// Pool numbers the operands of the sequence. Its register base must
	// match len(Registers).
	Pool *OperandPool
}

// AllocationContext owns every interval of one compilation unit. Intervals
// are never shared between compilations; an abandoned context is simply
// dropped.
type AllocationContext struct {
	pool        *OperandPool
	intervals   []*Interval // dense, indexed by operand number
	callerSaved []Register
}

func newAllocationContext(cfg Config) *AllocationContext {
	ctx := &AllocationContext{pool: cfg.Pool}
	for _, r := range cfg.Registers {
		if r.CallerSaved {
			ctx.callerSaved = append(ctx.callerSaved, r)
		}
	}
	return ctx
}

// intervalFor returns the interval for an operand, creating it on first
// request.
func (ctx *AllocationContext) intervalFor(v Value) *Interval {
	n := ctx.pool.OperandNumber(v)
	for len(ctx.intervals) <= n {
		ctx.intervals = append(ctx.intervals, nil)
	}
	if ctx.intervals[n] == nil {
		ctx.intervals[n] = NewInterval(v, n)
	}
	return ctx.intervals[n]
}

// createDerivedInterval allocates a fresh interval for a split child of
// parent. The child gets the next free operand number.
func (ctx *AllocationContext) createDerivedInterval(parent *Interval) *Interval {
	v := ctx.pool.NewVariable(parent.kind)
	n := ctx.pool.OperandNumber(v)
	child := NewInterval(v, n)
	for len(ctx.intervals) <= n {
		ctx.intervals = append(ctx.intervals, nil)
	}
	ctx.intervals[n] = child
	return child
}

// ---------------------------------------------------------------------------
// Walker work lists
// ---------------------------------------------------------------------------

// intervalLists holds one interval list per register binding.
type intervalLists struct {
	fixed *Interval
	any   *Interval
}

func newIntervalLists() *intervalLists {
	return &intervalLists{fixed: IntervalEndMarker, any: IntervalEndMarker}
}

func (l *intervalLists) get(binding RegisterBinding) *Interval {
	if binding == BindingFixed {
		return l.fixed
	}
	return l.any
}

func (l *intervalLists) set(binding RegisterBinding, list *Interval) {
	if list == nil {
		panic("alloc: nil interval list")
	}
	if binding == BindingFixed {
		l.fixed = list
	} else {
		l.any = list
	}
}

// addSortedByCurrentFrom inserts an interval into a list kept sorted by the
// current-range start positions.
func (l *intervalLists) addSortedByCurrentFrom(binding RegisterBinding, interval *Interval) {
	list := l.get(binding)
	var prev *Interval
	cur := list
	for cur.CurrentFrom() < interval.CurrentFrom() {
		prev = cur
		cur = cur.next
	}
	if prev == nil {
		list = interval
	} else {
		prev.next = interval
	}
	interval.next = cur
	l.set(binding, list)
}

// addSortedByStartAndUsage inserts an interval into a list kept sorted by
// start position, then by first use position.
func (l *intervalLists) addSortedByStartAndUsage(binding RegisterBinding, interval *Interval) {
	list := l.get(binding)
	var prev *Interval
	cur := list
	for cur != IntervalEndMarker &&
		(cur.From() < interval.From() ||
			(cur.From() == interval.From() && cur.FirstUsage(PriorityNone) < interval.FirstUsage(PriorityNone))) {
		prev = cur
		cur = cur.next
	}
	if prev == nil {
		list = interval
	} else {
		prev.next = interval
	}
	interval.next = cur
	l.set(binding, list)
}

// remove unlinks an interval from a list. The interval must be present.
func (l *intervalLists) remove(binding RegisterBinding, interval *Interval) {
	list := l.get(binding)
	var prev *Interval
	cur := list
	for cur != interval {
		if cur == IntervalEndMarker {
			panic(fmt.Sprintf("alloc: interval %s not found in %s list", interval, binding))
		}
		prev = cur
		cur = cur.next
	}
	if prev == nil {
		l.set(binding, cur.next)
	} else {
		prev.next = cur.next
	}
}

// ---------------------------------------------------------------------------
// The allocator
// ---------------------------------------------------------------------------

type linearScan struct {
	ctx *AllocationContext
	seq *Sequence
	cfg Config

	unhandled *intervalLists
	active    *intervalLists
	inactive  *intervalLists

	currentPosition int

	nextSpillSlot int
}

// Allocate runs linear-scan register allocation over a numbered sequence and
// returns the final operand-to-location assignment. Internal consistency
// violations surface as a *Bailout error: the compilation of this one unit
// must be abandoned, never retried with the same input.
func Allocate(seq *Sequence, cfg Config) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if b, ok := r.(*Bailout); ok {
				err = b
				return
			}
			err = &Bailout{Reason: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if cfg.Pool == nil || cfg.Pool.VRegBase() != len(cfg.Registers) {
		return nil, bailoutf("operand pool register base does not match register set")
	}
	if !seq.numbered {
		seq.Number()
	}

	ls := &linearScan{
		ctx:       newAllocationContext(cfg),
		seq:       seq,
		cfg:       cfg,
		unhandled: newIntervalLists(),
		active:    newIntervalLists(),
		inactive:  newIntervalLists(),
	}

	builder := newIntervalBuilder(ls.ctx, seq)
	if err := builder.build(); err != nil {
		return nil, err
	}

	ls.sortIntervalsIntoWorkLists()
	ls.walk()
	return ls.finish()
}

func bindingOf(it *Interval) RegisterBinding {
	if it.Operand.IsRegister() {
		return BindingFixed
	}
	return BindingAny
}

func (ls *linearScan) sortIntervalsIntoWorkLists() {
	var sorted []*Interval
	for _, it := range ls.ctx.intervals {
		if it == nil || it.First() == RangeEndMarker {
			continue
		}
		sorted = append(sorted, it)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].From() != sorted[j].From() {
			return sorted[i].From() < sorted[j].From()
		}
		return sorted[i].FirstUsage(PriorityNone) < sorted[j].FirstUsage(PriorityNone)
	})
	// chain in reverse so each insert lands at the head of its list
	for i := len(sorted) - 1; i >= 0; i-- {
		it := sorted[i]
		it.SetState(StateUnhandled)
		it.RewindRange()
		ls.unhandled.addSortedByStartAndUsage(bindingOf(it), it)
	}
}

// walk drives every interval through Unhandled, Active, Inactive and
// Handled.
func (ls *linearScan) walk() {
	for {
		binding := BindingAny
		cur := ls.unhandled.any
		if ls.unhandled.fixed != IntervalEndMarker &&
			(cur == IntervalEndMarker || ls.unhandled.fixed.From() < cur.From()) {
			binding = BindingFixed
			cur = ls.unhandled.fixed
		}
		if cur == IntervalEndMarker {
			break
		}
		ls.unhandled.remove(binding, cur)

		ls.currentPosition = cur.From()
		ls.walkTo(ls.currentPosition)

		cur.RewindRange()
		if binding == BindingFixed {
			// pre-colored: the register is blocked while this interval runs,
			// so any variable currently holding it has to move out
			cur.SetState(StateActive)
			ls.active.addSortedByCurrentFrom(BindingFixed, cur)
			if loc := cur.Location(); loc.IsRegister() {
				ls.splitAndSpillIntersecting(cur, loc.Num)
			}
			continue
		}
		ls.activate(cur)
	}
	// settle remaining actives/inactives
	ls.walkTo(MaxPosition)
}

// walkTo moves intervals between the active, inactive and handled sets as
// the allocation position advances. Each interval's range cursor is pushed
// past every range ending at or before the position; the cursor range then
// decides the set: exhausted cursors are handled, a cursor range containing
// the position is active, one still ahead of it is inactive.
func (ls *linearScan) walkTo(position int) {
	for _, binding := range []RegisterBinding{BindingFixed, BindingAny} {
		cur := ls.active.get(binding)
		for cur != IntervalEndMarker {
			next := cur.next
			changed := false
			for !cur.CurrentAtEnd() && cur.CurrentTo() <= position {
				cur.NextRange()
				changed = true
			}
			if changed {
				ls.active.remove(binding, cur)
				ls.resort(binding, cur, position)
			}
			cur = next
		}

		cur = ls.inactive.get(binding)
		for cur != IntervalEndMarker {
			next := cur.next
			changed := false
			for !cur.CurrentAtEnd() && cur.CurrentTo() <= position {
				cur.NextRange()
				changed = true
			}
			if changed || cur.CurrentFrom() <= position {
				ls.inactive.remove(binding, cur)
				ls.resort(binding, cur, position)
			}
			cur = next
		}
	}
	ls.currentPosition = position
}

// resort files an interval whose cursor moved into the set its cursor range
// now calls for.
func (ls *linearScan) resort(binding RegisterBinding, cur *Interval, position int) {
	switch {
	case cur.CurrentAtEnd():
		cur.SetState(StateHandled)
	case cur.CurrentFrom() <= position:
		cur.SetState(StateActive)
		ls.active.addSortedByCurrentFrom(binding, cur)
	default:
		cur.SetState(StateInactive)
		ls.inactive.addSortedByCurrentFrom(binding, cur)
	}
}

// activate assigns a location to an unhandled variable interval, splitting
// and spilling as needed.
func (ls *linearScan) activate(cur *Interval) {
	if ls.allocateFreeRegister(cur) {
		cur.SetState(StateActive)
		ls.active.addSortedByCurrentFrom(BindingAny, cur)
	} else {
		ls.allocateBlockedRegister(cur)
		if cur.Location().IsRegister() {
			cur.SetState(StateActive)
			ls.active.addSortedByCurrentFrom(BindingAny, cur)
		} else {
			cur.SetState(StateHandled)
		}
	}
	cur.MakeCurrentSplitChild()
}

// allocateFreeRegister tries to place cur in a register that is free for at
// least part of its lifetime. Returns false when every register is occupied
// at cur's start.
func (ls *linearScan) allocateFreeRegister(cur *Interval) bool {
	freeUntil := make([]int, len(ls.cfg.Registers))
	for i := range freeUntil {
		freeUntil[i] = MaxPosition
	}

	for _, binding := range []RegisterBinding{BindingFixed, BindingAny} {
		for it := ls.active.get(binding); it != IntervalEndMarker; it = it.next {
			if loc := it.Location(); loc.IsRegister() {
				freeUntil[loc.Num] = 0
			}
		}
		for it := ls.inactive.get(binding); it != IntervalEndMarker; it = it.next {
			loc := it.Location()
			if !loc.IsRegister() {
				continue
			}
			if n := it.CurrentIntersectsAt(cur); n != -1 && n < freeUntil[loc.Num] {
				freeUntil[loc.Num] = n
			}
		}
	}

	hintReg := -1
	if hint := cur.LocationHint(true); hint != nil && hint.Location().IsRegister() {
		hintReg = hint.Location().Num
	}

	reg := -1
	for i, free := range freeUntil {
		if free <= cur.From() {
			continue
		}
		if reg == -1 || free > freeUntil[reg] {
			reg = i
		}
	}
	if reg == -1 {
		return false
	}
	// prefer the hinted register when it stays free long enough
	if hintReg != -1 && freeUntil[hintReg] >= cur.To() {
		reg = hintReg
	}

	regValue := NewRegisterValue(reg, cur.Kind())
	if freeUntil[reg] >= cur.To() {
		// register free for the whole interval
		cur.AssignLocation(regValue)
		log.Debugf("assigned %s to %s", regValue, cur)
		return true
	}

	// register only free for the head: take it and split off the rest
	child := cur.Split(freeUntil[reg], ls.ctx)
	cur.AssignLocation(regValue)
	ls.enqueueSplit(child)
	log.Debugf("assigned %s to %s, split remainder %s", regValue, cur, child)
	return true
}

// allocateBlockedRegister frees a register by spilling, or spills cur itself
// when its first register-requiring use is further away than every
// competitor's next use.
func (ls *linearScan) allocateBlockedRegister(cur *Interval) {
	usePos := make([]int, len(ls.cfg.Registers))
	blockPos := make([]int, len(ls.cfg.Registers))
	for i := range usePos {
		usePos[i] = MaxPosition
		blockPos[i] = MaxPosition
	}

	for it := ls.active.get(BindingFixed); it != IntervalEndMarker; it = it.next {
		if loc := it.Location(); loc.IsRegister() {
			usePos[loc.Num] = 0
			blockPos[loc.Num] = 0
		}
	}
	for it := ls.inactive.get(BindingFixed); it != IntervalEndMarker; it = it.next {
		loc := it.Location()
		if !loc.IsRegister() {
			continue
		}
		if n := it.CurrentIntersectsAt(cur); n != -1 {
			if n < blockPos[loc.Num] {
				blockPos[loc.Num] = n
			}
			if n < usePos[loc.Num] {
				usePos[loc.Num] = n
			}
		}
	}
	for it := ls.active.get(BindingAny); it != IntervalEndMarker; it = it.next {
		loc := it.Location()
		if !loc.IsRegister() {
			continue
		}
		if u := it.NextUsage(PriorityLiveAtLoopEnd, ls.currentPosition); u < usePos[loc.Num] {
			usePos[loc.Num] = u
		}
	}
	for it := ls.inactive.get(BindingAny); it != IntervalEndMarker; it = it.next {
		loc := it.Location()
		if !loc.IsRegister() || !it.CurrentIntersects(cur) {
			continue
		}
		if u := it.NextUsage(PriorityLiveAtLoopEnd, ls.currentPosition); u < usePos[loc.Num] {
			usePos[loc.Num] = u
		}
	}

	reg := 0
	for i := range usePos {
		if usePos[i] > usePos[reg] {
			reg = i
		}
	}

	firstMustUse := cur.FirstUsage(PriorityMustHaveRegister)
	if firstMustUse > usePos[reg] {
		// every competitor is used sooner: spill cur itself
		ls.assignSpillSlot(cur)
		ls.changeSpillState(cur, cur.From())
		if firstMustUse != MaxPosition && firstMustUse < cur.To() {
			// resume competition right before the register-requiring use
			child := cur.Split(firstMustUse, ls.ctx)
			ls.enqueueSplit(child)
		}
		log.Debugf("spilled %s to %s", cur, cur.Location())
		return
	}

	if blockPos[reg] <= cur.From() {
		panic(bailoutf("register %d blocked at %d where interval %s needs it",
			reg, cur.From(), cur))
	}

	regValue := NewRegisterValue(reg, cur.Kind())
	if blockPos[reg] < cur.To() {
		// a fixed interval reclaims the register later: give it back there
		child := cur.Split(blockPos[reg], ls.ctx)
		ls.enqueueSplit(child)
	}
	cur.AssignLocation(regValue)
	log.Debugf("assigned blocked %s to %s", regValue, cur)

	ls.splitAndSpillIntersecting(cur, reg)
}

// splitAndSpillIntersecting evicts every variable interval occupying reg
// where it conflicts with cur.
func (ls *linearScan) splitAndSpillIntersecting(cur *Interval, reg int) {
	pos := ls.currentPosition

	it := ls.active.get(BindingAny)
	for it != IntervalEndMarker {
		next := it.next
		if loc := it.Location(); loc.IsRegister() && loc.Num == reg && it != cur {
			ls.active.remove(BindingAny, it)
			ls.splitAndSpill(it, pos)
		}
		it = next
	}

	it = ls.inactive.get(BindingAny)
	for it != IntervalEndMarker {
		next := it.next
		if loc := it.Location(); loc.IsRegister() && loc.Num == reg && it != cur && it.CurrentIntersects(cur) {
			ls.inactive.remove(BindingAny, it)
			ls.splitAndSpill(it, pos)
		}
		it = next
	}
}

// splitAndSpill takes the register away from it at pos. The head keeps the
// register; the tail is spilled to the family's canonical slot, and if the
// tail needs a register later it re-enters the competition there.
func (ls *linearScan) splitAndSpill(it *Interval, pos int) {
	if pos <= it.From() {
		// never held the register before pos: spill the whole interval
		it.SetState(StateHandled)
		ls.respill(it, pos)
		return
	}

	child := it.Split(pos, ls.ctx)
	it.SetState(StateHandled)
	ls.respill(child, pos)
}

// respill places a register-less interval into the spill slot and re-queues
// the part that must be in a register.
func (ls *linearScan) respill(it *Interval, pos int) {
	mustUse := it.NextUsage(PriorityMustHaveRegister, pos)
	if mustUse != MaxPosition && mustUse <= it.From() {
		panic(bailoutf("cannot spill %s: it must be in a register at %d", it, mustUse))
	}

	ls.changeSpillState(it, pos)
	if mustUse != MaxPosition && mustUse < it.To() {
		tail := it.Split(mustUse, ls.ctx)
		ls.enqueueSplit(tail)
	}
	ls.assignSpillSlot(it)
	it.SetState(StateHandled)
	log.Debugf("respilled %s", it)
}

func (ls *linearScan) enqueueSplit(child *Interval) {
	child.SetState(StateUnhandled)
	child.SetInsertMoveWhenActivated(true)
	child.RewindRange()
	ls.unhandled.addSortedByStartAndUsage(BindingAny, child)
}

// assignSpillSlot gives the interval its family's canonical spill slot,
// allocating one on first demand.
func (ls *linearScan) assignSpillSlot(it *Interval) {
	if it.SpillSlot().IsIllegal() {
		slot := NewStackSlot(ls.nextSpillSlot, it.SplitParent().kind)
		ls.nextSpillSlot++
		it.SetSpillSlot(slot)
	}
	if it.Location() != it.SpillSlot() {
		it.AssignLocation(it.SpillSlot())
	}
}

// changeSpillState advances the spill optimization state when a spill move
// becomes necessary at spillPos. The state machine only moves forward.
func (ls *linearScan) changeSpillState(it *Interval, spillPos int) {
	switch it.SpillState() {
	case SpillNoStore:
		defPos := it.SpillDefinitionPos()
		if defPos != -1 && spillPos > defPos {
			it.SetSpillState(SpillOneStore)
		}
	case SpillOneStore:
		// a second store would be redundant; store at the definition instead
		it.SetSpillState(SpillStoreAtDefinition)
	case SpillStoreAtDefinition, SpillStartInMemory, SpillNoOptimization, SpillNoDefinitionFound:
		// nothing to do
	}
}

// ---------------------------------------------------------------------------
// Result
// ---------------------------------------------------------------------------

// Assignment is the final location of one interval (parent or split child).
type Assignment struct {
	Operand  Value
	Location Value
	From     int
	To       int
}

// Result is the outcome of one allocation: a queryable operand-to-location
// mapping consumed by code emission.
type Result struct {
	Sequence    *Sequence
	Assignments []Assignment
	SpillSlots  int

	ctx *AllocationContext
}

func (ls *linearScan) finish() (*Result, error) {
	res := &Result{Sequence: ls.seq, SpillSlots: ls.nextSpillSlot, ctx: ls.ctx}
	for _, it := range ls.ctx.intervals {
		if it == nil || it.First() == RangeEndMarker || it.Operand.IsRegister() {
			continue
		}
		if it.Location().IsIllegal() {
			return nil, &Bailout{
				Reason: fmt.Sprintf("interval %s has no location after allocation", it),
				Detail: it.LogString(),
			}
		}
		it.checkSplitChildren()
		res.Assignments = append(res.Assignments, Assignment{
			Operand:  it.Operand,
			Location: it.Location(),
			From:     it.From(),
			To:       it.To(),
		})
	}
	return res, nil
}

// LocationAt resolves the location of an operand at a given operation id and
// mode, following split children. Asking for a position where the operand is
// not live is an error.
func (r *Result) LocationAt(operand Value, opID int, mode OperandMode) (Value, error) {
	if !operand.IsVariable() {
		return operand, nil
	}
	n := r.ctx.pool.OperandNumber(operand)
	if n >= len(r.ctx.intervals) || r.ctx.intervals[n] == nil {
		return IllegalValue, bailoutf("no interval for operand %s", operand)
	}
	it := r.ctx.intervals[n].SplitParent()
	if !it.SplitChildCovers(opID, mode) {
		return IllegalValue, bailoutf("operand %s is not live at %d", operand, opID)
	}
	child, err := it.SplitChildAtOpID(opID, mode)
	if err != nil {
		return IllegalValue, err
	}
	return child.Location(), nil
}

// IntervalFor exposes the (parent) interval of an operand for logging and
// snapshot tooling.
func (r *Result) IntervalFor(operand Value) *Interval {
	if !operand.IsVariable() {
		return nil
	}
	n := r.ctx.pool.OperandNumber(operand)
	if n >= len(r.ctx.intervals) || r.ctx.intervals[n] == nil {
		return nil
	}
	return r.ctx.intervals[n]
}

// Intervals returns every interval created during allocation, including
// split children, in operand-number order.
func (r *Result) Intervals() []*Interval {
	var out []*Interval
	for _, it := range r.ctx.intervals {
		if it != nil && it.First() != RangeEndMarker {
			out = append(out, it)
		}
	}
	return out
}
