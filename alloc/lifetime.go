package alloc

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Interval construction: backward dataflow over the instruction sequence
// ---------------------------------------------------------------------------

// intervalBuilder walks the instruction sequence backward and turns operand
// def/use/temp annotations into intervals. Ranges are added at definition
// points (head-insertion, reverse flow order) and use positions are buffered
// per operand until the range that covers them is closed, so AddUsePos always
// sees a covered position and a descending position order.
type intervalBuilder struct {
	ctx *AllocationContext
	seq *Sequence

	// liveTo maps an operand number to the end position of its currently
	// open live range, keyed while walking backward.
	liveTo map[int]int

	// pendingUses buffers (position, priority) pairs per operand number in
	// encounter order, which is descending by construction.
	pendingUses map[int][]usePos
}

func newIntervalBuilder(ctx *AllocationContext, seq *Sequence) *intervalBuilder {
	return &intervalBuilder{
		ctx:         ctx,
		seq:         seq,
		liveTo:      make(map[int]int),
		pendingUses: make(map[int][]usePos),
	}
}

// build creates all intervals for the sequence. Returns a Bailout when the
// input uses a value that is neither defined nor declared as a parameter.
func (b *intervalBuilder) build() error {
	instrs := b.seq.Instructions
	for i := len(instrs) - 1; i >= 0; i-- {
		in := instrs[i]
		id := in.ID()

		for _, loop := range b.seq.Loops {
			if loop.EndID == id {
				b.loopEnd(loop)
			}
		}

		for _, d := range in.Defs {
			b.def(d, id)
		}
		for _, t := range in.Temps {
			b.temp(t, id)
		}
		for _, u := range in.Uses {
			b.use(u, id)
		}
		if in.IsCall {
			b.call(id)
		}
	}
	return b.finishParams()
}

func (b *intervalBuilder) def(v Value, id int) {
	iv := b.ctx.intervalFor(v)
	iv.SetKind(v.Kind)
	if v.IsRegister() {
		iv.AddRange(id, id+1)
		return
	}

	n := b.ctx.pool.OperandNumber(v)
	if to, live := b.liveTo[n]; live {
		iv.AddRange(id, to)
		delete(b.liveTo, n)
	} else {
		// definition without a later use
		iv.AddRange(id, id+1)
	}
	b.flushUses(iv, n)
	iv.AddUsePos(id, PriorityMustHaveRegister)

	if iv.SpillState() == SpillNoDefinitionFound {
		iv.SetSpillDefinitionPos(id)
		iv.SetSpillState(SpillNoStore)
	} else {
		// several definition sites, e.g. phi moves
		iv.SetSpillState(SpillNoOptimization)
	}
}

func (b *intervalBuilder) temp(v Value, id int) {
	iv := b.ctx.intervalFor(v)
	iv.SetKind(v.Kind)
	iv.AddRange(id, id+1)
	iv.AddUsePos(id, PriorityMustHaveRegister)
}

func (b *intervalBuilder) use(v Value, id int) {
	if v.IsRegister() {
		iv := b.ctx.intervalFor(v)
		iv.AddRange(id, id+1)
		return
	}
	n := b.ctx.pool.OperandNumber(v)
	if _, live := b.liveTo[n]; !live {
		b.liveTo[n] = id
	}
	b.bufferUse(n, id, PriorityShouldHaveRegister)
}

func (b *intervalBuilder) loopEnd(loop Loop) {
	for _, v := range loop.LiveAtEnd {
		n := b.ctx.pool.OperandNumber(v)
		if _, live := b.liveTo[n]; !live {
			b.liveTo[n] = loop.EndID
		}
		b.bufferUse(n, loop.EndID, PriorityLiveAtLoopEnd)
	}
}

// call blocks every caller-saved register for the duration of the call.
func (b *intervalBuilder) call(id int) {
	for _, reg := range b.ctx.callerSaved {
		iv := b.ctx.intervalFor(NewRegisterValue(reg.Num, KindIllegal))
		iv.AddRange(id, id+1)
	}
}

func (b *intervalBuilder) bufferUse(n, pos int, priority RegisterPriority) {
	b.pendingUses[n] = append(b.pendingUses[n], usePos{pos, priority})
}

func (b *intervalBuilder) flushUses(iv *Interval, n int) {
	for _, u := range b.pendingUses[n] {
		iv.AddUsePos(u.pos, u.priority)
	}
	delete(b.pendingUses, n)
}

// finishParams closes the ranges of values live at entry. Such a value must
// be a declared parameter; anything else is a use of an undefined value.
func (b *intervalBuilder) finishParams() error {
	params := make(map[int]Value, len(b.seq.Params))
	for _, p := range b.seq.Params {
		params[b.ctx.pool.OperandNumber(p)] = p
	}

	for n, to := range b.liveTo {
		p, ok := params[n]
		if !ok {
			return bailoutf("operand %d is used but never defined", n)
		}
		iv := b.ctx.intervalFor(p)
		iv.SetKind(p.Kind)
		iv.AddRange(0, to)
		b.flushUses(iv, n)
	}

	// parameters enter the sequence resident in memory
	for _, p := range b.seq.Params {
		iv := b.ctx.intervalFor(p)
		iv.SetKind(p.Kind)
		if iv.First() == RangeEndMarker {
			// unused parameter: minimal range so from()/to() are defined
			iv.AddRange(0, 1)
		}
		if iv.SpillState() == SpillNoDefinitionFound {
			iv.SetSpillState(SpillStartInMemory)
		}
	}

	if len(b.pendingUses) != 0 {
		panic(fmt.Sprintf("alloc: %d operands with unflushed use positions", len(b.pendingUses)))
	}
	return nil
}
