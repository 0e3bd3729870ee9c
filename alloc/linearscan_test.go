package alloc

import (
	"errors"
	"testing"
)

func allocateSequence(t *testing.T, numRegisters int, build func(pool *OperandPool, seq *Sequence) []Value) (*Result, []Value) {
	t.Helper()
	pool := NewOperandPool(numRegisters)
	seq := &Sequence{Name: "test"}
	vars := build(pool, seq)

	res, err := Allocate(seq, Config{Registers: testRegisters(numRegisters), Pool: pool})
	if err != nil {
		t.Fatalf("Allocation failed: %v", err)
	}
	return res, vars
}

func TestAllocateEnoughRegisters(t *testing.T) {
	res, vars := allocateSequence(t, 2, func(pool *OperandPool, seq *Sequence) []Value {
		v0 := pool.NewVariable(KindInt)
		v1 := pool.NewVariable(KindInt)
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}})
		seq.Append(&Instruction{Name: "inc", Defs: []Value{v1}, Uses: []Value{v0}})
		seq.Append(&Instruction{Name: "add", Uses: []Value{v0, v1}})
		return []Value{v0, v1}
	})

	if res.SpillSlots != 0 {
		t.Errorf("Expected no spill slots, got %d", res.SpillSlots)
	}

	locs := make(map[int]Value)
	for i, v := range vars {
		loc, err := res.LocationAt(v, 2, ModeInput)
		if err != nil {
			t.Fatalf("LocationAt(v%d): %v", i, err)
		}
		if !loc.IsRegister() {
			t.Errorf("v%d: expected a register, got %s", i, loc)
		}
		locs[i] = loc
	}
	if locs[0] == locs[1] {
		t.Errorf("Simultaneously live values share register %s", locs[0])
	}
}

func TestAllocateSpillsUnderPressure(t *testing.T) {
	res, vars := allocateSequence(t, 1, func(pool *OperandPool, seq *Sequence) []Value {
		v0 := pool.NewVariable(KindInt)
		v1 := pool.NewVariable(KindInt)
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}}) // 0
		seq.Append(&Instruction{Name: "const", Defs: []Value{v1}}) // 2
		seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})   // 4
		seq.Append(&Instruction{Name: "use", Uses: []Value{v1}})   // 6
		return []Value{v0, v1}
	})

	if res.SpillSlots != 1 {
		t.Errorf("Expected exactly one spill slot, got %d", res.SpillSlots)
	}

	// v0 is defined into the register and later read from its spill slot
	atDef, err := res.LocationAt(vars[0], 0, ModeOutput)
	if err != nil {
		t.Fatalf("LocationAt(v0, 0): %v", err)
	}
	if !atDef.IsRegister() {
		t.Errorf("v0 at definition: expected a register, got %s", atDef)
	}
	atUse, err := res.LocationAt(vars[0], 4, ModeInput)
	if err != nil {
		t.Fatalf("LocationAt(v0, 4): %v", err)
	}
	if !atUse.IsStackSlot() {
		t.Errorf("v0 at use after eviction: expected the spill slot, got %s", atUse)
	}

	// v1 keeps the register over its whole lifetime
	atUse, err = res.LocationAt(vars[1], 6, ModeInput)
	if err != nil {
		t.Fatalf("LocationAt(v1, 6): %v", err)
	}
	if !atUse.IsRegister() {
		t.Errorf("v1: expected a register, got %s", atUse)
	}
}

func TestAllocateCallEvictsCallerSaved(t *testing.T) {
	res, vars := allocateSequence(t, 2, func(pool *OperandPool, seq *Sequence) []Value {
		v0 := pool.NewVariable(KindInt)
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}}) // 0
		seq.Append(&Instruction{Name: "call", IsCall: true})       // 2
		seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})   // 4
		return []Value{v0}
	})

	atDef, err := res.LocationAt(vars[0], 0, ModeOutput)
	if err != nil {
		t.Fatalf("LocationAt(v0, 0): %v", err)
	}
	if !atDef.IsRegister() {
		t.Errorf("v0 at definition: expected a register, got %s", atDef)
	}

	atUse, err := res.LocationAt(vars[0], 4, ModeInput)
	if err != nil {
		t.Fatalf("LocationAt(v0, 4): %v", err)
	}
	if !atUse.IsStackSlot() {
		t.Errorf("v0 after the call: expected the spill slot, got %s", atUse)
	}
	if res.SpillSlots != 1 {
		t.Errorf("Expected one spill slot, got %d", res.SpillSlots)
	}
}

func TestAllocateParametersStartInMemory(t *testing.T) {
	res, vars := allocateSequence(t, 2, func(pool *OperandPool, seq *Sequence) []Value {
		p := pool.NewVariable(KindInt)
		seq.Params = []Value{p}
		seq.Append(&Instruction{Name: "entry"})
		seq.Append(&Instruction{Name: "use", Uses: []Value{p}})
		return []Value{p}
	})

	iv := res.IntervalFor(vars[0])
	if iv == nil {
		t.Fatal("Missing interval for parameter")
	}
	if !iv.AlwaysInMemory() {
		t.Error("Parameter must keep a valid stack copy")
	}
	if iv.Location().IsIllegal() {
		t.Error("Parameter interval left without a location")
	}
}

func TestAllocateReportsBailoutNotPanic(t *testing.T) {
	pool := NewOperandPool(1)
	v0 := pool.NewVariable(KindInt)
	seq := &Sequence{Name: "broken"}
	seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})

	_, err := Allocate(seq, Config{Registers: testRegisters(1), Pool: pool})
	if err == nil {
		t.Fatal("Expected a bailout")
	}
	if !errors.Is(err, ErrBailout) {
		t.Errorf("Expected ErrBailout, got %v", err)
	}
}

func TestAllocateRejectsMismatchedPool(t *testing.T) {
	pool := NewOperandPool(4)
	seq := &Sequence{Name: "mismatch"}
	_, err := Allocate(seq, Config{Registers: testRegisters(2), Pool: pool})
	if err == nil {
		t.Fatal("Expected a bailout for a mismatched pool")
	}
}

func TestResultIntervalsCoverSplitChildren(t *testing.T) {
	res, _ := allocateSequence(t, 1, func(pool *OperandPool, seq *Sequence) []Value {
		v0 := pool.NewVariable(KindInt)
		v1 := pool.NewVariable(KindInt)
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}})
		seq.Append(&Instruction{Name: "const", Defs: []Value{v1}})
		seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})
		seq.Append(&Instruction{Name: "use", Uses: []Value{v1}})
		return nil
	})

	// eviction split v0, so the walk must surface more intervals than the
	// two variables the input named
	if got := len(res.Intervals()); got <= 2 {
		t.Errorf("Expected split children in the interval dump, got %d intervals", got)
	}
	for _, iv := range res.Intervals() {
		if iv.Operand.IsVariable() && iv.Location().IsIllegal() {
			t.Errorf("Interval %s has no location", iv)
		}
	}
}

func TestAllocateRegisterSharedAcrossLifetimeHole(t *testing.T) {
	res, vars := allocateSequence(t, 1, func(pool *OperandPool, seq *Sequence) []Value {
		v0 := pool.NewVariable(KindInt)
		v1 := pool.NewVariable(KindInt)
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}}) // 0
		seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})   // 2
		seq.Append(&Instruction{Name: "const", Defs: []Value{v1}}) // 4
		seq.Append(&Instruction{Name: "use", Uses: []Value{v1}})   // 6
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}}) // 8
		seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})   // 10
		return []Value{v0, v1}
	})

	// v1 lives entirely inside v0's lifetime hole: the single register
	// serves all three live pieces without a spill
	if res.SpillSlots != 0 {
		t.Errorf("Expected no spill slots, got %d", res.SpillSlots)
	}
	for _, q := range []struct{ v, op int }{{0, 0}, {1, 4}, {0, 8}} {
		loc, err := res.LocationAt(vars[q.v], q.op, ModeOutput)
		if err != nil {
			t.Fatalf("LocationAt(v%d, %d): %v", q.v, q.op, err)
		}
		if !loc.IsRegister() || loc.Num != 0 {
			t.Errorf("v%d at %d: expected r0, got %s", q.v, q.op, loc)
		}
	}
}

func TestLocationAtRejectsDeadPositions(t *testing.T) {
	res, vars := allocateSequence(t, 2, func(pool *OperandPool, seq *Sequence) []Value {
		v0 := pool.NewVariable(KindInt)
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}}) // 0
		seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})   // 2
		seq.Append(&Instruction{Name: "const", Defs: []Value{v0}}) // 4
		seq.Append(&Instruction{Name: "use", Uses: []Value{v0}})   // 6
		return []Value{v0}
	})

	if _, err := res.LocationAt(vars[0], 3, ModeOutput); !errors.Is(err, ErrBailout) {
		t.Errorf("Expected ErrBailout for a query inside the lifetime hole, got %v", err)
	}
	if _, err := res.LocationAt(vars[0], 4, ModeOutput); err != nil {
		t.Errorf("Redefinition position must resolve: %v", err)
	}
}
