package main

import (
	"strings"
	"testing"

	"github.com/ternvm/tern/alloc"
)

func TestParseLIR(t *testing.T) {
	input := `
# a small loop
seq sum
params v0

const def v1
add def v2 use v1 v0
jump
loop 1 2 v1 v2
`
	pool := alloc.NewOperandPool(4)
	seq, err := parseLIR(strings.NewReader(input), pool)
	if err != nil {
		t.Fatalf("parseLIR: %v", err)
	}

	if seq.Name != "sum" {
		t.Errorf("Name: got %q", seq.Name)
	}
	if len(seq.Params) != 1 {
		t.Fatalf("Params: got %d", len(seq.Params))
	}
	if len(seq.Instructions) != 3 {
		t.Fatalf("Instructions: got %d", len(seq.Instructions))
	}

	add := seq.Instructions[1]
	if add.Name != "add" || len(add.Defs) != 1 || len(add.Uses) != 2 {
		t.Errorf("Unexpected instruction: %s", add)
	}
	// v1 appears in two instructions and must resolve to one variable
	if add.Uses[0] != seq.Instructions[0].Defs[0] {
		t.Error("Textual v1 must denote the same variable everywhere")
	}

	if len(seq.Loops) != 1 {
		t.Fatalf("Loops: got %d", len(seq.Loops))
	}
	loop := seq.Loops[0]
	if loop.HeaderID != seq.Instructions[1].ID() || loop.EndID != seq.Instructions[2].ID() {
		t.Errorf("Loop bounds: %+v", loop)
	}
	if len(loop.LiveAtEnd) != 2 {
		t.Errorf("LiveAtEnd: got %d", len(loop.LiveAtEnd))
	}
}

func TestParseLIROperands(t *testing.T) {
	input := `
mov def v0:object use r1:object
call use v0 call
`
	pool := alloc.NewOperandPool(4)
	seq, err := parseLIR(strings.NewReader(input), pool)
	if err != nil {
		t.Fatalf("parseLIR: %v", err)
	}

	mov := seq.Instructions[0]
	if mov.Defs[0].Kind != alloc.KindObject {
		t.Errorf("Kind suffix ignored: %+v", mov.Defs[0])
	}
	if !mov.Uses[0].IsRegister() || mov.Uses[0].Num != 1 {
		t.Errorf("Register operand: %+v", mov.Uses[0])
	}
	if !seq.Instructions[1].IsCall {
		t.Error("call marker not applied")
	}
}

func TestParseLIRErrors(t *testing.T) {
	cases := []struct {
		name, input string
	}{
		{"operand outside section", "mov v0"},
		{"bad operand", "mov def x9"},
		{"unknown kind", "mov def v0:quux"},
		{"register outside file", "mov def r9"},
		{"loop out of range", "nop\nloop 0 5"},
		{"loop inverted", "nop\nnop\nloop 1 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := alloc.NewOperandPool(4)
			if _, err := parseLIR(strings.NewReader(tc.input), pool); err == nil {
				t.Error("Expected a parse error")
			}
		})
	}
}

func TestParsedSequenceAllocates(t *testing.T) {
	input := `
seq straightline
const def v0
const def v1
add def v2 use v0 v1
ret use v2
`
	pool := alloc.NewOperandPool(2)
	seq, err := parseLIR(strings.NewReader(input), pool)
	if err != nil {
		t.Fatalf("parseLIR: %v", err)
	}

	regs := []alloc.Register{{Num: 0, Name: "r0"}, {Num: 1, Name: "r1"}}
	res, err := alloc.Allocate(seq, alloc.Config{Registers: regs, Pool: pool})
	if err != nil {
		t.Fatalf("Allocation failed: %v", err)
	}
	if len(res.Assignments) == 0 {
		t.Error("Expected assignments for the parsed sequence")
	}
}

func TestParseLIRVariableKindPinning(t *testing.T) {
	// a high-numbered first mention must not stamp its kind on the gap
	// variables it materializes
	input := `
mov def v3:object
mov def v1
mov def v0:float
`
	pool := alloc.NewOperandPool(2)
	seq, err := parseLIR(strings.NewReader(input), pool)
	if err != nil {
		t.Fatalf("parseLIR: %v", err)
	}

	if kind := seq.Instructions[0].Defs[0].Kind; kind != alloc.KindObject {
		t.Errorf("v3: got %s, want object", kind)
	}
	if kind := seq.Instructions[1].Defs[0].Kind; kind != alloc.KindInt {
		t.Errorf("v1: got %s, want the int default", kind)
	}
	if kind := seq.Instructions[2].Defs[0].Kind; kind != alloc.KindFloat {
		t.Errorf("v0: got %s, want float", kind)
	}
}

func TestParseLIRRejectsConflictingKinds(t *testing.T) {
	input := `
mov def v0:object
mov use v0:int
`
	pool := alloc.NewOperandPool(2)
	if _, err := parseLIR(strings.NewReader(input), pool); err == nil {
		t.Error("Expected a kind conflict error")
	}

	// repeating the same annotation is fine
	ok := `
mov def v0:object
mov use v0:object
mov use v0
`
	pool = alloc.NewOperandPool(2)
	seq, err := parseLIR(strings.NewReader(ok), pool)
	if err != nil {
		t.Fatalf("parseLIR: %v", err)
	}
	if kind := seq.Instructions[2].Uses[0].Kind; kind != alloc.KindObject {
		t.Errorf("Bare mention: got %s, want the pinned object kind", kind)
	}
}
