package alloc

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// LIR: the linear instruction sequence consumed by the allocator
// ---------------------------------------------------------------------------

// OperandMode distinguishes the roles an operand plays at one instruction.
// The mode decides whether the end position of a range counts as covered.
type OperandMode int

const (
	// ModeInput: the operand is read by the instruction.
	ModeInput OperandMode = iota

	// ModeTemp: the operand is clobbered during the instruction.
	ModeTemp

	// ModeOutput: the operand is defined by the instruction.
	ModeOutput
)

func (m OperandMode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeTemp:
		return "temp"
	case ModeOutput:
		return "output"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Instruction is one operation with its operand annotations. The allocator
// never interprets Name; it only follows the def/use/temp sets and the call
// flag.
type Instruction struct {
	id int

	Name string

	// Defs are operands defined (written) by this instruction.
	Defs []Value

	// Uses are operands read by this instruction.
	Uses []Value

	// Temps are operands clobbered during this instruction.
	Temps []Value

	// IsCall marks an instruction that destroys all caller-saved registers.
	IsCall bool
}

// ID returns the instruction's operation id. Ids are even; odd positions are
// reserved for spill moves inserted between instructions.
func (in *Instruction) ID() int { return in.id }

func (in *Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", in.id, in.Name)
	sep := " "
	for _, d := range in.Defs {
		fmt.Fprintf(&b, "%sd=%s", sep, d)
		sep = " "
	}
	for _, u := range in.Uses {
		fmt.Fprintf(&b, "%su=%s", sep, u)
	}
	for _, t := range in.Temps {
		fmt.Fprintf(&b, "%st=%s", sep, t)
	}
	if in.IsCall {
		b.WriteString(" call")
	}
	return b.String()
}

// Loop marks a loop in the linear sequence. LiveAtEnd lists the variables
// that are live across the back-edge; they get their ranges extended over
// the whole loop body and a loop-end use position.
type Loop struct {
	// HeaderID and EndID are operation ids of the first and last
	// instruction of the loop body.
	HeaderID int
	EndID    int

	// LiveAtEnd holds the variable operands live across the back-edge.
	LiveAtEnd []Value
}

// Sequence is the allocator's input: a numbered linear instruction list plus
// loop liveness annotations and the incoming parameters of the compilation
// unit.
type Sequence struct {
	Name         string
	Instructions []*Instruction

	// Params are variables that enter the sequence already defined, e.g.
	// incoming method parameters. They are live from position 0 and start
	// in memory.
	Params []Value

	Loops []Loop

	numbered bool
}

// Append adds an instruction to the sequence.
func (s *Sequence) Append(in *Instruction) {
	s.Instructions = append(s.Instructions, in)
	s.numbered = false
}

// Number assigns operation ids: instruction i gets id i*2, leaving odd ids
// free for spill moves. Must be called before allocation; Append invalidates
// the numbering.
func (s *Sequence) Number() {
	for i, in := range s.Instructions {
		in.id = i * 2
	}
	s.numbered = true
}

// MaxID returns the highest operation id, or -1 for an empty sequence.
func (s *Sequence) MaxID() int {
	if len(s.Instructions) == 0 {
		return -1
	}
	return s.Instructions[len(s.Instructions)-1].id
}

// InstructionAt returns the instruction with the given operation id, or nil.
func (s *Sequence) InstructionAt(id int) *Instruction {
	if id < 0 || id%2 != 0 {
		return nil
	}
	idx := id / 2
	if idx >= len(s.Instructions) {
		return nil
	}
	return s.Instructions[idx]
}

func (s *Sequence) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sequence %s (%d instructions)\n", s.Name, len(s.Instructions))
	for _, in := range s.Instructions {
		b.WriteString("  ")
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}
