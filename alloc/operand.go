package alloc

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Operand model: the abstract and physical values the allocator works on
// ---------------------------------------------------------------------------

// Kind is the primitive type tag carried by a variable interval. The kind
// decides which register class a value may live in and how wide its spill
// slot must be.
type Kind int

const (
	KindIllegal Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindObject
)

var kindNames = [...]string{
	KindIllegal: "illegal",
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindDouble:  "double",
	KindObject:  "object",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a textual kind name (as used in LIR dumps and target
// descriptions) back to a Kind. Unknown names yield KindIllegal.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return Kind(k)
		}
	}
	return KindIllegal
}

// ValueClass discriminates the representations a Value can take.
type ValueClass int

const (
	ClassIllegal ValueClass = iota

	// ClassVariable is an abstract value awaiting a location.
	ClassVariable

	// ClassRegister is a physical register, either pre-colored input or an
	// allocation result.
	ClassRegister

	// ClassStackSlot is a spill slot in the current frame.
	ClassStackSlot

	// ClassAddress is a composite base-register+displacement location.
	ClassAddress
)

// Value identifies an operand: a variable before allocation, or a register,
// stack slot or address after. Values are small and compared by value, the
// same way VM-level words are handled elsewhere in the runtime.
type Value struct {
	Class ValueClass
	Kind  Kind

	// Num is the variable number, register number or stack slot index,
	// depending on Class.
	Num int

	// Base and Disp are only meaningful for ClassAddress.
	Base int
	Disp int32
}

// IllegalValue is the zero operand. Used wherever the original value is
// unknown or intentionally absent.
var IllegalValue = Value{Class: ClassIllegal, Kind: KindIllegal}

// NewVariable returns an abstract variable operand.
func NewVariable(num int, kind Kind) Value {
	return Value{Class: ClassVariable, Kind: kind, Num: num}
}

// NewRegisterValue returns a physical register operand.
func NewRegisterValue(reg int, kind Kind) Value {
	return Value{Class: ClassRegister, Kind: kind, Num: reg}
}

// NewStackSlot returns a spill slot operand.
func NewStackSlot(index int, kind Kind) Value {
	return Value{Class: ClassStackSlot, Kind: kind, Num: index}
}

// NewAddress returns a base+displacement memory operand.
func NewAddress(base int, disp int32, kind Kind) Value {
	return Value{Class: ClassAddress, Kind: kind, Base: base, Disp: disp}
}

func (v Value) IsIllegal() bool   { return v.Class == ClassIllegal }
func (v Value) IsVariable() bool  { return v.Class == ClassVariable }
func (v Value) IsRegister() bool  { return v.Class == ClassRegister }
func (v Value) IsStackSlot() bool { return v.Class == ClassStackSlot }
func (v Value) IsAddress() bool   { return v.Class == ClassAddress }

func (v Value) String() string {
	switch v.Class {
	case ClassVariable:
		return fmt.Sprintf("v%d:%s", v.Num, v.Kind)
	case ClassRegister:
		return fmt.Sprintf("r%d:%s", v.Num, v.Kind)
	case ClassStackSlot:
		return fmt.Sprintf("stack:%d:%s", v.Num, v.Kind)
	case ClassAddress:
		return fmt.Sprintf("[r%d+%d]:%s", v.Base, v.Disp, v.Kind)
	default:
		return "-"
	}
}

// Register describes one physical register of the target. The allocator only
// cares about its number, its name (for dumps) and whether a call destroys it.
type Register struct {
	Num         int
	Name        string
	CallerSaved bool
}

func (r Register) String() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("r%d", r.Num)
}

// OperandPool numbers operands for one compilation unit. Registers occupy
// numbers [0, vregBase); variables are numbered from vregBase upward, so a
// single dense index space covers both fixed and variable intervals.
type OperandPool struct {
	vregBase int
	nextVar  int
}

// NewOperandPool creates a pool for a target with numRegisters physical
// registers.
func NewOperandPool(numRegisters int) *OperandPool {
	return &OperandPool{vregBase: numRegisters, nextVar: numRegisters}
}

// VRegBase returns the first operand number used for variables.
func (p *OperandPool) VRegBase() int { return p.vregBase }

// Size returns the total number of operand numbers handed out, including the
// fixed register block.
func (p *OperandPool) Size() int { return p.nextVar }

// NewVariable allocates the next variable operand.
func (p *OperandPool) NewVariable(kind Kind) Value {
	v := NewVariable(p.nextVar-p.vregBase, kind)
	p.nextVar++
	return v
}

// OperandNumber maps an operand to its dense index. Registers map to their
// register number, variables to vregBase plus their variable number.
func (p *OperandPool) OperandNumber(v Value) int {
	switch v.Class {
	case ClassRegister:
		return v.Num
	case ClassVariable:
		return p.vregBase + v.Num
	default:
		panic(fmt.Sprintf("alloc: operand %s has no operand number", v))
	}
}

// IsVariableNumber reports whether an operand number denotes a variable
// rather than a fixed register.
func (p *OperandPool) IsVariableNumber(n int) bool { return n >= p.vregBase }
