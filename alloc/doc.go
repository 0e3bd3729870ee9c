// Package alloc implements linear-scan register allocation over numbered
// instruction sequences.
//
// Every operand gets a lifetime interval: a sorted list of half-open
// [from, to) ranges plus a descending list of use positions weighted by
// register priority. The walker sweeps intervals in start order through the
// unhandled, active, inactive and handled states, splitting an interval
// wherever a register has to change hands and spilling the parts that lose.
// Split families share one canonical spill slot held by the parent, and a
// small spill-state machine tracks whether the store at the definition can
// replace later spill moves.
//
// Allocation never recovers from corrupted input: any inconsistency aborts
// the unit with a *Bailout.
package alloc
