package alloc

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Bailout: unrecoverable failure of one compilation
// ---------------------------------------------------------------------------

// ErrBailout is matched by errors.Is against every *Bailout.
var ErrBailout = errors.New("alloc: compilation bailout")

// Bailout reports that register allocation for the current compilation unit
// cannot proceed. The driving compiler is expected to catch it and either
// fall back to a simpler tier or report a failed compile; it must never be
// retried with the same input.
type Bailout struct {
	// Reason is a short description of what went wrong.
	Reason string

	// Detail optionally carries an interval dump or similar diagnostic state.
	Detail string
}

func (b *Bailout) Error() string {
	if b.Detail == "" {
		return "alloc: bailout: " + b.Reason
	}
	return "alloc: bailout: " + b.Reason + ": " + b.Detail
}

func (b *Bailout) Is(target error) bool { return target == ErrBailout }

func bailoutf(format string, args ...interface{}) *Bailout {
	return &Bailout{Reason: fmt.Sprintf(format, args...)}
}
