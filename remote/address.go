package remote

import "fmt"

// Address is a location in the inspected runtime's virtual memory. The zero
// value means "no address".
type Address uint64

// Zero is the null address.
const Zero Address = 0

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool { return a == 0 }

func (a Address) String() string { return fmt.Sprintf("%#x", uint64(a)) }
