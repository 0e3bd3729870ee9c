package remote

// Status is the liveness classification of a remote object, as far as it can
// be determined from outside the runtime.
type Status int

const (
	// StatusUnknown means no transition has been observed yet.
	StatusUnknown Status = iota

	// StatusLive marks an object presumed reachable and usable.
	StatusLive

	// StatusForwarder marks a quasi-object: the old copy of a relocated
	// object, holding only a pointer to the new copy.
	StatusForwarder

	// StatusDead marks an object determined to be unreachable. Dead is
	// final.
	StatusDead
)

var statusNames = map[Status]string{
	StatusUnknown:   "UNKNOWN",
	StatusLive:      "LIVE",
	StatusForwarder: "FORWARDER",
	StatusDead:      "DEAD",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "INVALID"
}

// IsLive reports whether the object can be examined.
func (s Status) IsLive() bool { return s == StatusLive }

// IsDead reports whether the object is permanently gone.
func (s Status) IsDead() bool { return s == StatusDead }

// IsForwarder reports whether the reference designates a forwarding
// quasi-object.
func (s Status) IsForwarder() bool { return s == StatusForwarder }
