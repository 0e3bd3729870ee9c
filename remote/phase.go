package remote

// Phase is the collector's externally visible heap phase. The collector
// cycles Mutating -> Analyzing -> Reclaiming -> Mutating; every reference
// transition is only legal in particular phases.
type Phase int

const (
	// PhaseMutating: no collection in progress, new live objects appear.
	PhaseMutating Phase = iota

	// PhaseAnalyzing: liveness is being determined, objects may be
	// relocated and forwarders appear.
	PhaseAnalyzing

	// PhaseReclaiming: liveness is settled, unreachable memory is being
	// recovered.
	PhaseReclaiming
)

var phaseNames = map[Phase]string{
	PhaseMutating:   "MUTATING",
	PhaseAnalyzing:  "ANALYZING",
	PhaseReclaiming: "RECLAIMING",
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return "INVALID"
}
