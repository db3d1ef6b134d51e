package converge

import "drift/internal/check"

// CyclePhase tracks one node through a convergence cycle. A cycle moves
// Pending -> Observing -> Diffing -> Applying and ends in exactly one of
// Converged, Partial, or Unreachable. Observation failures may end the
// cycle straight from Observing.
type CyclePhase int

const (
	PhasePending CyclePhase = iota
	PhaseObserving
	PhaseDiffing
	PhaseApplying
	PhaseConverged
	PhasePartial
	PhaseUnreachable
)

func (p CyclePhase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseObserving:
		return "observing"
	case PhaseDiffing:
		return "diffing"
	case PhaseApplying:
		return "applying"
	case PhaseConverged:
		return "converged"
	case PhasePartial:
		return "partial"
	case PhaseUnreachable:
		return "unreachable"
	default:
		check.Assertf(false, "unknown cycle phase: %d", int(p))
		return "unknown"
	}
}

// Terminal reports whether the phase ends a cycle.
func (p CyclePhase) Terminal() bool {
	return p == PhaseConverged || p == PhasePartial || p == PhaseUnreachable
}

// Transition moves to the next phase if the state machine permits it.
// Invalid transitions keep the current phase.
func (p CyclePhase) Transition(to CyclePhase) CyclePhase {
	ok := false
	switch p {
	case PhasePending:
		ok = to == PhaseObserving
	case PhaseObserving:
		ok = to == PhaseDiffing || to == PhaseUnreachable
	case PhaseDiffing:
		ok = to == PhaseApplying || to == PhaseConverged
	case PhaseApplying:
		ok = to == PhaseConverged || to == PhasePartial
	}
	check.Assertf(ok, "cycle transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}
