package converge

import "testing"

func TestCyclePhaseTransition(t *testing.T) {
	t.Run("happy path to converged", func(t *testing.T) {
		p := PhasePending
		for _, next := range []CyclePhase{PhaseObserving, PhaseDiffing, PhaseApplying, PhaseConverged} {
			p = p.Transition(next)
			if p != next {
				t.Fatalf("phase = %s, want %s", p, next)
			}
		}
		if !p.Terminal() {
			t.Fatalf("%s must be terminal", p)
		}
	})

	t.Run("observe failure short circuits", func(t *testing.T) {
		p := PhasePending.Transition(PhaseObserving).Transition(PhaseUnreachable)
		if p != PhaseUnreachable {
			t.Fatalf("phase = %s, want unreachable", p)
		}
	})

	t.Run("empty diff skips applying", func(t *testing.T) {
		p := PhasePending.Transition(PhaseObserving).Transition(PhaseDiffing).Transition(PhaseConverged)
		if p != PhaseConverged {
			t.Fatalf("phase = %s, want converged", p)
		}
	})

	t.Run("invalid transition keeps phase", func(t *testing.T) {
		if p := PhaseConverged.Transition(PhaseObserving); p != PhaseConverged {
			t.Fatalf("terminal phase moved: %s", p)
		}
		if p := PhasePending.Transition(PhaseApplying); p != PhasePending {
			t.Fatalf("pending skipped ahead: %s", p)
		}
	})

	t.Run("strings", func(t *testing.T) {
		want := map[CyclePhase]string{
			PhasePending:     "pending",
			PhaseObserving:   "observing",
			PhaseDiffing:     "diffing",
			PhaseApplying:    "applying",
			PhaseConverged:   "converged",
			PhasePartial:     "partial",
			PhaseUnreachable: "unreachable",
		}
		for phase, s := range want {
			if phase.String() != s {
				t.Fatalf("String(%d) = %q, want %q", int(phase), phase.String(), s)
			}
		}
	})
}
