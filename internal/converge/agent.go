package converge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"drift/internal/check"
	"drift/internal/deploy"
)

const (
	// defaultObserveAttempts is 3: transient runtime hiccups usually clear
	// within a couple of retries; anything longer is the next cycle's problem.
	defaultObserveAttempts = 3
	// defaultObserveBackoff is 500ms, doubling per attempt.
	defaultObserveBackoff = 500 * time.Millisecond
)

// Agent runs convergence cycles for individual nodes. One Agent serves the
// whole cluster; per-node serialization is the coordinator's job.
type Agent struct {
	Backend ContainerBackend
	Model   *deploy.Model
	Clock   Clock

	// ObserveAttempts and ObserveBackoff tune observation retries.
	// Zero values select the defaults.
	ObserveAttempts int
	ObserveBackoff  time.Duration

	OnEvent func(eventType, message string)
}

// Result is the outcome of one convergence cycle on one node.
type Result struct {
	Node             deploy.NodeAddress
	Phase            CyclePhase
	Started          time.Time
	Finished         time.Time
	ChangesAttempted int
	ChangesSucceeded int
	Failures         []*ApplyError
	Err              error // set for unreachable or canceled cycles
}

// Converged reports whether the node finished the cycle matching its
// desired applications.
func (r Result) Converged() bool {
	return r.Phase == PhaseConverged
}

// Fault reduces the cycle to a single error, nil when converged.
func (r Result) Fault() error {
	switch {
	case r.Converged():
		return nil
	case r.Err != nil:
		return r.Err
	case len(r.Failures) > 0:
		return fmt.Errorf("%d of %d changes failed", len(r.Failures), r.ChangesAttempted)
	default:
		return fmt.Errorf("cycle ended %s", r.Phase)
	}
}

func (a *Agent) getClock() Clock {
	if a.Clock != nil {
		return a.Clock
	}
	return RealClock{}
}

func (a *Agent) observeAttempts() int {
	if a.ObserveAttempts > 0 {
		return a.ObserveAttempts
	}
	return defaultObserveAttempts
}

func (a *Agent) observeBackoff() time.Duration {
	if a.ObserveBackoff > 0 {
		return a.ObserveBackoff
	}
	return defaultObserveBackoff
}

func (a *Agent) emit(eventType, message string) {
	if a.OnEvent != nil {
		a.OnEvent(eventType, message)
	}
	slog.Debug("converge event", "event", eventType, "message", message)
}

// Converge runs one full cycle against a node: observe its containers,
// diff them against the desired applications, and apply the resulting
// changes. A failed change does not abort its siblings; the cycle ends
// Partial and the next one retries what is still off. A canceled context
// stops the cycle before the next change without abandoning the one in
// flight.
func (a *Agent) Converge(ctx context.Context, node deploy.NodeAddress) Result {
	check.Assert(a.Backend != nil, "Agent.Converge: Backend must not be nil")
	check.Assert(a.Model != nil, "Agent.Converge: Model must not be nil")

	clock := a.getClock()
	result := Result{Node: node, Phase: PhasePending, Started: clock.Now()}

	result.Phase = result.Phase.Transition(PhaseObserving)
	observed, err := a.observe(ctx, node)
	if err != nil {
		result.Phase = result.Phase.Transition(PhaseUnreachable)
		result.Err = err
		result.Finished = clock.Now()
		a.emit("cycle.unreachable", err.Error())
		return result
	}

	result.Phase = result.Phase.Transition(PhaseDiffing)
	changes := deploy.Diff(a.Model.ApplicationsFor(node), observed)
	if len(changes) == 0 {
		result.Phase = result.Phase.Transition(PhaseConverged)
		result.Finished = clock.Now()
		a.emit("cycle.converged", fmt.Sprintf("node %s already converged", node))
		return result
	}

	result.Phase = result.Phase.Transition(PhaseApplying)
	// Cancellation takes effect between changes. Each individual start or
	// stop runs on a cancellation-free context so the backend never leaves
	// a half-created container behind.
	applyCtx := context.WithoutCancel(ctx)
	skipStart := make(map[string]bool)
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			result.Err = err
			a.emit("cycle.canceled", fmt.Sprintf("node %s: %d of %d changes applied before cancellation",
				node, result.ChangesSucceeded, len(changes)))
			break
		}
		// A replacement pair's start is pointless while the failed stop
		// still holds the container name; leave it for the next cycle.
		if change.Kind == deploy.Start && skipStart[change.Application.Name] {
			a.emit("change.skipped", fmt.Sprintf("start %s: paired stop failed", change.ContainerName))
			continue
		}
		result.ChangesAttempted++
		if err := a.apply(applyCtx, node, change); err != nil {
			applyErr := &ApplyError{Node: node, Change: change, Err: err}
			result.Failures = append(result.Failures, applyErr)
			a.emit("change.failed", applyErr.Error())
			if change.Kind == deploy.Stop {
				if application, ok := deploy.ApplicationName(change.ContainerName); ok {
					skipStart[application] = true
				}
			}
			continue
		}
		result.ChangesSucceeded++
		a.emit("change.applied", change.String())
	}

	if result.ChangesSucceeded == len(changes) {
		result.Phase = result.Phase.Transition(PhaseConverged)
		a.emit("cycle.converged", fmt.Sprintf("node %s: %d changes applied", node, result.ChangesSucceeded))
	} else {
		result.Phase = result.Phase.Transition(PhasePartial)
		a.emit("cycle.partial", fmt.Sprintf("node %s: %d of %d changes applied",
			node, result.ChangesSucceeded, len(changes)))
	}
	result.Finished = clock.Now()
	return result
}

// observe lists the node's containers, retrying transient failures with a
// doubling backoff. Context cancellation wins over the retry budget.
func (a *Agent) observe(ctx context.Context, node deploy.NodeAddress) ([]deploy.ObservedUnit, error) {
	attempts := a.observeAttempts()
	backoff := a.observeBackoff()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		units, err := a.Backend.List(ctx, node)
		if err == nil {
			return units, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		a.emit("observe.retry", fmt.Sprintf("node %s attempt %d/%d: %v", node, attempt, attempts, err))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, &ObservationError{Node: node, Attempts: attempts, Err: lastErr}
}

func (a *Agent) apply(ctx context.Context, node deploy.NodeAddress, change deploy.Change) error {
	switch change.Kind {
	case deploy.Start:
		return a.Backend.Start(ctx, node, change.Application)
	case deploy.Stop:
		return a.Backend.Stop(ctx, node, change.ContainerName)
	default:
		check.Assertf(false, "unknown change kind: %d", int(change.Kind))
		return fmt.Errorf("unknown change kind %d", int(change.Kind))
	}
}
