package converge

import (
	"context"
	"fmt"
	"time"

	"drift/internal/deploy"
)

// ContainerBackend abstracts the container runtime of one node. List builds
// a fresh observation set; Start and Stop apply single changes. The backend
// holds no convergence logic.
type ContainerBackend interface {
	List(ctx context.Context, node deploy.NodeAddress) ([]deploy.ObservedUnit, error)
	Start(ctx context.Context, node deploy.NodeAddress, app deploy.Application) error
	Stop(ctx context.Context, node deploy.NodeAddress, containerName string) error
}

// Clock abstracts wall-clock reads for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// UnreachableError means the node or its runtime could not be contacted.
// Observation treats it as retryable.
type UnreachableError struct {
	Node deploy.NodeAddress
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("node %s unreachable: %v", e.Node, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// ApplyFailure means the runtime rejected an individual start or stop.
type ApplyFailure struct {
	Node          deploy.NodeAddress
	ContainerName string
	Op            string // "start" or "stop"
	Err           error
}

func (e *ApplyFailure) Error() string {
	return fmt.Sprintf("%s %s on %s: %v", e.Op, e.ContainerName, e.Node, e.Err)
}

func (e *ApplyFailure) Unwrap() error { return e.Err }

// ObservationError wraps an observation failure after the retry budget is
// exhausted; the node is reported unreachable for the cycle.
type ObservationError struct {
	Node     deploy.NodeAddress
	Attempts int
	Err      error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("observe %s failed after %d attempts: %v", e.Node, e.Attempts, e.Err)
}

func (e *ObservationError) Unwrap() error { return e.Err }

// ApplyError records one failed change. It does not abort sibling changes;
// the next cycle re-diffs and retries naturally.
type ApplyError struct {
	Node   deploy.NodeAddress
	Change deploy.Change
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s on %s: %v", e.Change, e.Node, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
