package converge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"drift/internal/check"
	"drift/internal/deploy"
)

// verifyPollInterval is 250ms: containers settle within a few hundred
// milliseconds of a successful start, so tighter polling only burns API calls.
const verifyPollInterval = 250 * time.Millisecond

// Mismatch is one row of a verification failure: a managed unit that is
// absent, unexpected, or present in the wrong shape.
type Mismatch struct {
	Node          deploy.NodeAddress
	ContainerName string
	Detail        string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: %s", m.Node, m.ContainerName, m.Detail)
}

// TimeoutError reports that the cluster never reached the expected state
// within the deadline. Mismatches holds the last comparison, one row per
// unit still off.
type TimeoutError struct {
	Timeout    time.Duration
	Mismatches []Mismatch
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deployment not reached within %s:", e.Timeout)
	for _, m := range e.Mismatches {
		b.WriteString("\n  ")
		b.WriteString(m.String())
	}
	return b.String()
}

// AssertExpectedDeployment polls every listed node until each one's managed
// units match the expectation, or the timeout elapses. Unmanaged containers
// are ignored. On timeout the returned *TimeoutError carries the last set
// of mismatches.
func (c *Coordinator) AssertExpectedDeployment(ctx context.Context, expected map[deploy.NodeAddress][]deploy.ObservedUnit, timeout time.Duration) error {
	check.Assert(c.Agent != nil, "AssertExpectedDeployment: Agent must not be nil")
	check.Assert(timeout > 0, "AssertExpectedDeployment: timeout must be positive")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nodes := make([]deploy.NodeAddress, 0, len(expected))
	for node := range expected {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	var last []Mismatch
	for {
		last = c.compareCluster(ctx, nodes, expected)
		if len(last) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return &TimeoutError{Timeout: timeout, Mismatches: last}
		case <-time.After(verifyPollInterval):
		}
	}
}

func (c *Coordinator) compareCluster(ctx context.Context, nodes []deploy.NodeAddress, expected map[deploy.NodeAddress][]deploy.ObservedUnit) []Mismatch {
	var mismatches []Mismatch
	for _, node := range nodes {
		observed, err := c.Agent.Backend.List(ctx, node)
		if err != nil {
			mismatches = append(mismatches, Mismatch{Node: node, ContainerName: "*", Detail: fmt.Sprintf("observe failed: %v", err)})
			continue
		}
		mismatches = append(mismatches, compareNode(node, expected[node], observed)...)
	}
	return mismatches
}

// compareNode diffs expectation against observation for one node, managed
// units only. Rows come out sorted by container name.
func compareNode(node deploy.NodeAddress, expected, observed []deploy.ObservedUnit) []Mismatch {
	want := make(map[string]deploy.ObservedUnit, len(expected))
	for _, unit := range expected {
		want[unit.ContainerName] = unit
	}
	got := make(map[string]deploy.ObservedUnit, len(observed))
	for _, unit := range observed {
		if _, managed := deploy.ApplicationName(unit.ContainerName); !managed {
			continue
		}
		got[unit.ContainerName] = unit
	}

	names := make(map[string]struct{}, len(want)+len(got))
	for name := range want {
		names[name] = struct{}{}
	}
	for name := range got {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var mismatches []Mismatch
	for _, name := range sorted {
		wantUnit, wanted := want[name]
		gotUnit, present := got[name]
		switch {
		case wanted && !present:
			mismatches = append(mismatches, Mismatch{Node: node, ContainerName: name, Detail: "missing"})
		case !wanted && present:
			mismatches = append(mismatches, Mismatch{Node: node, ContainerName: name, Detail: "unexpected"})
		default:
			if detail, ok := unitMismatch(wantUnit, gotUnit); ok {
				mismatches = append(mismatches, Mismatch{Node: node, ContainerName: name, Detail: detail})
			}
		}
	}
	return mismatches
}

func unitMismatch(want, got deploy.ObservedUnit) (string, bool) {
	if got.ActivationState != want.ActivationState {
		return fmt.Sprintf("state = %s, want %s", got.ActivationState, want.ActivationState), true
	}
	if !deploy.ImagesEqual(got.Image, want.Image) {
		return fmt.Sprintf("image = %s, want %s", got.Image, want.Image), true
	}
	if !deploy.PortsEqual(got.Ports, want.Ports) {
		return fmt.Sprintf("ports = %v, want %v", got.Ports, want.Ports), true
	}
	return "", false
}
