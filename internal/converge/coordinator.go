package converge

import (
	"context"
	"sort"
	"sync"

	"drift/internal/check"
	"drift/internal/deploy"
)

// Coordinator fans one convergence cycle out across every node the model
// schedules. Overlapping deployments against the same node queue behind a
// per-node mutex rather than interleaving their changes.
type Coordinator struct {
	Agent *Agent

	// StepRunner, when set, wraps each node cycle Deploy runs. Callers use
	// it to attach progress reporting; the wrapped function returns the
	// cycle's Fault.
	StepRunner func(ctx context.Context, node deploy.NodeAddress, fn func(context.Context) error) error

	mu    sync.Mutex
	nodes map[deploy.NodeAddress]*sync.Mutex
}

// Report aggregates the per-node results of one cluster-wide cycle,
// ordered by node address.
type Report struct {
	Results []Result
}

// Converged reports whether every node finished the cycle converged.
func (r Report) Converged() bool {
	for _, result := range r.Results {
		if !result.Converged() {
			return false
		}
	}
	return true
}

// Unreachable returns the addresses of nodes that could not be observed.
func (r Report) Unreachable() []deploy.NodeAddress {
	var nodes []deploy.NodeAddress
	for _, result := range r.Results {
		if result.Phase == PhaseUnreachable {
			nodes = append(nodes, result.Node)
		}
	}
	return nodes
}

func (c *Coordinator) nodeLock(node deploy.NodeAddress) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodes == nil {
		c.nodes = make(map[deploy.NodeAddress]*sync.Mutex)
	}
	lock, ok := c.nodes[node]
	if !ok {
		lock = &sync.Mutex{}
		c.nodes[node] = lock
	}
	return lock
}

// ConvergeNode runs one cycle against a single node, queuing behind any
// cycle already running there.
func (c *Coordinator) ConvergeNode(ctx context.Context, node deploy.NodeAddress) Result {
	check.Assert(c.Agent != nil, "Coordinator.ConvergeNode: Agent must not be nil")

	lock := c.nodeLock(node)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{Node: node, Phase: PhaseUnreachable, Err: err}
	}
	return c.Agent.Converge(ctx, node)
}

// Deploy converges every node in the model concurrently. One slow or
// unreachable node never blocks the others; its result simply records the
// failure. The report lists results in node-address order.
func (c *Coordinator) Deploy(ctx context.Context) Report {
	check.Assert(c.Agent != nil, "Coordinator.Deploy: Agent must not be nil")
	check.Assert(c.Agent.Model != nil, "Coordinator.Deploy: Agent.Model must not be nil")

	nodes := c.Agent.Model.Nodes()
	results := make([]Result, len(nodes))

	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.runCycle(ctx, node)
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Node < results[j].Node })
	return Report{Results: results}
}

func (c *Coordinator) runCycle(ctx context.Context, node deploy.NodeAddress) Result {
	if c.StepRunner == nil {
		return c.ConvergeNode(ctx, node)
	}
	var result Result
	_ = c.StepRunner(ctx, node, func(ctx context.Context) error {
		result = c.ConvergeNode(ctx, node)
		return result.Fault()
	})
	return result
}
