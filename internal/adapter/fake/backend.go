package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"drift/internal/converge"
	"drift/internal/deploy"
)

var _ converge.ContainerBackend = (*Backend)(nil)

// Backend is an in-memory implementation of converge.ContainerBackend. Each
// node holds its own unit map; unreachable nodes fail every call the way a
// dead engine endpoint would.
type Backend struct {
	CallRecorder
	mu          sync.Mutex
	units       map[deploy.NodeAddress]map[string]deploy.ObservedUnit
	unreachable map[deploy.NodeAddress]bool

	ListErr  func(ctx context.Context, node deploy.NodeAddress) error
	StartErr func(ctx context.Context, node deploy.NodeAddress, app deploy.Application) error
	StopErr  func(ctx context.Context, node deploy.NodeAddress, containerName string) error
}

// NewBackend creates an empty Backend with every node reachable.
func NewBackend() *Backend {
	return &Backend{
		units:       make(map[deploy.NodeAddress]map[string]deploy.ObservedUnit),
		unreachable: make(map[deploy.NodeAddress]bool),
	}
}

func (b *Backend) List(ctx context.Context, node deploy.NodeAddress) ([]deploy.ObservedUnit, error) {
	b.record("List", node)
	if b.ListErr != nil {
		if err := b.ListErr(ctx, node); err != nil {
			return nil, err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unreachable[node] {
		return nil, &converge.UnreachableError{Node: node, Err: fmt.Errorf("connection refused")}
	}
	out := make([]deploy.ObservedUnit, 0, len(b.units[node]))
	for _, unit := range b.units[node] {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContainerName < out[j].ContainerName })
	return out, nil
}

func (b *Backend) Start(ctx context.Context, node deploy.NodeAddress, app deploy.Application) error {
	b.record("Start", node, app)
	if b.StartErr != nil {
		if err := b.StartErr(ctx, node, app); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unreachable[node] {
		return &converge.UnreachableError{Node: node, Err: fmt.Errorf("connection refused")}
	}
	name := deploy.ContainerName(app.Name)
	if _, exists := b.units[node][name]; exists {
		return fmt.Errorf("container %q already exists", name)
	}
	if b.units[node] == nil {
		b.units[node] = make(map[string]deploy.ObservedUnit)
	}
	b.units[node][name] = deploy.ObservedUnit{
		Name:            app.Name,
		ContainerName:   name,
		ActivationState: deploy.ActivationActive,
		Image:           app.Image,
		Ports:           app.Ports,
	}
	return nil
}

func (b *Backend) Stop(ctx context.Context, node deploy.NodeAddress, containerName string) error {
	b.record("Stop", node, containerName)
	if b.StopErr != nil {
		if err := b.StopErr(ctx, node, containerName); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unreachable[node] {
		return &converge.UnreachableError{Node: node, Err: fmt.Errorf("connection refused")}
	}
	if _, ok := b.units[node][containerName]; !ok {
		return fmt.Errorf("container %q not found", containerName)
	}
	delete(b.units[node], containerName)
	return nil
}

// SeedUnit places a unit on a node without recording a call, for fixture
// setup.
func (b *Backend) SeedUnit(node deploy.NodeAddress, unit deploy.ObservedUnit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.units[node] == nil {
		b.units[node] = make(map[string]deploy.ObservedUnit)
	}
	b.units[node][unit.ContainerName] = unit
}

// SetUnreachable controls whether calls against a node fail.
func (b *Backend) SetUnreachable(node deploy.NodeAddress, unreachable bool) {
	b.mu.Lock()
	b.unreachable[node] = unreachable
	b.mu.Unlock()
}

// Units returns the node's units sorted by container name.
func (b *Backend) Units(node deploy.NodeAddress) []deploy.ObservedUnit {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]deploy.ObservedUnit, 0, len(b.units[node]))
	for _, unit := range b.units[node] {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContainerName < out[j].ContainerName })
	return out
}
