package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"drift/internal/converge"
	"drift/internal/deploy"
)

var _ converge.ContainerBackend = (*Backend)(nil)

// defaultEnginePort is the plain-TCP Docker Engine API port.
const defaultEnginePort = 2375

// Backend implements converge.ContainerBackend against the Docker Engine
// API of each node. Clients are created lazily per node and reused across
// cycles.
type Backend struct {
	mu      sync.Mutex
	clients map[deploy.NodeAddress]*client.Client
}

// NewBackend creates a Backend with an empty client cache.
func NewBackend() *Backend {
	return &Backend{clients: make(map[deploy.NodeAddress]*client.Client)}
}

// engineHost turns a node address into a Docker client host URL. Addresses
// that already carry a scheme are used verbatim.
func engineHost(node deploy.NodeAddress) string {
	addr := string(node)
	if strings.Contains(addr, "://") {
		return addr
	}
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, defaultEnginePort)
	}
	return "tcp://" + addr
}

func (b *Backend) clientFor(node deploy.NodeAddress) (*client.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cli, ok := b.clients[node]; ok {
		return cli, nil
	}
	cli, err := client.NewClientWithOpts(
		client.WithHost(engineHost(node)),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client for %s: %w", node, err)
	}
	b.clients[node] = cli
	return cli, nil
}

func (b *Backend) List(ctx context.Context, node deploy.NodeAddress) ([]deploy.ObservedUnit, error) {
	cli, err := b.clientFor(node)
	if err != nil {
		return nil, err
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		if client.IsErrConnectionFailed(err) {
			return nil, &converge.UnreachableError{Node: node, Err: err}
		}
		return nil, fmt.Errorf("list containers on %s: %w", node, err)
	}

	units := make([]deploy.ObservedUnit, 0, len(containers))
	for _, c := range containers {
		name := primaryName(c.Names)
		application, managed := deploy.ApplicationName(name)
		if !managed {
			continue
		}

		ref, err := deploy.ParseImageReference(c.Image)
		if err != nil {
			ref = deploy.ImageReference{Repository: c.Image}
		}
		state := deploy.ActivationInactive
		if c.State == "running" {
			state = deploy.ActivationActive
		}

		units = append(units, deploy.ObservedUnit{
			Name:            application,
			ContainerName:   name,
			ActivationState: state,
			Image:           ref,
			Ports:           observedPorts(c.Ports),
		})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ContainerName < units[j].ContainerName })
	return units, nil
}

func (b *Backend) Start(ctx context.Context, node deploy.NodeAddress, app deploy.Application) error {
	cli, err := b.clientFor(node)
	if err != nil {
		return err
	}
	name := deploy.ContainerName(app.Name)
	img := app.Image.Normalize().String()

	pull, err := cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return b.applyErr(node, name, "start", fmt.Errorf("pull image %q: %w", img, err))
	}
	_, _ = io.Copy(io.Discard, pull)
	_ = pull.Close()

	cc := &container.Config{
		Image: img,
		Env:   environmentList(app.Environment),
	}
	hc := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyAlways},
	}
	if len(app.Ports) > 0 {
		exposed := make(nat.PortSet, len(app.Ports))
		bindings := make(nat.PortMap, len(app.Ports))
		for _, p := range app.Ports {
			port := nat.Port(fmt.Sprintf("%d/tcp", p.Internal))
			exposed[port] = struct{}{}
			bindings[port] = []nat.PortBinding{{HostPort: fmt.Sprintf("%d", p.External)}}
		}
		cc.ExposedPorts = exposed
		hc.PortBindings = bindings
	}

	if _, err := cli.ContainerCreate(ctx, cc, hc, nil, nil, name); err != nil {
		return b.applyErr(node, name, "start", fmt.Errorf("create container %q: %w", name, err))
	}
	if err := cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return b.applyErr(node, name, "start", fmt.Errorf("start container %q: %w", name, err))
	}
	return nil
}

func (b *Backend) Stop(ctx context.Context, node deploy.NodeAddress, containerName string) error {
	cli, err := b.clientFor(node)
	if err != nil {
		return err
	}

	if err := cli.ContainerStop(ctx, containerName, container.StopOptions{}); err != nil && !errdefs.IsNotFound(err) {
		return b.applyErr(node, containerName, "stop", fmt.Errorf("stop container %q: %w", containerName, err))
	}
	if err := cli.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return b.applyErr(node, containerName, "stop", fmt.Errorf("remove container %q: %w", containerName, err))
	}
	return nil
}

// Close releases every cached client.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for node, cli := range b.clients {
		if err := cli.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.clients, node)
	}
	return firstErr
}

func (b *Backend) applyErr(node deploy.NodeAddress, containerName, op string, err error) error {
	if client.IsErrConnectionFailed(err) {
		return &converge.UnreachableError{Node: node, Err: err}
	}
	return &converge.ApplyFailure{Node: node, ContainerName: containerName, Op: op, Err: err}
}

func primaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

// observedPorts keeps published TCP mappings only; exposure without a host
// binding is not part of the desired-state vocabulary.
func observedPorts(ports []container.Port) []deploy.PortMapping {
	var out []deploy.PortMapping
	for _, p := range ports {
		if p.PublicPort == 0 {
			continue
		}
		if p.Type != "" && !strings.EqualFold(p.Type, "tcp") {
			continue
		}
		out = append(out, deploy.PortMapping{Internal: p.PrivatePort, External: p.PublicPort})
	}
	return out
}

// environmentList renders an environment map as sorted KEY=value pairs.
func environmentList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}
