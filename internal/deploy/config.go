package deploy

import (
	"fmt"
	"sort"
)

// ConfigurationError reports malformed or inconsistent desired state. It is
// fatal: surfaced before any node is contacted, never retried.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "configuration: " + e.Message
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// DesiredConfiguration is the deployment document: which application names
// run on which nodes.
type DesiredConfiguration struct {
	Version int                      `yaml:"version"`
	Nodes   map[NodeAddress][]string `yaml:"nodes"`
}

// ApplicationConfiguration is the application document: what each named
// application looks like.
type ApplicationConfiguration struct {
	Version      int                    `yaml:"version"`
	Applications map[string]Application `yaml:"applications"`
}

// Model is the validated, read-only desired state for one convergence cycle.
// It is safe to share across concurrent per-node agents; nothing mutates it
// after construction.
type Model struct {
	nodes map[NodeAddress][]Application
}

// NewModel validates a configuration pair and resolves node assignments.
// Validation failures are *ConfigurationError:
//   - either document's version differs from SchemaVersion
//   - a node references an application name the application document lacks
//   - an application name appears under more than one node
func NewModel(desired DesiredConfiguration, apps ApplicationConfiguration) (*Model, error) {
	if desired.Version != SchemaVersion {
		return nil, configErrorf("deployment document version %d, engine supports %d", desired.Version, SchemaVersion)
	}
	if apps.Version != SchemaVersion {
		return nil, configErrorf("application document version %d, engine supports %d", apps.Version, SchemaVersion)
	}

	ownerByApp := make(map[string]NodeAddress)
	nodes := make(map[NodeAddress][]Application, len(desired.Nodes))
	for address, names := range desired.Nodes {
		resolved := make([]Application, 0, len(names))
		for _, name := range names {
			app, ok := apps.Applications[name]
			if !ok {
				return nil, configErrorf("node %q references unknown application %q", address, name)
			}
			if owner, dup := ownerByApp[name]; dup {
				return nil, configErrorf("application %q scheduled on both %q and %q", name, owner, address)
			}
			ownerByApp[name] = address

			app.Name = name
			app.Ports = canonicalPorts(app.Ports)
			resolved = append(resolved, app)
		}
		sort.Slice(resolved, func(i, j int) bool { return resolved[i].Name < resolved[j].Name })
		nodes[address] = resolved
	}

	return &Model{nodes: nodes}, nil
}

// ApplicationsFor returns the node's resolved applications. A node declared
// with no applications yields an empty slice; an undeclared node yields nil.
func (m *Model) ApplicationsFor(node NodeAddress) []Application {
	apps := m.nodes[node]
	out := make([]Application, len(apps))
	copy(out, apps)
	return out
}

// Nodes returns every declared node address, sorted.
func (m *Model) Nodes() []NodeAddress {
	out := make([]NodeAddress, 0, len(m.nodes))
	for address := range m.nodes {
		out = append(out, address)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
