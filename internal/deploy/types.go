package deploy

import (
	"fmt"
	"sort"
)

// SchemaVersion is the configuration document version this engine accepts.
const SchemaVersion = 1

// NodeAddress identifies one node of the cluster. Identity is the address
// string itself.
type NodeAddress string

// PortMapping routes an external (host) port to an internal (container) port.
type PortMapping struct {
	Internal uint16 `json:"internal" yaml:"internal"`
	External uint16 `json:"external" yaml:"external"`
}

// Application is one desired containerized workload. Identity is the name;
// the value is immutable once the model is built for a cycle.
type Application struct {
	Name        string            `json:"name"`
	Image       ImageReference    `json:"image"`
	Ports       []PortMapping     `json:"ports,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// ActivationState is the backend's report of whether a unit is running.
type ActivationState string

const (
	ActivationActive   ActivationState = "active"
	ActivationInactive ActivationState = "inactive"
)

// ObservedUnit is one container as reported by the backend for a node.
// A fresh set is produced on every observation; units are never mutated.
type ObservedUnit struct {
	Name            string          `json:"name"`
	ContainerName   string          `json:"container_name"`
	ActivationState ActivationState `json:"activation_state"`
	Image           ImageReference  `json:"image"`
	Ports           []PortMapping   `json:"ports,omitempty"`
}

type ChangeKind int

const (
	Start ChangeKind = iota + 1
	Stop
)

func (k ChangeKind) String() string {
	switch k {
	case Start:
		return "start"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Change is one corrective operation for a node. Start carries the desired
// application, Stop the observed unit being removed. Changes are ephemeral:
// computed and consumed within a single convergence cycle.
type Change struct {
	Kind          ChangeKind
	ContainerName string
	Application   Application  // set for Start
	Unit          ObservedUnit // set for Stop
	Reason        string
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s (%s)", c.Kind, c.ContainerName, c.Reason)
}

// canonicalPorts collapses a port mapping list to set semantics: sorted,
// duplicates dropped, empty becomes nil.
func canonicalPorts(ports []PortMapping) []PortMapping {
	if len(ports) == 0 {
		return nil
	}
	out := make([]PortMapping, len(ports))
	copy(out, ports)
	sort.Slice(out, func(i, j int) bool {
		if out[i].External != out[j].External {
			return out[i].External < out[j].External
		}
		return out[i].Internal < out[j].Internal
	})
	dedup := out[:1]
	for _, p := range out[1:] {
		if p != dedup[len(dedup)-1] {
			dedup = append(dedup, p)
		}
	}
	return dedup
}

// PortsEqual is set equality over canonicalized port mappings.
func PortsEqual(a, b []PortMapping) bool {
	a = canonicalPorts(a)
	b = canonicalPorts(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
