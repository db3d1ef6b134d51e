package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Document shapes as they appear on disk. YAML is a superset of JSON, so the
// JSON form of both documents parses through the same path. Unknown fields
// are rejected at this boundary rather than surfacing later as misbehavior.

type rawDeploymentDoc struct {
	Version int                 `yaml:"version"`
	Nodes   map[string][]string `yaml:"nodes"`
}

type rawApplicationDoc struct {
	Version      int                       `yaml:"version"`
	Applications map[string]rawApplication `yaml:"applications"`
}

type rawApplication struct {
	Image       string            `yaml:"image"`
	Ports       []PortMapping     `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// LoadDeployment parses a deployment document.
func LoadDeployment(data []byte) (DesiredConfiguration, error) {
	var raw rawDeploymentDoc
	if err := decodeStrict(data, &raw); err != nil {
		return DesiredConfiguration{}, configErrorf("parse deployment document: %v", err)
	}

	out := DesiredConfiguration{
		Version: raw.Version,
		Nodes:   make(map[NodeAddress][]string, len(raw.Nodes)),
	}
	for address, names := range raw.Nodes {
		if address == "" {
			return DesiredConfiguration{}, configErrorf("deployment document has a node with an empty address")
		}
		out.Nodes[NodeAddress(address)] = names
	}
	return out, nil
}

// LoadApplications parses an application document. A document whose top
// level declares "services" is treated as a Docker Compose file and routed
// through the compose loader instead.
func LoadApplications(ctx context.Context, data []byte) (ApplicationConfiguration, error) {
	if isComposeDocument(data) {
		return loadComposeApplications(ctx, data)
	}

	var raw rawApplicationDoc
	if err := decodeStrict(data, &raw); err != nil {
		return ApplicationConfiguration{}, configErrorf("parse application document: %v", err)
	}

	out := ApplicationConfiguration{
		Version:      raw.Version,
		Applications: make(map[string]Application, len(raw.Applications)),
	}
	for name, app := range raw.Applications {
		if name == "" {
			return ApplicationConfiguration{}, configErrorf("application document has an application with an empty name")
		}
		image, err := ParseImageReference(app.Image)
		if err != nil {
			return ApplicationConfiguration{}, configErrorf("application %q: %v", name, err)
		}
		out.Applications[name] = Application{
			Name:        name,
			Image:       image,
			Ports:       canonicalPorts(app.Ports),
			Environment: app.Environment,
		}
	}
	return out, nil
}

func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document")
		}
		return err
	}
	return nil
}

// isComposeDocument sniffs for a top-level "services" mapping.
func isComposeDocument(data []byte) bool {
	var probe struct {
		Services map[string]any `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	return len(probe.Services) > 0
}
