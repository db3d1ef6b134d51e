package converge_test

import (
	"context"
	"testing"
	"time"

	"drift/internal/adapter/fake"
	"drift/internal/converge"
	"drift/internal/deploy"
)

// TestMoveApplicationBetweenNodes drives two cluster-wide cycles against the
// same backend: deploy mongodb to node1, then redeclare it on node2. The
// second deploy must stop the node1 container and start a fresh one on node2.
func TestMoveApplicationBetweenNodes(t *testing.T) {
	node1 := deploy.NodeAddress("172.16.255.250")
	node2 := deploy.NodeAddress("172.16.255.251")
	backend := fake.NewBackend()

	deployTo := func(target deploy.NodeAddress) *converge.Coordinator {
		nodes := map[deploy.NodeAddress][]string{node1: {}, node2: {}}
		nodes[target] = []string{"mongodb-example"}
		return &converge.Coordinator{Agent: &converge.Agent{
			Backend: backend,
			Model:   testModel(t, nodes, map[string]string{"mongodb-example": "clusterhq/mongodb"}),
		}}
	}

	first := deployTo(node1)
	if report := first.Deploy(context.Background()); !report.Converged() {
		t.Fatalf("initial deploy report = %+v, want converged", report)
	}
	if units := backend.Units(node1); len(units) != 1 {
		t.Fatalf("node1 units after initial deploy = %+v, want one", units)
	}

	second := deployTo(node2)
	if report := second.Deploy(context.Background()); !report.Converged() {
		t.Fatalf("move deploy report = %+v, want converged", report)
	}
	if units := backend.Units(node1); len(units) != 0 {
		t.Fatalf("node1 units after move = %+v, want none", units)
	}
	units := backend.Units(node2)
	if len(units) != 1 || units[0].ContainerName != deploy.ContainerName("mongodb-example") {
		t.Fatalf("node2 units after move = %+v, want mongodb-example", units)
	}

	expected := map[deploy.NodeAddress][]deploy.ObservedUnit{
		node1: nil,
		node2: {activeUnit(t, "mongodb-example", "clusterhq/mongodb")},
	}
	if err := second.AssertExpectedDeployment(context.Background(), expected, time.Second); err != nil {
		t.Fatalf("AssertExpectedDeployment() error = %v", err)
	}
}

// TestConfigurationErrorPrecedesBackendCalls proves malformed desired state
// never reaches a node: validation fails before any engine API call.
func TestConfigurationErrorPrecedesBackendCalls(t *testing.T) {
	backend := fake.NewBackend()

	_, err := deploy.NewModel(
		deploy.DesiredConfiguration{
			Version: deploy.SchemaVersion,
			Nodes:   map[deploy.NodeAddress][]string{"10.0.0.1": {"ghost"}},
		},
		deploy.ApplicationConfiguration{Version: deploy.SchemaVersion},
	)
	if err == nil {
		t.Fatal("NewModel expected error for unknown application")
	}
	if calls := backend.Calls(""); len(calls) != 0 {
		t.Fatalf("backend calls = %+v, want none for rejected configuration", calls)
	}
}
