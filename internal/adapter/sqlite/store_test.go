package sqlite

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"drift/internal/converge"
	"drift/internal/deploy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testResult(node deploy.NodeAddress, phase converge.CyclePhase) converge.Result {
	now := time.Now()
	return converge.Result{
		Node:             node,
		Phase:            phase,
		Started:          now,
		Finished:         now.Add(time.Second),
		ChangesAttempted: 2,
		ChangesSucceeded: 1,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	result := testResult("10.0.0.1", converge.PhasePartial)
	result.Failures = []*converge.ApplyError{{
		Node:   "10.0.0.1",
		Change: deploy.Change{Kind: deploy.Start, ContainerName: "drift--web", Reason: "new application"},
		Err:    fmt.Errorf("image pull failed"),
	}}
	if err := store.RecordCycle(result); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	records, err := store.ListCycles("", 10)
	if err != nil {
		t.Fatalf("ListCycles() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count = %d, want 1", len(records))
	}
	got := records[0]
	if got.Node != "10.0.0.1" || got.Phase != "partial" {
		t.Fatalf("record = %+v, want partial for 10.0.0.1", got)
	}
	if got.ChangesAttempted != 2 || got.ChangesSucceeded != 1 {
		t.Fatalf("changes = %d/%d, want 1/2", got.ChangesSucceeded, got.ChangesAttempted)
	}
	if len(got.Failures) != 1 {
		t.Fatalf("failures = %v, want one", got.Failures)
	}
}

func TestStoreListFiltersAndOrders(t *testing.T) {
	store := openTestStore(t)

	if err := store.RecordCycle(testResult("10.0.0.1", converge.PhaseConverged)); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}
	if err := store.RecordCycle(testResult("10.0.0.2", converge.PhaseUnreachable)); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}
	if err := store.RecordCycle(testResult("10.0.0.1", converge.PhasePartial)); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	records, err := store.ListCycles("10.0.0.1", 10)
	if err != nil {
		t.Fatalf("ListCycles() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	if records[0].Phase != "partial" || records[1].Phase != "converged" {
		t.Fatalf("order = [%s %s], want newest first", records[0].Phase, records[1].Phase)
	}
}

func TestStoreLastCycle(t *testing.T) {
	store := openTestStore(t)

	if _, ok, err := store.LastCycle("10.0.0.1"); err != nil || ok {
		t.Fatalf("LastCycle(empty) = ok %v err %v, want absent", ok, err)
	}

	report := converge.Report{Results: []converge.Result{
		testResult("10.0.0.1", converge.PhaseConverged),
		testResult("10.0.0.2", converge.PhasePartial),
	}}
	if err := store.RecordReport(report); err != nil {
		t.Fatalf("RecordReport() error = %v", err)
	}

	record, ok, err := store.LastCycle("10.0.0.2")
	if err != nil || !ok {
		t.Fatalf("LastCycle() = ok %v err %v, want present", ok, err)
	}
	if record.Phase != "partial" {
		t.Fatalf("phase = %s, want partial", record.Phase)
	}
}
