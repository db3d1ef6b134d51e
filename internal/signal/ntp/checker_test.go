package ntp

import (
	"context"
	"testing"
	"time"

	"drift/internal/adapter/fake"
)

func TestCheckerStatusInitial(t *testing.T) {
	clk := fake.NewClock(time.Now())
	nc := NewChecker(clk)

	s := nc.Status()
	if s.Phase != Unchecked {
		t.Errorf("initial Phase: got %s, want unchecked", s.Phase)
	}
	if s.Offset != 0 {
		t.Errorf("initial Offset: got %v, want 0", s.Offset)
	}
	if s.Error != "" {
		t.Errorf("initial Error: got %q, want empty", s.Error)
	}
	if !s.CheckedAt.IsZero() {
		t.Errorf("initial CheckedAt: got %v, want zero", s.CheckedAt)
	}
}

func TestCheckerHealthy(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := fake.NewClock(t0)
	nc := NewChecker(clk)

	smallOffset := 10 * time.Millisecond
	nc.CheckFunc = func() Status {
		return Status{
			Offset:    smallOffset,
			Phase:     Healthy,
			CheckedAt: clk.Now(),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately so Run exits after the first check
	nc.Run(ctx)

	s := nc.Status()
	if s.Phase != Healthy {
		t.Errorf("Phase: got %s, want healthy for small offset", s.Phase)
	}
	if s.Offset != smallOffset {
		t.Errorf("Offset: got %v, want %v", s.Offset, smallOffset)
	}
	if s.CheckedAt != t0 {
		t.Errorf("CheckedAt: got %v, want %v", s.CheckedAt, t0)
	}
}

func TestCheckerUnhealthyOffset(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := fake.NewClock(t0)
	nc := NewChecker(clk)

	largeOffset := 2 * time.Second
	nc.CheckFunc = func() Status {
		return Status{
			Offset:    largeOffset,
			Phase:     UnhealthyOffset,
			CheckedAt: clk.Now(),
		}
	}

	s := nc.CheckOnce()
	if s.Phase != UnhealthyOffset {
		t.Errorf("Phase: got %s, want unhealthy_offset for large offset", s.Phase)
	}
	if s.Offset != largeOffset {
		t.Errorf("Offset: got %v, want %v", s.Offset, largeOffset)
	}
}

func TestPhaseTransition(t *testing.T) {
	if p := Unchecked.Transition(Healthy); p != Healthy {
		t.Errorf("unchecked -> healthy: got %s", p)
	}
	if p := Healthy.Transition(UnhealthyOffset); p != UnhealthyOffset {
		t.Errorf("healthy -> unhealthy_offset: got %s", p)
	}
	if p := Error.Transition(Healthy); p != Healthy {
		t.Errorf("error -> healthy: got %s", p)
	}
}
