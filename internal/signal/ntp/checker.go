package ntp

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"drift/internal/check"
	"drift/internal/converge"
)

const (
	defaultPool     = "pool.ntp.org"
	defaultInterval = 60 * time.Second
	// defaultThreshold is 500ms: cycle history timestamps and verification
	// deadlines compare wall clocks across machines, so skew beyond this
	// makes the records misleading.
	defaultThreshold = 500 * time.Millisecond
)

type Phase uint8

const (
	Unchecked Phase = iota + 1
	Healthy
	UnhealthyOffset
	Error
)

func (p Phase) String() string {
	switch p {
	case Unchecked:
		return "unchecked"
	case Healthy:
		return "healthy"
	case UnhealthyOffset:
		return "unhealthy_offset"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case Unchecked:
		ok = to == Healthy || to == UnhealthyOffset || to == Error
	case Healthy:
		ok = to == UnhealthyOffset || to == Error
	case UnhealthyOffset:
		ok = to == Healthy || to == Error
	case Error:
		ok = to == Healthy || to == UnhealthyOffset || to == Error
	}
	check.Assertf(ok, "ntp transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

type Status struct {
	Offset    time.Duration
	Phase     Phase
	Error     string
	CheckedAt time.Time
}

// Checker samples the local clock offset against an NTP pool so the CLI can
// warn before trusting cross-node timestamps.
type Checker struct {
	mu        sync.RWMutex
	status    Status
	pool      string
	interval  time.Duration
	threshold time.Duration
	clock     converge.Clock

	CheckFunc func() Status
}

func NewChecker(clock converge.Clock) *Checker {
	check.Assert(clock != nil, "ntp.NewChecker: clock must not be nil")
	return &Checker{
		pool:      defaultPool,
		interval:  defaultInterval,
		threshold: defaultThreshold,
		status: Status{
			Phase: Unchecked,
		},
		clock: clock,
	}
}

func (n *Checker) Run(ctx context.Context) {
	n.check()

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.check()
		}
	}
}

// CheckOnce runs a single probe and returns the resulting status.
func (n *Checker) CheckOnce() Status {
	n.check()
	return n.Status()
}

func (n *Checker) check() {
	if n.CheckFunc != nil {
		n.mu.Lock()
		n.status = n.CheckFunc()
		n.mu.Unlock()
		return
	}

	resp, err := ntp.Query(n.pool)

	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	if err != nil {
		n.status = Status{Error: err.Error(), Phase: Error, CheckedAt: now}
		return
	}

	phase := UnhealthyOffset
	if resp.ClockOffset.Abs() < n.threshold {
		phase = Healthy
	}
	n.status = Status{Offset: resp.ClockOffset, Phase: phase, CheckedAt: now}
}

func (n *Checker) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}
