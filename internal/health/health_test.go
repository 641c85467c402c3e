package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/tapedeck/internal/health"
)

func TestMonitor_ReportsProgressAsOK(t *testing.T) {
	t.Parallel()

	var ticks uint64
	m := health.NewMonitor(func() health.Report {
		ticks += 10
		return health.Report{Ticks: ticks}
	}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	r, ok := <-m.C()
	if !ok {
		t.Fatal("report channel closed early")
	}
	if r.Status != health.StatusOK {
		t.Errorf("Status = %q, want ok", r.Status)
	}
	if r.Time.IsZero() {
		t.Error("report time was not filled in")
	}
}

func TestMonitor_DetectsStall(t *testing.T) {
	t.Parallel()

	m := health.NewMonitor(func() health.Report {
		return health.Report{Ticks: 42}
	}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// First sample has no baseline; the second sees an unchanged counter.
	<-m.C()
	deadline := time.After(time.Second)
	for {
		select {
		case r := <-m.C():
			if r.Status == health.StatusStalled {
				return
			}
		case <-deadline:
			t.Fatal("monitor never reported a stall")
		}
	}
}

func TestMonitor_DetectsDegradation(t *testing.T) {
	t.Parallel()

	var ticks, errs uint64
	m := health.NewMonitor(func() health.Report {
		ticks += 10
		errs++
		return health.Report{Ticks: ticks, SourceErrors: errs}
	}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// First sample is the baseline; from the second on the error counter
	// keeps climbing.
	<-m.C()
	deadline := time.After(time.Second)
	for {
		select {
		case r := <-m.C():
			if r.Status == health.StatusDegraded {
				return
			}
		case <-deadline:
			t.Fatal("monitor never reported degradation")
		}
	}
}

func TestMonitor_MutedSourceIsDegraded(t *testing.T) {
	t.Parallel()

	var ticks uint64
	m := health.NewMonitor(func() health.Report {
		ticks += 10
		return health.Report{Ticks: ticks, MutedSources: []string{"mic"}}
	}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	r := <-m.C()
	if r.Status != health.StatusDegraded {
		t.Errorf("Status = %q, want degraded for muted source", r.Status)
	}
	if len(r.MutedSources) != 1 || r.MutedSources[0] != "mic" {
		t.Errorf("MutedSources = %v, want [mic]", r.MutedSources)
	}
}

func TestMonitor_SlowConsumerGetsFreshReport(t *testing.T) {
	t.Parallel()

	var ticks uint64
	m := health.NewMonitor(func() health.Report {
		ticks += 10
		return health.Report{Ticks: ticks}
	}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Let several samples pile up; only the freshest survives.
	time.Sleep(50 * time.Millisecond)
	r := <-m.C()
	if r.Ticks < 20 {
		t.Errorf("Ticks = %d, want a later sample than the first", r.Ticks)
	}
}

func TestMonitor_ClosesChannelOnCancel(t *testing.T) {
	t.Parallel()

	m := health.NewMonitor(func() health.Report { return health.Report{} }, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	for {
		if _, ok := <-m.C(); !ok {
			return
		}
	}
}
