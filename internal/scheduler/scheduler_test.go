package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/MrWong99/phantomlink/internal/scheduler"
	"github.com/MrWong99/phantomlink/internal/scheduler/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReal_AfterFuncFires(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	scheduler.New().AfterFunc(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AfterFunc callback did not run")
	}
}

func TestReal_EveryStopsGoroutine(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	tick := make(chan struct{}, 8)
	timer := scheduler.New().Every(2*time.Millisecond, func() {
		n.Add(1)
		select {
		case tick <- struct{}{}:
		default:
		}
	})

	for range 2 {
		select {
		case <-tick:
		case <-time.After(2 * time.Second):
			t.Fatal("Every callback did not run")
		}
	}
	if !timer.Stop() {
		t.Error("first Stop should report a pending timer")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}
}

func TestGroup_StopAllCancelsEverything(t *testing.T) {
	t.Parallel()
	clock := mock.New()
	g := scheduler.NewGroup(clock)

	var fired atomic.Int32
	g.AfterFunc(time.Second, func() { fired.Add(1) })
	g.Every(100*time.Millisecond, func() { fired.Add(1) })
	if got := g.Len(); got != 2 {
		t.Fatalf("Len: got %d, want 2", got)
	}

	g.StopAll()
	clock.Advance(10 * time.Second)

	if got := fired.Load(); got != 0 {
		t.Errorf("callbacks fired after StopAll: %d", got)
	}
	if got := clock.Pending(); got != 0 {
		t.Errorf("clock still holds %d timers", got)
	}
}

func TestGroup_ClosedGroupIsInert(t *testing.T) {
	t.Parallel()
	clock := mock.New()
	g := scheduler.NewGroup(clock)
	g.StopAll()

	ran := false
	timer := g.AfterFunc(time.Millisecond, func() { ran = true })
	clock.Advance(time.Second)
	if ran {
		t.Error("callback scheduled on a closed group ran")
	}
	if timer.Stop() {
		t.Error("inert timer Stop should report false")
	}
}

func TestGroup_FiredOneShotLeavesGroup(t *testing.T) {
	t.Parallel()
	clock := mock.New()
	g := scheduler.NewGroup(clock)

	ran := 0
	g.AfterFunc(time.Second, func() { ran++ })
	clock.Advance(time.Second)

	if ran != 1 {
		t.Fatalf("ran: got %d, want 1", ran)
	}
	if got := g.Len(); got != 0 {
		t.Errorf("Len after fire: got %d, want 0", got)
	}
}

func TestGroup_MemberStop(t *testing.T) {
	t.Parallel()
	clock := mock.New()
	g := scheduler.NewGroup(clock)

	ticks := 0
	timer := g.Every(100*time.Millisecond, func() { ticks++ })
	clock.Advance(250 * time.Millisecond)
	if !timer.Stop() {
		t.Error("Stop should report pending")
	}
	clock.Advance(time.Second)

	if ticks != 2 {
		t.Errorf("ticks: got %d, want 2", ticks)
	}
	if g.Len() != 0 {
		t.Errorf("Len: got %d, want 0", g.Len())
	}
}
