package tasks

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleRunsAfterDelay(t *testing.T) {
	d := &Debouncer{Delay: 10 * time.Millisecond}
	var ran atomic.Bool
	d.Schedule(func() { ran.Store(true) })

	deadline := time.Now().Add(time.Second)
	for !ran.Load() {
		if time.Now().After(deadline) {
			t.Fatal("scheduled func never ran")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRescheduleSupersedes(t *testing.T) {
	d := &Debouncer{Delay: 20 * time.Millisecond}
	var first, second atomic.Bool
	d.Schedule(func() { first.Store(true) })
	d.Schedule(func() { second.Store(true) })

	time.Sleep(100 * time.Millisecond)
	if first.Load() {
		t.Fatal("superseded func must not run")
	}
	if !second.Load() {
		t.Fatal("latest func must run")
	}
}

func TestCancelPreventsRun(t *testing.T) {
	d := &Debouncer{Delay: 20 * time.Millisecond}
	var ran atomic.Bool
	d.Schedule(func() { ran.Store(true) })
	d.Cancel()

	time.Sleep(100 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled func must not run")
	}
}
