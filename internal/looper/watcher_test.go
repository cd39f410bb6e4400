package looper_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"example.com/nvmesim/internal/looper"
)

func TestWatcherStartRunsAtLeastOnce(t *testing.T) {
	var calls int32
	w := looper.New(func() { atomic.AddInt32(&calls, 1) }, time.Millisecond)
	w.Start()
	defer w.End()

	if atomic.LoadInt32(&calls) == 0 {
		t.Error("Start returned before the first iteration ran")
	}
}

func TestWatcherWaitForFlipAdvances(t *testing.T) {
	var calls int32
	w := looper.New(func() { atomic.AddInt32(&calls, 1) }, time.Millisecond)
	w.Start()
	defer w.End()

	before := atomic.LoadInt32(&calls)
	w.WaitForFlip()
	after := atomic.LoadInt32(&calls)

	if after <= before {
		t.Errorf("WaitForFlip did not observe a new iteration: before=%d after=%d", before, after)
	}
}

func TestWatcherEndStopsIterations(t *testing.T) {
	var calls int32
	w := looper.New(func() { atomic.AddInt32(&calls, 1) }, time.Millisecond)
	w.Start()
	w.End()

	if w.IsRunning() {
		t.Fatal("IsRunning() true after End")
	}

	stopped := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&calls) != stopped {
		t.Error("action kept running after End")
	}
}

func TestWatcherEndIsIdempotent(t *testing.T) {
	w := looper.New(func() {}, time.Millisecond)
	w.Start()
	w.End()
	w.End() // must not block or panic
}

func TestWatcherWaitForFlipFalseWhenNotRunning(t *testing.T) {
	w := looper.New(func() {}, time.Millisecond)
	if w.WaitForFlip() {
		t.Error("WaitForFlip() = true for a Watcher that was never started")
	}
}

func TestWatcherConcurrentWaitForFlip(t *testing.T) {
	var calls int32
	w := looper.New(func() { atomic.AddInt32(&calls, 1) }, time.Millisecond)
	w.Start()
	defer w.End()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.WaitForFlip()
		}()
	}
	wg.Wait()
}

func TestCooperativeTickRunsSynchronously(t *testing.T) {
	var calls int
	c := looper.NewCooperative(func() { calls++ })

	c.Tick()
	c.Tick()
	c.Tick()

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCooperativeWaitForFlipTicksOnce(t *testing.T) {
	var calls int
	c := looper.NewCooperative(func() { calls++ })

	if ok := c.WaitForFlip(); !ok {
		t.Error("WaitForFlip() = false, want true")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
