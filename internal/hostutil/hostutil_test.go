package hostutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestHeapAllocReturnsZeroedPageSizedBuffer(t *testing.T) {
	a := NewHeapAlloc(4096)
	buf, err := a.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 4096 {
		t.Fatalf("expected 4096 bytes, got %d", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("expected a freshly allocated buffer to be zeroed")
		}
	}
	a.Free(buf)
}

func TestCondWaiterWaitReturnsImmediatelyWhenValueAlreadyChanged(t *testing.T) {
	w := NewCondWaiter()
	var word uint64 = 5
	if ok := w.Wait(&word, 1, time.Second); !ok {
		t.Fatal("expected immediate true when observed value is stale")
	}
}

func TestCondWaiterWaitTimesOut(t *testing.T) {
	w := NewCondWaiter()
	var word uint64
	start := time.Now()
	ok := w.Wait(&word, 0, 20*time.Millisecond)
	if ok {
		t.Fatal("expected timeout to report false")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("returned too early for the requested timeout")
	}
}

func TestCondWaiterWakeUnblocksWaiter(t *testing.T) {
	w := NewCondWaiter()
	var word uint64

	done := make(chan bool, 1)
	go func() {
		done <- w.Wait(&word, 0, -1)
	}()

	time.Sleep(10 * time.Millisecond)
	atomic.StoreUint64(&word, 1)
	w.Wake(&word)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected Wait to report true after Wake")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func TestCondWaiterZeroTimeoutPollsWithoutBlocking(t *testing.T) {
	w := NewCondWaiter()
	var word uint64
	start := time.Now()
	ok := w.Wait(&word, 0, 0)
	if ok {
		t.Fatal("expected a zero-timeout poll with no change to report false")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("zero timeout should not block")
	}
}

func TestDefaultMallocReturnsPageSizedBuffer(t *testing.T) {
	d := NewDefault(4096)
	buf, err := d.Malloc(4096)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 4096 {
		t.Fatalf("expected 4096 bytes, got %d", len(buf))
	}
	if err := d.Free(buf); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultWaitAndWakeRoundTrip(t *testing.T) {
	d := NewDefault(4096)
	var word uint64

	done := make(chan bool, 1)
	go func() {
		ok, err := d.Wait(&word, 0, -1)
		if err != nil {
			t.Error(err)
		}
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	atomic.StoreUint64(&word, 1)
	if _, err := d.Wake(&word); err != nil {
		t.Fatal(err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected Wait to report true after Wake")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func TestDefaultTimeReturnsRecentWallClock(t *testing.T) {
	d := NewDefault(4096)
	now, err := d.Time()
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(now) > time.Second || time.Since(now) < -time.Second {
		t.Fatalf("expected Time to return roughly now, got %v", now)
	}
}

func TestDefaultSyncIsANoOp(t *testing.T) {
	d := NewDefault(4096)
	if err := d.Sync(); err != nil {
		t.Fatal(err)
	}
}
