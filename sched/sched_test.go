package sched

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSpinLock(t *testing.T) {
	var (
		lock    SpinLock
		counter int
		wg      sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != 8000 {
		t.Fatalf("expected counter to be 8000; got %d", counter)
	}

	if !lock.TryLock() {
		t.Fatal("expected TryLock to succeed on a free lock")
	}
	if lock.TryLock() {
		t.Fatal("expected TryLock to fail on a held lock")
	}
	lock.Unlock()
}

func TestBucketRun(t *testing.T) {
	b := NewBucket(4)
	defer b.Close()

	data := make([]int, 1003)
	for i := range data {
		data[i] = i
	}

	partial := make([]int, b.Slots())
	b.Run(func(slot, slots int) {
		start, end := Split(len(data), slot, slots)
		for _, v := range data[start:end] {
			partial[slot] += v
		}
	})

	total := 0
	for _, v := range partial {
		total += v
	}
	if exp := 1002 * 1003 / 2; total != exp {
		t.Fatalf("expected sum to be %d; got %d", exp, total)
	}
}

func TestSplit(t *testing.T) {
	type spec struct {
		n, slot, slots int
		start, end     int
	}
	specs := []spec{
		{10, 0, 4, 0, 3},
		{10, 3, 4, 9, 10},
		{2, 3, 4, 2, 2},
		{0, 0, 1, 0, 0},
	}

	for index, s := range specs {
		start, end := Split(s.n, s.slot, s.slots)
		if start != s.start || end != s.end {
			t.Fatalf("[spec %d] expected range [%d, %d); got [%d, %d)", index, s.start, s.end, start, end)
		}
	}
}

func TestSingleSlotBucket(t *testing.T) {
	b := NewBucket(0)
	defer b.Close()

	calls := 0
	b.Run(func(slot, slots int) {
		if slot != 0 || slots != 1 {
			t.Errorf("expected slot 0 of 1; got %d of %d", slot, slots)
		}
		calls++
	})
	if calls != 1 {
		t.Fatalf("expected task to run once; got %d", calls)
	}
}

// Recursively spawn work the same way the tree builders do.
func TestPoolRecursiveSpawn(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	var leaves atomic.Int32
	var split func(depth int)
	split = func(depth int) {
		if depth == 6 {
			leaves.Add(1)
			return
		}
		left := func() { split(depth + 1) }
		if idx, ok := p.PopIdleThreadIndex(); ok {
			p.KickIdleThread(idx, left)
		} else {
			left()
		}
		split(depth + 1)
	}

	split(0)
	p.WaitForAll()

	if leaves.Load() != 64 {
		t.Fatalf("expected 64 leaves; got %d", leaves.Load())
	}
	if p.IdleCount() != p.Size() {
		t.Fatalf("expected all %d slots to be idle; got %d", p.Size(), p.IdleCount())
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	idx, ok := p.PopIdleThreadIndex()
	if !ok {
		t.Fatal("expected an idle slot")
	}
	if _, ok = p.PopIdleThreadIndex(); ok {
		t.Fatal("expected pool to be exhausted")
	}

	release := make(chan struct{})
	p.KickIdleThread(idx, func() { <-release })

	ran := false
	if p.Go(func() { ran = true }) {
		t.Fatal("expected work to run inline while the pool is busy")
	}
	if !ran {
		t.Fatal("expected inline work to have run")
	}

	close(release)
	p.WaitForAll()
}
