package sched

import "sync"

// A Task receives the index of the slot it runs on and the total number of
// slots so it can pick its statically assigned share of the work.
type Task func(slot, slots int)

// Bucket runs the same task on a fixed number of slots and waits for all of
// them. Slot 0 always runs on the calling goroutine.
type Bucket struct {
	runMu sync.Mutex

	slots   int
	startCh []chan Task
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// Create a bucket with the given number of slots (at least 1).
func NewBucket(slots int) *Bucket {
	if slots < 1 {
		slots = 1
	}
	b := &Bucket{
		slots:   slots,
		startCh: make([]chan Task, slots),
	}

	for slot := 1; slot < slots; slot++ {
		ch := make(chan Task)
		b.startCh[slot] = ch
		go b.worker(slot, ch)
	}
	return b
}

func (b *Bucket) worker(slot int, ch <-chan Task) {
	for task := range ch {
		task(slot, b.slots)
		b.wg.Done()
	}
}

// Number of slots.
func (b *Bucket) Slots() int {
	return b.slots
}

// Run signals every slot to execute task and blocks until all slots have
// completed. Concurrent calls are serialized.
func (b *Bucket) Run(task Task) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.wg.Add(b.slots - 1)
	for slot := 1; slot < b.slots; slot++ {
		b.startCh[slot] <- task
	}
	task(0, b.slots)
	b.wg.Wait()
}

// Close stops the worker goroutines. The bucket must not be used afterwards.
func (b *Bucket) Close() {
	b.closeOnce.Do(func() {
		b.runMu.Lock()
		defer b.runMu.Unlock()
		for slot := 1; slot < b.slots; slot++ {
			close(b.startCh[slot])
		}
	})
}

// Split returns the [start, end) range of n items assigned to slot.
func Split(n, slot, slots int) (start, end int) {
	chunk := (n + slots - 1) / slots
	start = slot * chunk
	end = start + chunk
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	return start, end
}
