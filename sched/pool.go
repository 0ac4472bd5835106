package sched

import "sync"

// Pool is a set of worker goroutines whose idle slots are kept on a stack.
// Callers pop an idle slot, hand it a unit of work with KickIdleThread and
// carry on; if no slot is free they run the work themselves.
//
//	if idx, ok := pool.PopIdleThreadIndex(); ok {
//		pool.KickIdleThread(idx, work)
//	} else {
//		work()
//	}
//	pool.WaitForAll()
type Pool struct {
	idleLock SpinLock
	idle     []int

	workCh []chan func()

	mu        sync.Mutex
	allIdle   *sync.Cond
	closeOnce sync.Once
}

// Create a pool with the given number of worker slots.
func NewPool(workers int) *Pool {
	if workers < 0 {
		workers = 0
	}
	p := &Pool{
		idle:   make([]int, 0, workers),
		workCh: make([]chan func(), workers),
	}
	p.allIdle = sync.NewCond(&p.mu)

	for idx := workers - 1; idx >= 0; idx-- {
		p.idle = append(p.idle, idx)
		ch := make(chan func(), 1)
		p.workCh[idx] = ch
		go p.worker(idx, ch)
	}
	return p
}

// Number of worker slots.
func (p *Pool) Size() int {
	return len(p.workCh)
}

// Number of currently idle slots.
func (p *Pool) IdleCount() int {
	p.idleLock.Lock()
	n := len(p.idle)
	p.idleLock.Unlock()
	return n
}

// PopIdleThreadIndex reserves an idle worker slot.
func (p *Pool) PopIdleThreadIndex() (int, bool) {
	p.idleLock.Lock()
	defer p.idleLock.Unlock()

	n := len(p.idle)
	if n == 0 {
		return -1, false
	}
	idx := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return idx, true
}

// KickIdleThread runs work on a slot previously reserved with
// PopIdleThreadIndex. The slot returns to the idle stack once work is done.
func (p *Pool) KickIdleThread(idx int, work func()) {
	p.workCh[idx] <- work
}

// Go runs work on an idle worker if one is available, otherwise on the
// calling goroutine. It reports whether the work was handed off.
func (p *Pool) Go(work func()) bool {
	if idx, ok := p.PopIdleThreadIndex(); ok {
		p.KickIdleThread(idx, work)
		return true
	}
	work()
	return false
}

func (p *Pool) worker(idx int, ch <-chan func()) {
	for work := range ch {
		work()
		p.release(idx)
	}
}

func (p *Pool) release(idx int) {
	p.idleLock.Lock()
	p.idle = append(p.idle, idx)
	full := len(p.idle) == len(p.workCh)
	p.idleLock.Unlock()

	if full {
		p.mu.Lock()
		p.allIdle.Broadcast()
		p.mu.Unlock()
	}
}

// WaitForAll blocks until every slot is idle again.
func (p *Pool) WaitForAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.IdleCount() != len(p.workCh) {
		p.allIdle.Wait()
	}
}

// Close stops all workers after they finish their current work.
func (p *Pool) Close() {
	p.WaitForAll()
	p.closeOnce.Do(func() {
		for _, ch := range p.workCh {
			close(ch)
		}
	})
}
