// Package sched contains the primitives used to parallelize tree builds: a
// fixed fan-out Bucket for balanced reductions and a Pool of idle workers for
// unbalanced recursive work.
package sched

import (
	"runtime"
	"sync/atomic"
	"time"
)

const (
	// Number of CAS attempts before yielding the processor.
	spinsBeforeYield = 64

	// Number of yields before backing off with a short sleep.
	yieldsBeforeSleep = 16

	backoffSleep = 50 * time.Microsecond
)

// SpinLock is a compare-and-swap lock for short critical sections such as
// appending to a shared node array. The zero value is unlocked.
type SpinLock struct {
	state atomic.Int32
}

// Lock acquires the lock, spinning for a bounded number of attempts before
// falling back to yielding and then sleeping.
func (l *SpinLock) Lock() {
	for spins := 0; ; spins++ {
		if l.state.CompareAndSwap(0, 1) {
			return
		}
		switch {
		case spins < spinsBeforeYield:
		case spins < spinsBeforeYield+yieldsBeforeSleep:
			runtime.Gosched()
		default:
			time.Sleep(backoffSleep)
		}
	}
}

// TryLock acquires the lock if it is free.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock.
func (l *SpinLock) Unlock() {
	l.state.Store(0)
}
