package sched

// Workers bundles the bucket and pool shared by all tree builds. The caller
// of a build counts as one worker, so the pool holds one slot fewer.
type Workers struct {
	Bucket *Bucket
	Pool   *Pool
}

// Create a worker set for n logical workers (at least 1).
func NewWorkers(n int) *Workers {
	if n < 1 {
		n = 1
	}
	return &Workers{
		Bucket: NewBucket(n),
		Pool:   NewPool(n - 1),
	}
}

// Number of logical workers including the caller.
func (w *Workers) Count() int {
	return w.Bucket.Slots()
}

// Stop all worker goroutines.
func (w *Workers) Close() {
	w.Pool.Close()
	w.Bucket.Close()
}
