package backoff

import (
	"sync"
	"time"
)

// Tracks failures shared by many workers and slows all of them down when
// too many have been seen over a short period. The delay grows linearly by
// X for each failure inside Period, capped at Max.
type BackOff struct {
	// The period for which failures will be evaluated.
	Period time.Duration

	// The amount of delay to add after each additional failure (can not
	// be zero).
	X time.Duration

	// The Maximum back off allowed.
	Max time.Duration

	// Failure timestamps stored as a ring buffer; end is the next write
	// slot and length the number of live entries.
	queue  []time.Time
	end    int
	length int

	// A lock that protects all operations so they can be run in parallel.
	lock sync.Mutex
}

// Records a failure.
func (b *BackOff) Failure() {
	if b == nil {
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.queue == nil {
		b.allocate()
	}
	qlen := len(b.queue)
	b.queue[b.end] = time.Now()
	b.end = (b.end + 1) % qlen
	b.length += 1
	if b.length > qlen {
		b.length = qlen
	}
}

// Returns true if no failures are being tracked.
func (b *BackOff) Healthy() bool {
	if b == nil {
		return true
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.length == 0
}

// Returns the amount of time that a caller should wait before its next
// attempt. Failures older than Period are expired first. The first failure
// in a period carries no delay.
func (b *BackOff) Wait() time.Duration {
	if b == nil {
		return 0
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.queue == nil {
		b.allocate()
	}
	cutoff := time.Now().Add(-b.Period)
	for b.length > 0 {
		qlen := len(b.queue)
		index := (b.end + qlen - b.length) % qlen
		if b.queue[index].After(cutoff) {
			break
		}
		b.length -= 1
	}
	delay := b.X * time.Duration(b.length-1)
	if delay < 0 {
		return 0
	} else if delay > b.Max {
		return b.Max
	} else {
		return delay
	}
}

func (b *BackOff) allocate() {
	size := 1
	if b.X > 0 && b.Period > b.X {
		size = int(b.Period / b.X)
	}
	b.queue = make([]time.Time, size)
}
