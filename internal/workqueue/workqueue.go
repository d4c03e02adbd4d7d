package workqueue

import (
	"context"
	"sync"
)

// WorkQueue is a channel like interface specifically designed to get
// around some limitations of the typical golang channel interface. The
// largest is that it will not block on insertion of data no matter
// how much information gets inserted. Each inserted function is run in
// a goroutine, with no more than the configured number running at the
// same time.
type WorkQueue struct {
	// A lock that protects operations being performed inside of this
	// work queue.
	lock sync.Mutex

	// A WaitGroup that tracks all of the goroutines that are spawning
	// work from the work queue.
	wg sync.WaitGroup

	// The context handed to every function run by the queue.
	ctx context.Context

	// The number of items currently stored in this workqueue.
	length int

	// The maximum number of parallel operations that can be performed
	// on this WorkQueue.
	parallel int

	// Tracks how many running processors there currently are. This is used
	// to ensure that more processors than are allowed do not get
	// started.
	running int

	// The block being read and the read position within it.
	next      *block
	nextIndex int

	// The block being written and the write position within it.
	last      *block
	lastIndex int
}

// Queued functions are stored in fixed size blocks chained in insertion
// order. Drained blocks are recycled through blockPool.
const blockSize = 64

type block struct {
	work [blockSize]func(context.Context)
	next *block
}

var blockPool = sync.Pool{
	New: func() interface{} { return new(block) },
}

// Creates a new WorkQueue that runs at most parallel functions at once.
// Every function is given ctx when it runs.
func New(ctx context.Context, parallel int) *WorkQueue {
	w := &WorkQueue{
		ctx:      ctx,
		parallel: parallel,
	}
	w.next = blockPool.Get().(*block)
	w.last = w.next
	return w
}

// Inserts a function into the work queue.
func (w *WorkQueue) Insert(f func(context.Context)) {
	if f == nil {
		return
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.last.work[w.lastIndex] = f
	w.lastIndex += 1
	w.length += 1

	// Chain a fresh block once this one is full.
	if w.lastIndex >= len(w.last.work) {
		w.last.next = blockPool.Get().(*block)
		w.last = w.last.next
		w.lastIndex = 0
	}

	// Start any work processors that are needed.
	if w.running < w.parallel {
		w.running += 1
		w.wg.Add(1)
		go w.process()
	}
}

// Gets the length of the current work queue.
func (w *WorkQueue) Len() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.length
}

// Blocks until every inserted function has finished running. Inserting
// while waiting is allowed; Wait returns once the queue drains.
func (w *WorkQueue) Wait() {
	w.wg.Wait()
}

// Processes items from the queue. This will work until there is nothing left
// in the queue and then it will shut down.
func (w *WorkQueue) process() {
	defer w.wg.Done()
	for {
		// Get the next item from the queue. The running count is released
		// under the same lock that observes the empty queue so that an
		// Insert racing with shutdown always starts a new processor.
		next, ok := func() (func(context.Context), bool) {
			w.lock.Lock()
			defer w.lock.Unlock()
			if w.next == w.last && w.nextIndex == w.lastIndex {
				w.running -= 1
				return nil, false
			}

			// There is an item available. Consume it.
			next := w.next.work[w.nextIndex]
			w.next.work[w.nextIndex] = nil

			// And move the queue pointer over one, releasing it if needed.
			w.nextIndex += 1
			if w.nextIndex >= len(w.next.work) {
				w.nextIndex = 0
				tmp := w.next
				w.next = w.next.next
				tmp.next = nil
				blockPool.Put(tmp)
			}

			// If the read pointer and the write pointer are equal and
			// pointing at the same list then we can set them back to zero
			// so we don't waste space at the start of the list.
			if w.next == w.last && w.nextIndex == w.lastIndex {
				w.nextIndex = 0
				w.lastIndex = 0
			}

			w.length -= 1
			return next, true
		}()
		if !ok {
			return
		}
		next(w.ctx)
	}
}
