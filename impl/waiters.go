package impl

import (
	"container/heap"
	"sync"

	"github.com/ls4154/gowal/db"
)

type waiter struct {
	lsn db.LSN
	fn  func()
}

type waiterHeap []waiter

func (h waiterHeap) Len() int           { return len(h) }
func (h waiterHeap) Less(i, j int) bool { return h[i].lsn.Less(h[j].lsn) }
func (h waiterHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *waiterHeap) Push(x any) {
	*h = append(*h, x.(waiter))
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = waiter{}
	*h = old[:n-1]
	return x
}

// waiterQueue holds callbacks keyed by the LSN that must become durable
// before they run.
type waiterQueue struct {
	mu sync.Mutex
	h  waiterHeap
}

func (q *waiterQueue) add(lsn db.LSN, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.h, waiter{lsn: lsn, fn: fn})
}

// fire runs, outside the lock, every callback waiting for an LSN up to
// flushed.
func (q *waiterQueue) fire(flushed db.LSN) {
	var ready []func()
	q.mu.Lock()
	for q.h.Len() > 0 && q.h[0].lsn.Compare(flushed) <= 0 {
		ready = append(ready, heap.Pop(&q.h).(waiter).fn)
	}
	q.mu.Unlock()

	for _, fn := range ready {
		fn()
	}
}

func (q *waiterQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}
