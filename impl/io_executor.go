package impl

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

type future struct {
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func doneFuture() *future {
	f := newFuture()
	close(f.done)
	return f
}

func (f *future) wait() error {
	<-f.done
	return f.err
}

type ioTask struct {
	fn func() error
	f  *future
}

// ioExecutor runs file writes and syncs one at a time, in submission order.
// After a task fails every later task fails with the same error.
type ioExecutor struct {
	tasks   chan ioTask
	last    atomic.Pointer[future]
	onError func(error)
	wg      sync.WaitGroup

	failed error
}

func newIOExecutor(onError func(error)) *ioExecutor {
	e := &ioExecutor{
		tasks:   make(chan ioTask, 1),
		onError: onError,
	}
	e.last.Store(doneFuture())
	return e
}

func (e *ioExecutor) Run() {
	e.wg.Add(1)
	go e.main()
}

func (e *ioExecutor) main() {
	defer e.wg.Done()

	for t := range e.tasks {
		if e.failed != nil {
			t.f.err = e.failed
		} else if err := t.fn(); err != nil {
			e.failed = err
			t.f.err = err
			e.onError(err)
		}
		close(t.f.done)
	}
}

// submit must only be called by one goroutine at a time.
func (e *ioExecutor) submit(fn func() error) *future {
	f := newFuture()
	e.last.Store(f)
	e.tasks <- ioTask{fn: fn, f: f}
	return f
}

// wait blocks until the most recently submitted task has finished.
func (e *ioExecutor) wait() error {
	return e.last.Load().wait()
}

func (e *ioExecutor) Close(timeout time.Duration) error {
	close(e.tasks)
	return waitGroupTimeout(&e.wg, timeout, "io executor")
}

func waitGroupTimeout(wg *sync.WaitGroup, timeout time.Duration, what string) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.Newf("%s did not stop within %s", what, timeout)
	}
}
