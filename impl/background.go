package impl

import (
	"time"
)

type flushRequest struct {
	force bool
	done  chan error
}

// bgWork owns the writer goroutine. It wakes up every CommitDelay and on
// explicit flush requests.
type bgWork struct {
	wal *walImpl
	dw  *diskWriter

	flushCh  chan flushRequest
	closedCh chan struct{}
	// stoppedCh is closed once the writer goroutine has returned
	stoppedCh chan struct{}
}

func (w *walImpl) newBgWork(dw *diskWriter) *bgWork {
	return &bgWork{
		wal:       w,
		dw:        dw,
		flushCh:   make(chan flushRequest),
		closedCh:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (bg *bgWork) Run() {
	go bg.writerMain()
}

func (bg *bgWork) writerMain() {
	defer close(bg.stoppedCh)

	w := bg.wal
	ticker := time.NewTicker(w.options.CommitDelay)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-bg.closedCh:
			return
		case <-ticker.C:
			err = bg.dw.writeRecords(false, false)
		case req := <-bg.flushCh:
			err = bg.dw.writeRecords(req.force, true)
			req.done <- err
		}

		if err != nil {
			w.RecordBackgroundError(err)
			w.logger.Printf("wal writer stopped: %v", err)
			return
		}
	}
}

// Flush runs a writer cycle that writes out every queued record and, with
// force, syncs it. It does not wait for the submitted writes.
func (bg *bgWork) Flush(force bool) error {
	req := flushRequest{force: force, done: make(chan error, 1)}
	select {
	case bg.flushCh <- req:
	case <-bg.stoppedCh:
		return bg.wal.writerStoppedError()
	}
	return <-req.done
}

func (bg *bgWork) Close(timeout time.Duration) error {
	close(bg.closedCh)
	select {
	case <-bg.stoppedCh:
		return nil
	case <-time.After(timeout):
		return errWriterShutdownTimeout(timeout)
	}
}
