package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ls4154/gowal/db"
)

// progress prints a line every reportInterval while a benchmark runs. The
// interval may change at any time when the config file is edited.
type progress struct {
	ops      atomic.Int64
	interval atomic.Int64
}

func newProgress(interval time.Duration) *progress {
	p := &progress{}
	p.setInterval(interval)
	return p
}

func (p *progress) setInterval(d time.Duration) {
	p.interval.Store(int64(max(d, 0)))
}

func (p *progress) reportInterval() time.Duration {
	return time.Duration(p.interval.Load())
}

// idlePoll is how often a disabled reporter looks for a new interval.
const idlePoll = time.Second

func (p *progress) run(ctx context.Context, name string, wal db.WAL) {
	start := time.Now()
	p.ops.Store(0)
	for {
		d := p.reportInterval()
		wait := d
		if d == 0 {
			wait = idlePoll
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if d == 0 {
			continue
		}

		elapsed := time.Since(start)
		ops := p.ops.Load()
		st := wal.Stats()
		fmt.Printf("walbench: %s elapsed=%s ops=%d rate=%.0f/s end=%s flushed=%s segments=%d size=%.1fMB\n",
			name,
			elapsed.Round(time.Second),
			ops,
			float64(ops)/max(elapsed.Seconds(), 1e-9),
			wal.End(),
			wal.FlushedLSN(),
			st.Segments,
			float64(st.LogSize)/(1024.0*1024.0),
		)
	}
}
