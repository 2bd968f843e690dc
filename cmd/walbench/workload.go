package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ls4154/gowal/db"
)

func runBenchmark(wal db.WAL, cfg *config, spec benchSpec, p *progress) (runResult, error) {
	before := wal.Stats()
	var r runResult
	switch spec.name {
	case "appendseq":
		r = runAppend(wal, cfg, p, false)
	case "appendsync":
		r = runAppend(wal, cfg, p, true)
	case "unitops":
		r = runUnitOps(wal, cfg, p)
	case "checkpoint":
		r = runCheckpoint(wal, cfg, p)
	case "replay":
		r = runReplay(wal, cfg, p)
	default:
		return runResult{}, fmt.Errorf("unknown benchmark %q", spec.name)
	}
	r.wal = statsDelta(before, wal.Stats())
	return r, nil
}

type workerResult struct {
	ops     int64
	errors  int64
	bytes   int64
	hist    latencyHistogram
	elapsed time.Duration
}

func payloadGenerators(cfg *config) []*payloadGenerator {
	gens := make([]*payloadGenerator, cfg.threads)
	for i := range gens {
		gens[i] = newPayloadGenerator(cfg.compressionRatio, cfg.seed+int64(i))
	}
	return gens
}

// runAppend logs one page operation per op. With flush set every append is
// followed by a durable flush.
func runAppend(wal db.WAL, cfg *config, p *progress, flush bool) runResult {
	gens := payloadGenerators(cfg)
	start := time.Now()
	merged := runWorkers(cfg.num, cfg.threads, cfg.seed, p,
		func(workerID int, i int, wr *workerResult, _ *rand.Rand) bool {
			payload := gens[workerID].Generate(cfg.valueSize)

			t0 := time.Now()
			_, err := wal.LogPageOperation(int64(workerID), int64(workerID), int64(i), payload)
			if err == nil && flush {
				err = wal.Flush()
			}
			wr.hist.Observe(time.Since(t0))
			if err != nil {
				wr.errors++
				return true
			}
			wr.bytes += int64(len(payload))
			return true
		},
	)

	requested := int64(cfg.num) * int64(cfg.threads)
	return finalizeResult(requested, merged.ops, merged.errors, 0, merged.bytes, time.Since(start), merged.elapsed, merged.hist)
}

// runUnitOps logs atomic units of cfg.unitSize page operations each.
func runUnitOps(wal db.WAL, cfg *config, p *progress) runResult {
	gens := payloadGenerators(cfg)
	start := time.Now()
	merged := runWorkers(cfg.num, cfg.threads, cfg.seed, p,
		func(workerID int, i int, wr *workerResult, rng *rand.Rand) bool {
			unitID := int64(workerID)<<32 | int64(i)

			t0 := time.Now()
			_, err := wal.LogAtomicUnitStart(true, unitID, nil)
			for n := 0; err == nil && n < cfg.unitSize; n++ {
				payload := gens[workerID].Generate(cfg.valueSize)
				_, err = wal.LogPageOperation(unitID, int64(workerID), rng.Int63n(1<<20), payload)
				wr.bytes += int64(len(payload))
			}
			if err == nil {
				_, err = wal.LogAtomicUnitEnd(unitID, false, nil)
			}
			wr.hist.Observe(time.Since(t0))
			if err != nil {
				wr.errors++
			}
			return true
		},
	)

	requested := int64(cfg.num) * int64(cfg.threads)
	return finalizeResult(requested, merged.ops, merged.errors, 0, merged.bytes, time.Since(start), merged.elapsed, merged.hist)
}

// runCheckpoint interleaves appends with a fuzzy checkpoint every
// cfg.checkpointEvery ops and cuts the log behind it.
func runCheckpoint(wal db.WAL, cfg *config, p *progress) runResult {
	gens := payloadGenerators(cfg)
	var ckptMu sync.Mutex
	start := time.Now()
	merged := runWorkers(cfg.num, cfg.threads, cfg.seed, p,
		func(workerID int, i int, wr *workerResult, _ *rand.Rand) bool {
			payload := gens[workerID].Generate(cfg.valueSize)

			t0 := time.Now()
			_, err := wal.LogPageOperation(int64(workerID), int64(workerID), int64(i), payload)
			if err == nil && workerID == 0 && i > 0 && i%cfg.checkpointEvery == 0 {
				ckptMu.Lock()
				err = checkpoint(wal)
				ckptMu.Unlock()
			}
			wr.hist.Observe(time.Since(t0))
			if err != nil {
				wr.errors++
				return true
			}
			wr.bytes += int64(len(payload))
			return true
		},
	)

	requested := int64(cfg.num) * int64(cfg.threads)
	r := finalizeResult(requested, merged.ops, merged.errors, 0, merged.bytes, time.Since(start), merged.elapsed, merged.hist)
	r.message = fmt.Sprintf("(%d segments left, log size %d)", len(wal.NonActiveSegments())+1, wal.Size())
	return r
}

func checkpoint(wal db.WAL) error {
	startLSN, err := wal.LogFuzzyCheckpointStart(wal.FlushedLSN(), nil)
	if err != nil {
		return err
	}
	if _, err := wal.LogFuzzyCheckpointEnd(); err != nil {
		return err
	}
	_, err = wal.CutTill(startLSN)
	return err
}

// runReplay reads the whole log from its first record in batches of
// cfg.batch, once per worker.
func runReplay(wal db.WAL, cfg *config, p *progress) runResult {
	perThread := readsPerThread(cfg)
	begin, ok := wal.Begin()
	if !ok {
		return runResult{message: "(empty log)"}
	}

	type cursor struct {
		pending []db.Entry
		next    db.LSN
		started bool
		done    bool
	}
	cursors := make([]cursor, cfg.threads)

	start := time.Now()
	merged := runWorkers(perThread, cfg.threads, cfg.seed, p,
		func(workerID int, _ int, wr *workerResult, _ *rand.Rand) bool {
			c := &cursors[workerID]
			if len(c.pending) == 0 {
				if c.done {
					return false
				}
				var (
					batch []db.Entry
					err   error
				)
				t0 := time.Now()
				if !c.started {
					batch, err = wal.Read(begin, cfg.batch)
					c.started = true
				} else {
					batch, err = wal.Next(c.next, cfg.batch)
				}
				wr.hist.Observe(time.Since(t0))
				if err != nil {
					wr.errors++
					c.done = true
				}
				if len(batch) == 0 {
					c.done = true
					return false
				}
				c.pending = batch
				c.next = batch[len(batch)-1].LSN
			}

			e := c.pending[0]
			c.pending = c.pending[1:]
			if op, ok := e.Record.(*db.PageOperation); ok {
				wr.bytes += int64(len(op.Payload))
			}
			return true
		},
	)

	requested := int64(perThread) * int64(cfg.threads)
	misses := max(requested-merged.ops, 0)
	r := finalizeResult(requested, merged.ops, merged.errors, misses, merged.bytes, time.Since(start), merged.elapsed, merged.hist)
	r.message = fmt.Sprintf("(%d records replayed from %s)", merged.ops, begin)
	return r
}

func readsPerThread(cfg *config) int {
	if cfg.reads >= 0 {
		return cfg.reads
	}
	return cfg.num
}

func runWorkers(
	opsPerThread int,
	threads int,
	seed int64,
	p *progress,
	fn func(workerID int, i int, wr *workerResult, rng *rand.Rand) bool,
) workerResult {
	var wg sync.WaitGroup
	out := make(chan workerResult, threads)

	for wid := 0; wid < threads; wid++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			wr := workerResult{hist: newLatencyHistogram()}
			rng := rand.New(rand.NewSource(seed + int64(workerID)))
			begin := time.Now()

			for i := 0; i < opsPerThread; i++ {
				if !fn(workerID, i, &wr, rng) {
					break
				}
				wr.ops++
				p.ops.Add(1)
			}

			wr.elapsed = time.Since(begin)
			out <- wr
		}(wid)
	}

	wg.Wait()
	close(out)

	merged := workerResult{hist: newLatencyHistogram()}
	for wr := range out {
		merged.ops += wr.ops
		merged.errors += wr.errors
		merged.bytes += wr.bytes
		merged.elapsed += wr.elapsed
		merged.hist.Merge(wr.hist)
	}
	return merged
}

func statsDelta(before, after db.Stats) db.Stats {
	return db.Stats{
		RecordsAppended:   after.RecordsAppended - before.RecordsAppended,
		BytesWritten:      after.BytesWritten - before.BytesWritten,
		PagesWritten:      after.PagesWritten - before.PagesWritten,
		Fsyncs:            after.Fsyncs - before.Fsyncs,
		FlushCycles:       after.FlushCycles - before.FlushCycles,
		BackpressureWaits: after.BackpressureWaits - before.BackpressureWaits,
		LogSize:           after.LogSize,
		Segments:          after.Segments,
	}
}
