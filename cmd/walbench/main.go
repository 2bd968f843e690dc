package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ls4154/gowal"
	"github.com/ls4154/gowal/db"
	"github.com/spf13/viper"
)

type config struct {
	dir              string
	storage          string
	configFile       string
	benchmarks       []string
	num              int
	reads            int
	batch            int
	valueSize        int
	unitSize         int
	checkpointEvery  int
	threads          int
	pageSize         int
	writeBufferSize  int
	maxSegmentSize   int64
	maxUnflushedSize int64
	commitDelay      time.Duration
	fsyncInterval    time.Duration
	compression      db.CompressionType
	compressionRatio float64
	encrypt          bool
	directIO         bool
	syncOnFlush      bool
	histogram        bool
	useExistingWAL   bool
	freshWAL         bool
	reportInterval   time.Duration
	seed             int64
}

func main() {
	cfg, p := parseFlags()
	printBanner(cfg)
	printHeader(cfg)

	for _, name := range cfg.benchmarks {
		spec, err := benchSpecFor(name)
		if err != nil {
			fatalf("%v", err)
		}

		if cfg.freshWAL || spec.freshWALByDefault {
			if cfg.useExistingWAL {
				fmt.Printf("%-12s %12s\n", name, "skipped (--use_existing_wal=true)")
				continue
			}
			if err := os.RemoveAll(cfg.dir); err != nil {
				fatalf("remove wal dir: %v", err)
			}
		}

		wal, err := openWAL(cfg)
		if err != nil {
			fatalf("open wal for %s: %v", name, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		reporterDone := make(chan struct{})
		go func() {
			defer close(reporterDone)
			p.run(ctx, name, wal)
		}()

		r, runErr := runBenchmark(wal, cfg, spec, p)
		cancel()
		<-reporterDone

		closeErr := wal.Close()
		if runErr != nil {
			fatalf("%s: %v", name, runErr)
		}
		if closeErr != nil {
			fatalf("close wal after %s: %v", name, closeErr)
		}
		printResult(cfg, name, r)
	}
}

func openWAL(cfg *config) (db.WAL, error) {
	opt := db.DefaultOptions()
	opt.PageSize = cfg.pageSize
	opt.WriteBufferSize = cfg.writeBufferSize
	opt.MaxSegmentSize = cfg.maxSegmentSize
	opt.MaxUnflushedSize = cfg.maxUnflushedSize
	opt.CommitDelay = cfg.commitDelay
	opt.FsyncInterval = cfg.fsyncInterval
	opt.Compression = cfg.compression
	opt.DirectIO = cfg.directIO
	opt.SyncOnFlush = cfg.syncOnFlush
	if cfg.encrypt {
		opt.EncryptionKey = make([]byte, 32)
		opt.EncryptionIV = make([]byte, 16)
		_, _ = rand.Read(opt.EncryptionKey)
		_, _ = rand.Read(opt.EncryptionIV)
	}
	return gowal.Open(opt, cfg.dir, cfg.storage)
}

func printBanner(cfg *config) {
	fmt.Printf("walbench: dir=%s storage=%s num=%d reads=%d batch=%d value_size=%d unit_size=%d threads=%d seed=%d page_size=%d write_buffer_size=%d max_segment_size=%d commit_delay=%s fsync_interval=%s compression=%s compression_ratio=%.2f encrypt=%v direct_io=%v sync_on_flush=%v\n",
		cfg.dir,
		cfg.storage,
		cfg.num,
		readsPerThread(cfg),
		cfg.batch,
		cfg.valueSize,
		cfg.unitSize,
		cfg.threads,
		cfg.seed,
		cfg.pageSize,
		cfg.writeBufferSize,
		cfg.maxSegmentSize,
		cfg.commitDelay,
		cfg.fsyncInterval,
		compressionName(cfg.compression),
		cfg.compressionRatio,
		cfg.encrypt,
		cfg.directIO,
		cfg.syncOnFlush)
}

func printHeader(cfg *config) {
	if cfg.histogram {
		fmt.Printf("%-12s %12s %12s %12s %12s %10s %8s %8s %8s %8s %8s %8s\n",
			"benchmark", "ops", "ops/sec", "MB/sec", "avg(us)", "errors", "miss", "fsyncs", "waits", "p50", "p95", "p99")
		return
	}
	fmt.Printf("%-12s %12s %12s %12s %12s %10s %8s %8s %8s\n",
		"benchmark", "ops", "ops/sec", "MB/sec", "avg(us)", "errors", "miss", "fsyncs", "waits")
}

func printResult(cfg *config, name string, r runResult) {
	if cfg.histogram {
		fmt.Printf("%-12s %12d %12.0f %12.2f %12.1f %10d %8d %8d %8d %8s %8s %8s\n",
			name,
			r.ops,
			r.opsPerSec,
			r.mbPerSec,
			r.avgMicros,
			r.errors,
			r.misses,
			r.wal.Fsyncs,
			r.wal.BackpressureWaits,
			formatDurationMicros(r.hist.P50()),
			formatDurationMicros(r.hist.P95()),
			formatDurationMicros(r.hist.P99()),
		)
	} else {
		fmt.Printf("%-12s %12d %12.0f %12.2f %12.1f %10d %8d %8d %8d\n",
			name,
			r.ops,
			r.opsPerSec,
			r.mbPerSec,
			r.avgMicros,
			r.errors,
			r.misses,
			r.wal.Fsyncs,
			r.wal.BackpressureWaits,
		)
	}
	if r.wal.PagesWritten > 0 {
		fmt.Printf("%-12s (%d records, %d pages, %.1fMB written, %d flush cycles)\n", "",
			r.wal.RecordsAppended, r.wal.PagesWritten, float64(r.wal.BytesWritten)/(1024.0*1024.0), r.wal.FlushCycles)
	}
	if r.message != "" {
		fmt.Printf("%-12s %s\n", "", r.message)
	}
}

func parseFlags() (*config, *progress) {
	var benchmarkList string
	var compression string
	cfg := &config{}
	def := db.DefaultOptions()
	fs := flag.CommandLine

	fs.StringVar(&cfg.configFile, "config", "", "optional config file (yaml, toml or json) keyed by flag name")
	fs.StringVar(&cfg.dir, "dir", "/tmp/gowal-bench", "wal directory")
	fs.StringVar(&cfg.storage, "storage", "bench", "storage name")
	fs.StringVar(&benchmarkList, "benchmarks", "appendseq,replay", "comma-separated benchmark names")
	fs.IntVar(&cfg.num, "num", 100000, "operations per thread")
	fs.IntVar(&cfg.reads, "reads", -1, "records replayed per thread (default: num)")
	fs.IntVar(&cfg.batch, "batch", 256, "records per Read/Next call during replay")
	fs.IntVar(&cfg.valueSize, "value_size", 100, "page operation payload size in bytes")
	fs.IntVar(&cfg.unitSize, "unit_size", 4, "page operations per atomic unit (unitops)")
	fs.IntVar(&cfg.checkpointEvery, "checkpoint_every", 10000, "ops between fuzzy checkpoints (checkpoint)")
	fs.IntVar(&cfg.threads, "threads", 1, "number of worker goroutines")
	fs.IntVar(&cfg.pageSize, "page_size", def.PageSize, "wal page size")
	fs.IntVar(&cfg.writeBufferSize, "write_buffer_size", def.WriteBufferSize, "size of each page buffer")
	fs.Int64Var(&cfg.maxSegmentSize, "max_segment_size", def.MaxSegmentSize, "segment size that triggers rotation")
	fs.Int64Var(&cfg.maxUnflushedSize, "max_unflushed_size", def.MaxUnflushedSize, "unflushed bytes before appenders are throttled")
	fs.DurationVar(&cfg.commitDelay, "commit_delay", def.CommitDelay, "background flush period")
	fs.DurationVar(&cfg.fsyncInterval, "fsync_interval", def.FsyncInterval, "minimum time between fsyncs")
	fs.StringVar(&compression, "compression", "no", "record compression: no|snappy|zstd")
	fs.Float64Var(&cfg.compressionRatio, "compression_ratio", 0.5, "compression ratio of generated payloads")
	fs.BoolVar(&cfg.encrypt, "encrypt", false, "encrypt pages with a random AES-256 key")
	fs.BoolVar(&cfg.directIO, "direct_io", false, "write segments with O_DIRECT")
	fs.BoolVar(&cfg.syncOnFlush, "sync_on_flush", def.SyncOnFlush, "fsync segment files on flush")
	fs.BoolVar(&cfg.histogram, "histogram", false, "print latency histogram percentiles")
	fs.BoolVar(&cfg.useExistingWAL, "use_existing_wal", false, "do not remove an existing wal for fresh benchmarks")
	fs.BoolVar(&cfg.freshWAL, "fresh_wal", false, "force a fresh wal for every benchmark")
	fs.DurationVar(&cfg.reportInterval, "report_interval", 0, "progress report interval (0 disables)")
	fs.Int64Var(&cfg.seed, "seed", 301, "rng seed")
	flag.Parse()

	var v *viper.Viper
	if cfg.configFile != "" {
		var err error
		if v, err = loadConfigFile(fs, cfg.configFile); err != nil {
			fatalf("%v", err)
		}
	}

	cfg.benchmarks = parseBenchmarks(benchmarkList)

	if cfg.num <= 0 {
		fatalf("num must be > 0")
	}
	if cfg.reads < -1 {
		fatalf("reads must be >= -1")
	}
	if cfg.batch <= 0 {
		fatalf("batch must be > 0")
	}
	if cfg.valueSize < 0 {
		fatalf("value_size must be >= 0")
	}
	if cfg.unitSize <= 0 {
		fatalf("unit_size must be > 0")
	}
	if cfg.checkpointEvery <= 0 {
		fatalf("checkpoint_every must be > 0")
	}
	if cfg.threads <= 0 {
		fatalf("threads must be > 0")
	}
	if cfg.pageSize <= 0 {
		fatalf("page_size must be > 0")
	}
	if cfg.writeBufferSize <= 0 {
		fatalf("write_buffer_size must be > 0")
	}
	if cfg.compressionRatio <= 0 {
		fatalf("compression_ratio must be > 0")
	}
	if cfg.reportInterval < 0 {
		fatalf("report_interval must be >= 0")
	}
	if cfg.storage == "" {
		fatalf("storage is empty")
	}
	if len(cfg.benchmarks) == 0 {
		fatalf("benchmarks is empty")
	}

	cfg.compression = parseCompression(compression)

	p := newProgress(cfg.reportInterval)
	if v != nil {
		watchConfig(v, p)
	}
	return cfg, p
}

func parseCompression(raw string) db.CompressionType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "no", "none":
		return db.NoCompression
	case "snappy":
		return db.SnappyCompression
	case "zstd":
		return db.ZstdCompression
	default:
		fatalf("invalid compression %q (allowed: no|snappy|zstd)", raw)
		return db.NoCompression
	}
}

func compressionName(t db.CompressionType) string {
	switch t {
	case db.SnappyCompression:
		return "snappy"
	case db.ZstdCompression:
		return "zstd"
	default:
		return "no"
	}
}

func parseBenchmarks(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
