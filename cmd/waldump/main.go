// Command waldump prints or verifies the segments of a write-ahead log
// without opening it.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/env"
	"github.com/ls4154/gowal/impl"
	"github.com/ls4154/gowal/log"
	"github.com/ls4154/gowal/record"
)

type config struct {
	dir      string
	storage  string
	pageSize int
	segment  uint64
	verify   bool
	payloads bool
	key      []byte
	iv       []byte
}

type summary struct {
	segments int
	records  int
	byType   map[db.RecordType]int
	broken   []string
}

func main() {
	cfg := parseFlags()
	e := env.DefaultEnv()

	var c *log.PageCipher
	if cfg.key != nil {
		var err error
		if c, err = log.NewPageCipher(cfg.key, cfg.iv); err != nil {
			fatalf("%v", err)
		}
	}

	segments, err := listSegments(e, cfg.dir, cfg.storage)
	if err != nil {
		fatalf("list %s: %v", cfg.dir, err)
	}
	if len(segments) == 0 {
		fatalf("no segments of %q in %s", cfg.storage, cfg.dir)
	}

	if ckpt, ok, err := impl.ReadMasterRecord(e, impl.MasterRecordFileName(cfg.dir, cfg.storage)); err != nil {
		fmt.Printf("master record: %v\n", err)
	} else if ok {
		fmt.Printf("master record: last checkpoint %s\n", ckpt)
	} else {
		fmt.Printf("master record: no checkpoint\n")
	}

	sum := summary{byType: make(map[db.RecordType]int)}
	for _, seg := range segments {
		if cfg.segment != 0 && seg != cfg.segment {
			continue
		}
		sum.segments++
		if err := dumpSegment(e, cfg, c, seg, &sum); err != nil {
			sum.broken = append(sum.broken, fmt.Sprintf("segment %d: %v", seg, err))
			fmt.Printf("segment %d: %v\n", seg, err)
		}
	}

	fmt.Printf("%d segments, %d records\n", sum.segments, sum.records)
	types := make([]db.RecordType, 0, len(sum.byType))
	for t := range sum.byType {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		fmt.Printf("  %-22s %d\n", t, sum.byType[t])
	}
	if len(sum.broken) > 0 {
		fmt.Printf("%d broken segments\n", len(sum.broken))
		os.Exit(2)
	}
}

func listSegments(e db.Env, dir, storage string) ([]uint64, error) {
	children, err := e.GetChildren(dir)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, name := range children {
		if t, seg, ok := impl.ParseFileName(storage, name); ok && t == impl.FileTypeSegment {
			out = append(out, seg)
		}
	}
	slices.Sort(out)
	return out, nil
}

func dumpSegment(e db.Env, cfg config, c *log.PageCipher, seg uint64, sum *summary) error {
	name := impl.SegmentFileName(cfg.dir, cfg.storage, seg)
	size, err := e.GetFileSize(name)
	if err != nil {
		return err
	}
	f, err := e.NewRandomAccessFile(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if !cfg.verify {
		fmt.Printf("segment %d: %s (%d bytes, %d pages)\n", seg, name, size, int(size)/cfg.pageSize)
	}
	if size%uint64(cfg.pageSize) != 0 {
		fmt.Printf("segment %d: size is not a multiple of page size %d\n", seg, cfg.pageSize)
	}

	var decodeErr error
	r := log.NewReader(f, seg, cfg.pageSize, int64(size), c)
	scanErr := r.Scan(log.RecordsOffset, func(pos int64, body []byte) bool {
		lsn := db.LSN{Segment: seg, Position: pos}
		rec, err := record.Decode(body)
		if err != nil {
			decodeErr = errors.Wrapf(err, "record at %s", lsn)
			return false
		}
		sum.records++
		sum.byType[rec.Type()]++
		if !cfg.verify {
			printRecord(lsn, len(body), rec, cfg.payloads)
		}
		return true
	})
	if scanErr != nil {
		return scanErr
	}
	return decodeErr
}

func printRecord(lsn db.LSN, size int, rec db.Record, payloads bool) {
	fmt.Printf("  %-16s %-22s %6dB", lsn, rec.Type(), size)
	switch r := rec.(type) {
	case *db.AtomicUnitStart:
		fmt.Printf(" unit=%d rollback=%v", r.UnitID, r.RollbackSupported)
	case *db.AtomicUnitEnd:
		fmt.Printf(" unit=%d rollback=%v metadata=%d", r.UnitID, r.Rollback, len(r.Metadata))
	case *db.FuzzyCheckpointStart:
		fmt.Printf(" prev=%s flushed=%s", r.PreviousCheckpoint, r.FlushedLSN)
	case *db.FullCheckpointStart:
		fmt.Printf(" prev=%s", r.PreviousCheckpoint)
	case *db.PageOperation:
		fmt.Printf(" unit=%d file=%d page=%d len=%d", r.UnitID, r.FileID, r.PageIndex, len(r.Payload))
		if payloads {
			fmt.Printf("\n%s", hex.Dump(r.Payload))
		}
	}
	fmt.Println()
}

func parseFlags() config {
	var cfg config
	var key, iv string
	def := db.DefaultOptions()

	flag.StringVar(&cfg.dir, "dir", ".", "wal directory")
	flag.StringVar(&cfg.storage, "storage", "", "storage name")
	flag.IntVar(&cfg.pageSize, "page_size", def.PageSize, "page size the log was written with")
	flag.Uint64Var(&cfg.segment, "segment", 0, "dump only this segment (0: all)")
	flag.BoolVar(&cfg.verify, "verify", false, "only verify pages and records")
	flag.BoolVar(&cfg.payloads, "payloads", false, "hex dump page operation payloads")
	flag.StringVar(&key, "key", "", "hex encryption key")
	flag.StringVar(&iv, "iv", "", "hex encryption iv")
	flag.Parse()

	if cfg.storage == "" {
		fatalf("storage is required")
	}
	if cfg.pageSize < log.RecordsOffset+log.LengthPrefixSize {
		fatalf("page_size too small")
	}
	if key != "" {
		var err error
		if cfg.key, err = hex.DecodeString(key); err != nil {
			fatalf("bad key: %v", err)
		}
		if cfg.iv, err = hex.DecodeString(iv); err != nil {
			fatalf("bad iv: %v", err)
		}
	}
	return cfg
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
