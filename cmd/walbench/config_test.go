package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num: 500\nthreads: 4\nreport_interval: 2s\ncompression: zstd\n"), 0o644))

	fs := flag.NewFlagSet("walbench", flag.ContinueOnError)
	num := fs.Int("num", 100, "")
	threads := fs.Int("threads", 1, "")
	interval := fs.Duration("report_interval", 0, "")
	compression := fs.String("compression", "no", "")
	seed := fs.Int64("seed", 301, "")
	require.NoError(t, fs.Parse([]string{"-threads", "8"}))

	v, err := loadConfigFile(fs, path)
	require.NoError(t, err)
	require.NotNil(t, v)

	require.Equal(t, 500, *num)
	// command line wins over the file
	require.Equal(t, 8, *threads)
	require.Equal(t, 2*time.Second, *interval)
	require.Equal(t, "zstd", *compression)
	require.Equal(t, int64(301), *seed)
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	fs := flag.NewFlagSet("walbench", flag.ContinueOnError)
	fs.Int("num", 100, "")

	_, err := loadConfigFile(fs, filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("num: many\n"), 0o644))
	_, err = loadConfigFile(fs, bad)
	require.ErrorContains(t, err, "num")
}

func TestProgressInterval(t *testing.T) {
	p := newProgress(time.Second)
	require.Equal(t, time.Second, p.reportInterval())
	p.setInterval(-time.Second)
	require.Zero(t, p.reportInterval())
}

func TestBenchSpecFor(t *testing.T) {
	spec, err := benchSpecFor("appendseq")
	require.NoError(t, err)
	require.True(t, spec.freshWALByDefault)

	spec, err = benchSpecFor("replay")
	require.NoError(t, err)
	require.False(t, spec.freshWALByDefault)
	require.True(t, spec.useReads)

	_, err = benchSpecFor("fillseq")
	require.Error(t, err)
}

func TestLatencyHistogram(t *testing.T) {
	h := newLatencyHistogram()
	require.Equal(t, 5*time.Microsecond, h.bounds[0])
	require.Equal(t, time.Second, h.bounds[len(h.bounds)-1])
	require.Zero(t, h.P50())

	for i := 0; i < 90; i++ {
		h.Observe(3 * time.Microsecond)
	}
	for i := 0; i < 10; i++ {
		h.Observe(300 * time.Millisecond)
	}
	require.Equal(t, 5*time.Microsecond, h.P50())
	require.Equal(t, 500*time.Millisecond, h.P95())

	other := newLatencyHistogram()
	other.Observe(3 * time.Second)
	h.Merge(other)
	require.Equal(t, uint64(101), h.total)
	require.Equal(t, 3*time.Second, h.percentile(100))
}

func TestPayloadGenerator(t *testing.T) {
	g := newPayloadGenerator(0.25, 7)
	a := g.Generate(1000)
	require.Len(t, a, 1000)
	require.Empty(t, g.Generate(-1))
	require.Len(t, g.Generate(payloadPoolSize*2), len(g.pool))
}
