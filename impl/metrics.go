package impl

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/prometheus/client_golang/prometheus"
)

// walMetrics mirrors every counter in an atomic so Stats can be served
// without a registry.
type walMetrics struct {
	reg        prometheus.Registerer
	collectors []prometheus.Collector

	recordsAppended   counter
	bytesWritten      counter
	pagesWritten      counter
	fsyncs            counter
	flushCycles       counter
	backpressureWaits counter
}

type counter struct {
	n atomic.Uint64
	c prometheus.Counter
}

func (c *counter) add(v uint64) {
	c.n.Add(v)
	c.c.Add(float64(v))
}

func (c *counter) inc() {
	c.add(1)
}

func (c *counter) load() uint64 {
	return c.n.Load()
}

func newWALMetrics(w *walImpl, reg prometheus.Registerer) (*walMetrics, error) {
	labels := prometheus.Labels{"storage": w.storageName}
	m := &walMetrics{reg: reg}

	newCounter := func(c *counter, name, help string) {
		c.c = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gowal",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		m.collectors = append(m.collectors, c.c)
	}
	newGauge := func(name, help string, fn func() float64) {
		m.collectors = append(m.collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "gowal",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, fn))
	}

	newCounter(&m.recordsAppended, "records_appended_total", "Records appended to the log.")
	newCounter(&m.bytesWritten, "bytes_written_total", "Bytes written to segment files.")
	newCounter(&m.pagesWritten, "pages_written_total", "Pages written to segment files.")
	newCounter(&m.fsyncs, "fsyncs_total", "Segment file syncs.")
	newCounter(&m.flushCycles, "flush_cycles_total", "Disk writer cycles.")
	newCounter(&m.backpressureWaits, "backpressure_waits_total", "Appends throttled by the unflushed size cap.")
	newGauge("log_size_bytes", "Accounted size of all segments.", func() float64 {
		return float64(w.logSize.Load())
	})
	newGauge("segments", "Segments holding records.", func() float64 {
		return float64(w.segments.len())
	})
	newGauge("flushed_segment", "Segment of the durable watermark.", func() float64 {
		return float64(w.FlushedLSN().Segment)
	})
	newGauge("flushed_position", "Position of the durable watermark.", func() float64 {
		return float64(w.FlushedLSN().Position)
	})

	if reg == nil {
		return m, nil
	}
	for i, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			for _, registered := range m.collectors[:i] {
				reg.Unregister(registered)
			}
			return nil, errors.Wrap(err, "register wal metrics")
		}
	}
	return m, nil
}

func (m *walMetrics) unregister() {
	if m.reg == nil {
		return
	}
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
}

func (w *walImpl) Stats() db.Stats {
	m := w.metrics
	return db.Stats{
		RecordsAppended:   m.recordsAppended.load(),
		BytesWritten:      m.bytesWritten.load(),
		PagesWritten:      m.pagesWritten.load(),
		Fsyncs:            m.fsyncs.load(),
		FlushCycles:       m.flushCycles.load(),
		BackpressureWaits: m.backpressureWaits.load(),
		LogSize:           w.logSize.Load(),
		Segments:          w.segments.len(),
	}
}
