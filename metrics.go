package sbits

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the engine's I/O counters to a prometheus registry.
// Register it with the embedding process's registry; each scrape reads the
// live stats. Collection must not race with engine operations (the engine is
// single-threaded), so scrape from the goroutine driving the engine or stop
// writes first.
type Collector struct {
	db *DB

	reads      *prometheus.Desc
	writes     *prometheus.Desc
	idxReads   *prometheus.Desc
	idxWrites  *prometheus.Desc
	bufferHits *prometheus.Desc
}

func NewCollector(db *DB) *Collector {
	return &Collector{
		db:         db,
		reads:      prometheus.NewDesc("sbits_page_reads_total", "Data pages read from storage.", nil, nil),
		writes:     prometheus.NewDesc("sbits_page_writes_total", "Data pages written to storage.", nil, nil),
		idxReads:   prometheus.NewDesc("sbits_index_page_reads_total", "Index pages read from storage.", nil, nil),
		idxWrites:  prometheus.NewDesc("sbits_index_page_writes_total", "Index pages written to storage.", nil, nil),
		bufferHits: prometheus.NewDesc("sbits_buffer_hits_total", "Page requests served from the read buffers.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.reads
	ch <- c.writes
	ch <- c.idxReads
	ch <- c.idxWrites
	ch <- c.bufferHits
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.db.Stats()
	ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(s.Reads))
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(s.Writes))
	ch <- prometheus.MustNewConstMetric(c.idxReads, prometheus.CounterValue, float64(s.IdxReads))
	ch <- prometheus.MustNewConstMetric(c.idxWrites, prometheus.CounterValue, float64(s.IdxWrites))
	ch <- prometheus.MustNewConstMetric(c.bufferHits, prometheus.CounterValue, float64(s.BufferHits))
}
