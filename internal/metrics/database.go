package metrics

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is the subset of pgxpool.Stat exported as metrics.
type PoolStats struct {
	Total         int32
	Acquired      int32
	Idle          int32
	Max           int32
	AcquireCount  int64
	EmptyAcquires int64
	AcquireWait   time.Duration
}

// PoolCollector reads pool statistics at scrape time.
type PoolCollector struct {
	stats func() PoolStats

	total         *prometheus.Desc
	acquired      *prometheus.Desc
	idle          *prometheus.Desc
	max           *prometheus.Desc
	acquireCount  *prometheus.Desc
	emptyAcquires *prometheus.Desc
	acquireWait   *prometheus.Desc
}

// NewPoolCollector reports on pool. Register it with Registry.MustRegister.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return newPoolCollector(func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Total:         s.TotalConns(),
			Acquired:      s.AcquiredConns(),
			Idle:          s.IdleConns(),
			Max:           s.MaxConns(),
			AcquireCount:  s.AcquireCount(),
			EmptyAcquires: s.EmptyAcquireCount(),
			AcquireWait:   s.AcquireDuration(),
		}
	})
}

func newPoolCollector(stats func() PoolStats) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db", name), help, nil, nil)
	}
	return &PoolCollector{
		stats:         stats,
		total:         desc("connections_open", "Total number of open database connections"),
		acquired:      desc("connections_in_use", "Number of database connections currently acquired"),
		idle:          desc("connections_idle", "Number of idle database connections"),
		max:           desc("connections_max_open", "Maximum number of open database connections allowed"),
		acquireCount:  desc("acquires_total", "Total number of successful connection acquires"),
		emptyAcquires: desc("empty_acquires_total", "Acquires that had to wait because the pool was empty"),
		acquireWait:   desc("acquire_wait_seconds_total", "Total time spent waiting to acquire a connection"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
	ch <- c.acquireCount
	ch <- c.emptyAcquires
	ch <- c.acquireWait
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(s.EmptyAcquires))
	ch <- prometheus.MustNewConstMetric(c.acquireWait, prometheus.CounterValue, s.AcquireWait.Seconds())
}
