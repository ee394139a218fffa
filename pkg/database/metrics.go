package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/v2/event"
)

type poolStat struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics as Prometheus metrics.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	service string
	stats   []poolStat
}

func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	labels := []string{"service"}
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) poolStat {
		return poolStat{prometheus.NewDesc(name, help, labels, nil), prometheus.GaugeValue, fn}
	}
	counter := func(name, help string, fn func(*pgxpool.Stat) float64) poolStat {
		return poolStat{prometheus.NewDesc(name, help, labels, nil), prometheus.CounterValue, fn}
	}

	return &PoolStatsCollector{
		pool:    pool,
		service: service,
		stats: []poolStat{
			gauge("db_pool_acquired_connections", "Number of currently acquired connections",
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
			gauge("db_pool_idle_connections", "Number of currently idle connections",
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
			gauge("db_pool_total_connections", "Total number of connections in the pool",
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
			gauge("db_pool_max_connections", "Maximum number of connections allowed",
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
			counter("db_pool_acquire_count_total", "Total number of connection acquires",
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }),
			counter("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections in seconds",
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }),
			counter("db_pool_canceled_acquire_count_total", "Total number of canceled connection acquires",
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }),
			counter("db_pool_empty_acquire_count_total", "Total number of acquires that had to wait for a connection",
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }),
		},
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.stats {
		ch <- s.desc
	}
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for _, s := range c.stats {
		ch <- prometheus.MustNewConstMetric(s.desc, s.valueType, s.value(stat), c.service)
	}
}

// RegisterPoolMetrics registers a pgxpool collector with the default registry.
func RegisterPoolMetrics(pool *pgxpool.Pool, service string) {
	prometheus.MustRegister(NewPoolStatsCollector(pool, service))
}

var (
	mongoPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mongo_pool_connections",
			Help: "Open connections in the MongoDB driver pool",
		},
		[]string{"service"},
	)
	mongoPoolCheckedOut = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mongo_pool_checked_out_connections",
			Help: "Connections currently checked out of the MongoDB driver pool",
		},
		[]string{"service"},
	)
	mongoPoolCheckoutFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongo_pool_checkout_failures_total",
			Help: "Failed attempts to check a connection out of the MongoDB driver pool",
		},
		[]string{"service"},
	)
)

// CMAP event names emitted by the driver.
const (
	mongoConnectionCreated       = "ConnectionCreated"
	mongoConnectionClosed        = "ConnectionClosed"
	mongoConnectionCheckedOut    = "ConnectionCheckedOut"
	mongoConnectionCheckedIn     = "ConnectionCheckedIn"
	mongoConnectionCheckOutFailed = "ConnectionCheckOutFailed"
)

// NewMongoPoolMonitor returns a pool monitor that feeds the mongo_pool_*
// metrics for service.
func NewMongoPoolMonitor(service string) *event.PoolMonitor {
	conns := mongoPoolConnections.WithLabelValues(service)
	checkedOut := mongoPoolCheckedOut.WithLabelValues(service)
	failures := mongoPoolCheckoutFailures.WithLabelValues(service)

	return &event.PoolMonitor{
		Event: func(e *event.PoolEvent) {
			switch e.Type {
			case mongoConnectionCreated:
				conns.Inc()
			case mongoConnectionClosed:
				conns.Dec()
			case mongoConnectionCheckedOut:
				checkedOut.Inc()
			case mongoConnectionCheckedIn:
				checkedOut.Dec()
			case mongoConnectionCheckOutFailed:
				failures.Inc()
			}
		},
	}
}
