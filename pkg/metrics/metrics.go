// Package metrics provides Prometheus-compatible metrics for the METF runtime.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType defines the type of a metric.
type MetricType string

const (
	// TypeCounter is a monotonically increasing counter.
	TypeCounter MetricType = "counter"
	// TypeGauge is a value that can go up and down.
	TypeGauge MetricType = "gauge"
	// TypeHistogram is a histogram with configurable buckets.
	TypeHistogram MetricType = "histogram"
)

// Counter is a thread-safe counter metric.
type Counter struct {
	name  string
	help  string
	value atomic.Uint64
}

// NewCounter creates a new counter metric.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds the given value to the counter.
func (c *Counter) Add(delta uint64) {
	c.value.Add(delta)
}

// Value returns the current counter value.
func (c *Counter) Value() uint64 {
	return c.value.Load()
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Gauge is a thread-safe gauge metric.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// NewGauge creates a new gauge metric.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(value int64) {
	g.value.Store(value)
}

// SetUint64 sets the gauge to the given unsigned value.
func (g *Gauge) SetUint64(value uint64) {
	g.value.Store(int64(value))
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.value.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.value.Add(-1)
}

// Add adds the given value to the gauge.
func (g *Gauge) Add(delta int64) {
	g.value.Add(delta)
}

// Value returns the current gauge value.
func (g *Gauge) Value() int64 {
	return g.value.Load()
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Histogram is a thread-safe histogram metric.
type Histogram struct {
	mu      sync.RWMutex
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// DefaultHistogramBuckets are the default buckets for latency histograms,
// in seconds.
var DefaultHistogramBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
}

// NewHistogram creates a new histogram metric with the given buckets.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultHistogramBuckets
	}
	sortedBuckets := make([]float64, len(buckets))
	copy(sortedBuckets, buckets)
	sort.Float64s(sortedBuckets)

	return &Histogram{
		name:    name,
		help:    help,
		buckets: sortedBuckets,
		counts:  make([]uint64, len(sortedBuckets)),
	}
}

// Observe records a value in the smallest bucket that holds it. Values
// above the last bucket only count towards +Inf.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++

	for i, bucket := range h.buckets {
		if value <= bucket {
			h.counts[i]++
			break
		}
	}
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Snapshot returns a snapshot of the histogram with cumulative bucket
// counts, as exposed to Prometheus.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := HistogramSnapshot{
		Buckets: make([]HistogramBucket, len(h.buckets)),
		Sum:     h.sum,
		Count:   h.count,
	}

	var cumulative uint64
	for i, bucket := range h.buckets {
		cumulative += h.counts[i]
		snap.Buckets[i] = HistogramBucket{UpperBound: bucket, Count: cumulative}
	}

	return snap
}

// HistogramSnapshot is a point-in-time snapshot of a histogram.
type HistogramSnapshot struct {
	Buckets []HistogramBucket
	Sum     float64
	Count   uint64
}

// HistogramBucket is one cumulative bucket of a histogram.
type HistogramBucket struct {
	UpperBound float64
	Count      uint64
}

// Metric is the interface for all metrics.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
}

// Metrics holds all metrics of one METF bank.
type Metrics struct {
	mu      sync.RWMutex
	metrics map[string]Metric

	// Counters
	TransactionsProcessed *Counter
	TransactionsFailed    *Counter
	SignaturesVerified    *Counter
	InstructionsExecuted  *Counter
	ComputeUnitsConsumed  *Counter
	PersonTokensIssued    *Counter
	AccountsCommitted     *Counter
	AirdropLamports       *Counter

	// Gauges
	CurrentSlot   *Gauge
	AccountsCount *Gauge
	TotalLamports *Gauge
	PersonsCount  *Gauge
	DBSizeBytes   *Gauge

	// Histograms
	TransactionDuration *Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics() *Metrics {
	m := &Metrics{
		metrics: make(map[string]Metric),

		TransactionsProcessed: NewCounter("metf_transactions_processed_total", "Total number of transactions processed"),
		TransactionsFailed:    NewCounter("metf_transactions_failed_total", "Total number of transactions rejected or rolled back"),
		SignaturesVerified:    NewCounter("metf_signatures_verified_total", "Total number of transaction signatures verified"),
		InstructionsExecuted:  NewCounter("metf_instructions_executed_total", "Total number of top-level instructions executed"),
		ComputeUnitsConsumed:  NewCounter("metf_compute_units_consumed_total", "Total compute units consumed by committed transactions"),
		PersonTokensIssued:    NewCounter("metf_person_tokens_issued_total", "Total number of person tokens issued"),
		AccountsCommitted:     NewCounter("metf_accounts_committed_total", "Total number of account writes committed"),
		AirdropLamports:       NewCounter("metf_airdrop_lamports_total", "Total lamports minted by the faucet"),

		CurrentSlot:   NewGauge("metf_current_slot", "Current bank slot"),
		AccountsCount: NewGauge("metf_accounts_count", "Total number of accounts in the ledger"),
		TotalLamports: NewGauge("metf_total_lamports", "Sum of lamports held by all accounts"),
		PersonsCount:  NewGauge("metf_persons_count", "Number of Person records in the ledger"),
		DBSizeBytes:   NewGauge("metf_db_size_bytes", "Ledger database size in bytes"),

		TransactionDuration: NewHistogram(
			"metf_transaction_duration_seconds",
			"Transaction processing duration in seconds",
			DefaultHistogramBuckets,
		),
	}

	for _, metric := range []Metric{
		m.TransactionsProcessed, m.TransactionsFailed, m.SignaturesVerified,
		m.InstructionsExecuted, m.ComputeUnitsConsumed, m.PersonTokensIssued,
		m.AccountsCommitted, m.AirdropLamports,
		m.CurrentSlot, m.AccountsCount, m.TotalLamports, m.PersonsCount, m.DBSizeBytes,
		m.TransactionDuration,
	} {
		m.register(metric)
	}

	return m
}

func (m *Metrics) register(metric Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[metric.Name()] = metric
}

// Get returns a metric by name.
func (m *Metrics) Get(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics[name]
}

// Format formats all metrics in Prometheus text format.
func (m *Metrics) Format() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.metrics))
	for name := range m.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(formatMetric(m.metrics[name]))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMetric(metric Metric) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", metric.Name(), metric.Help()))
	sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", metric.Name(), metric.Type()))

	switch m := metric.(type) {
	case *Counter:
		sb.WriteString(fmt.Sprintf("%s %d\n", m.Name(), m.Value()))
	case *Gauge:
		sb.WriteString(fmt.Sprintf("%s %d\n", m.Name(), m.Value()))
	case *Histogram:
		snap := m.Snapshot()
		for _, bucket := range snap.Buckets {
			sb.WriteString(fmt.Sprintf("%s_bucket{le=\"%g\"} %d\n", m.Name(), bucket.UpperBound, bucket.Count))
		}
		sb.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", m.Name(), snap.Count))
		sb.WriteString(fmt.Sprintf("%s_sum %.6f\n", m.Name(), snap.Sum))
		sb.WriteString(fmt.Sprintf("%s_count %d\n", m.Name(), snap.Count))
	}

	return sb.String()
}

// RecordTransaction records the outcome of one processed transaction.
// Failed transactions consume no compute and commit no accounts.
func (m *Metrics) RecordTransaction(success bool, signatures, instructions int, computeUnits uint64, committed int, duration time.Duration) {
	m.TransactionsProcessed.Inc()
	m.SignaturesVerified.Add(uint64(signatures))
	m.TransactionDuration.ObserveDuration(duration)
	if !success {
		m.TransactionsFailed.Inc()
		return
	}
	m.InstructionsExecuted.Add(uint64(instructions))
	m.ComputeUnitsConsumed.Add(computeUnits)
	m.AccountsCommitted.Add(uint64(committed))
}
