package kvlite

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus
// (see examples/observability).
type MetricsCollector interface {
	// RecordWrite is called after each single-key mutation.
	// op is one of "add", "upsert", "update", "delete", "insert",
	// "replace", "set" or "remove".
	RecordWrite(op string, duration time.Duration, err error)

	// RecordGet is called after each single-key lookup.
	RecordGet(found bool, duration time.Duration, err error)

	// RecordBulk is called after each bulk operation.
	// records is the input size, groups the number of shards it touched.
	RecordBulk(op string, records, groups int, duration time.Duration, err error)

	// RecordScan is called when a scan stops, with the number of records yielded.
	RecordScan(records int, duration time.Duration, err error)

	// RecordTransaction is called when a transaction ends.
	RecordTransaction(committed bool, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWrite(string, time.Duration, error)          {}
func (NoopMetricsCollector) RecordGet(bool, time.Duration, error)              {}
func (NoopMetricsCollector) RecordBulk(string, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordScan(int, time.Duration, error)              {}
func (NoopMetricsCollector) RecordTransaction(bool, time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteTotalNanos atomic.Int64
	GetCount        atomic.Int64
	GetHits         atomic.Int64
	GetErrors       atomic.Int64
	GetTotalNanos   atomic.Int64
	BulkCount       atomic.Int64
	BulkRecords     atomic.Int64
	BulkErrors      atomic.Int64
	ScanCount       atomic.Int64
	ScanRecords     atomic.Int64
	ScanErrors      atomic.Int64
	TxCommitted     atomic.Int64
	TxRolledBack    atomic.Int64
	TxErrors        atomic.Int64
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(_ string, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(found bool, duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if found {
		b.GetHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordBulk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBulk(_ string, records, _ int, _ time.Duration, err error) {
	b.BulkCount.Add(1)
	b.BulkRecords.Add(int64(records))
	if err != nil {
		b.BulkErrors.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(records int, _ time.Duration, err error) {
	b.ScanCount.Add(1)
	b.ScanRecords.Add(int64(records))
	if err != nil {
		b.ScanErrors.Add(1)
	}
}

// RecordTransaction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTransaction(committed bool, _ time.Duration, err error) {
	switch {
	case err != nil:
		b.TxErrors.Add(1)
	case committed:
		b.TxCommitted.Add(1)
	default:
		b.TxRolledBack.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		WriteCount:    b.WriteCount.Load(),
		WriteErrors:   b.WriteErrors.Load(),
		WriteAvgNanos: avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		GetCount:      b.GetCount.Load(),
		GetHits:       b.GetHits.Load(),
		GetErrors:     b.GetErrors.Load(),
		GetAvgNanos:   avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		BulkCount:     b.BulkCount.Load(),
		BulkRecords:   b.BulkRecords.Load(),
		BulkErrors:    b.BulkErrors.Load(),
		ScanCount:     b.ScanCount.Load(),
		ScanRecords:   b.ScanRecords.Load(),
		ScanErrors:    b.ScanErrors.Load(),
		TxCommitted:   b.TxCommitted.Load(),
		TxRolledBack:  b.TxRolledBack.Load(),
		TxErrors:      b.TxErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	WriteCount    int64
	WriteErrors   int64
	WriteAvgNanos int64
	GetCount      int64
	GetHits       int64
	GetErrors     int64
	GetAvgNanos   int64
	BulkCount     int64
	BulkRecords   int64
	BulkErrors    int64
	ScanCount     int64
	ScanRecords   int64
	ScanErrors    int64
	TxCommitted   int64
	TxRolledBack  int64
	TxErrors      int64
}
