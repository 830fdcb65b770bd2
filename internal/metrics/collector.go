// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpRetrieval  = "retrieval"
	OpGeneration = "generation"
	OpEmbedding  = "embedding"
	OpImport     = "corpus_import"
	OpDispatch   = "task_dispatch"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`
}

// Snapshot represents the full service statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptimeSeconds"`
	CacheHits     int64                         `json:"cacheHits"`
	CacheMisses   int64                         `json:"cacheMisses"`
	Operations    map[string]OperationSnapshot  `json:"operations"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu          sync.RWMutex
	startTime   time.Time
	cacheHits   int64
	cacheMisses int64
	ops         map[string]*OperationMetrics
}

// NewCollector creates a collector with the clock started.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// Record adds one timed operation outcome.
func (c *Collector) Record(op string, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: elapsed, MaxTime: elapsed}
		c.ops[op] = m
	}
	m.Count++
	if err != nil {
		m.Failures++
	}
	m.TotalTime += elapsed
	if elapsed < m.MinTime {
		m.MinTime = elapsed
	}
	if elapsed > m.MaxTime {
		m.MaxTime = elapsed
	}
}

// RecordCache counts one retrieval-cache lookup outcome.
func (c *Collector) RecordCache(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
}

// Snapshot returns the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		CacheHits:     c.cacheHits,
		CacheMisses:   c.cacheMisses,
		Operations:    make(map[string]OperationSnapshot, len(c.ops)),
	}
	for op, m := range c.ops {
		s := OperationSnapshot{
			Count:       m.Count,
			Failures:    m.Failures,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			MinTimeMs:   m.MinTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
		}
		if m.Count > 0 {
			s.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		}
		snap.Operations[op] = s
	}
	return snap
}
