package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecord(t *testing.T) {
	c := NewCollector()

	c.Record(OpRetrieval, 100*time.Millisecond, nil)
	c.Record(OpRetrieval, 300*time.Millisecond, errors.New("backend down"))
	c.Record(OpDispatch, 50*time.Millisecond, nil)

	snap := c.Snapshot()
	retrieval, ok := snap.Operations[OpRetrieval]
	require.True(t, ok)
	assert.Equal(t, int64(2), retrieval.Count)
	assert.Equal(t, int64(1), retrieval.Failures)
	assert.Equal(t, int64(100), retrieval.MinTimeMs)
	assert.Equal(t, int64(300), retrieval.MaxTimeMs)
	assert.Equal(t, float64(200), retrieval.AvgTimeMs)

	dispatch := snap.Operations[OpDispatch]
	assert.Equal(t, int64(1), dispatch.Count)
	assert.Equal(t, int64(0), dispatch.Failures)
}

func TestCollectorCacheCounters(t *testing.T) {
	c := NewCollector()
	c.RecordCache(true)
	c.RecordCache(true)
	c.RecordCache(false)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
}
