package metrics

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"thumbnail-engine/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	CacheStats(ctx context.Context) (Stats, error)
}

// Stats holds the current cache statistics
type Stats struct {
	Backend string
	Entries int64
	Bytes   int64
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		GoMemLimit.Set(float64(limit))
	}

	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats, err := c.statsProvider.CacheStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	CacheEntries.WithLabelValues(stats.Backend).Set(float64(stats.Entries))
	CacheSizeBytes.WithLabelValues(stats.Backend).Set(float64(stats.Bytes))

	logging.Debug("Metrics collected: backend=%s, entries=%d, bytes=%d, goroutines=%d",
		stats.Backend, stats.Entries, stats.Bytes, runtime.NumGoroutine())
}
