package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type sourceStat struct {
	upstreamCalls int64
	cacheHits     int64
	cacheMisses   int64
	rateLimited   int64
}

var (
	warnsTotal  int64
	errorsTotal int64
	sources     sync.Map // map[string]*sourceStat
)

func recordWarn(component string) {
	_ = component
	atomic.AddInt64(&warnsTotal, 1)
}

func recordError(component string) {
	_ = component
	atomic.AddInt64(&errorsTotal, 1)
}

func sourceStats(name string) *sourceStat {
	v, _ := sources.LoadOrStore(name, &sourceStat{})
	return v.(*sourceStat)
}

// IncrementUpstreamCall records one upstream API request for a source.
func IncrementUpstreamCall(source string) {
	atomic.AddInt64(&sourceStats(source).upstreamCalls, 1)
}

// IncrementCacheHit records a cache hit for a source.
func IncrementCacheHit(source string) {
	atomic.AddInt64(&sourceStats(source).cacheHits, 1)
}

// IncrementCacheMiss records a cache miss for a source.
func IncrementCacheMiss(source string) {
	atomic.AddInt64(&sourceStats(source).cacheMisses, 1)
}

// IncrementRateLimited records a request rejected by the token bucket.
func IncrementRateLimited(source string) {
	atomic.AddInt64(&sourceStats(source).rateLimited, 1)
}

// StartReport begins periodic logging of system and per-source statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	sourceData := map[string]map[string]int64{}
	sources.Range(func(k, v any) bool {
		name := k.(string)
		st := v.(*sourceStat)
		sourceData[name] = map[string]int64{
			"upstream_calls": atomic.LoadInt64(&st.upstreamCalls),
			"cache_hits":     atomic.LoadInt64(&st.cacheHits),
			"cache_misses":   atomic.LoadInt64(&st.cacheMisses),
			"rate_limited":   atomic.LoadInt64(&st.rateLimited),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"warns_total":  atomic.LoadInt64(&warnsTotal),
		"errors_total": atomic.LoadInt64(&errorsTotal),
		"goroutines":   runtime.NumGoroutine(),
		"cpu_percent":  cpuPct,
		"sources":      sourceData,
	}
	if memStats != nil {
		fields["memory_mb"] = int64(memStats.Used) / 1024 / 1024
	}
	if diskStats != nil {
		fields["disk_mb"] = int64(diskStats.Used) / 1024 / 1024
	}

	entry := log.WithComponent("report").WithFields(fields)
	entry.Info("system report")

	for name, st := range sourceData {
		f := Fields{"source": name}
		entry.LogMetric("report", "upstream_calls", st["upstream_calls"], "gauge", f)
		entry.LogMetric("report", "cache_hits", st["cache_hits"], "gauge", f)
		entry.LogMetric("report", "cache_misses", st["cache_misses"], "gauge", f)
		entry.LogMetric("report", "rate_limited", st["rate_limited"], "gauge", f)
	}
}
