package handler

import (
	"context"
	"io"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/session"
)

const metricsInterval = 7 * time.Second

// TickCounter reports how many countdowns share the tick source.
type TickCounter interface {
	Subscribers() int
}

// SystemHandler reports gateway health and streams host, runtime and
// session metrics to operators via SSE.
type SystemHandler struct {
	rdb       redis.Cmdable
	registry  *session.Registry
	ticks     TickCounter
	proc      procFS
	startTime time.Time
	log       zerolog.Logger

	// several operators may stream at once
	mu   sync.Mutex
	prev cpuTimes
}

func NewSystemHandler(rdb redis.Cmdable, registry *session.Registry, ticks TickCounter, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		rdb:       rdb,
		registry:  registry,
		ticks:     ticks,
		proc:      procFS{root: "/proc"},
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
	h.prev, _ = h.proc.cpuTimes()
	return h
}

type hostMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	Load1         float64 `json:"load_avg_1"`
}

type runtimeMetrics struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	RSSBytes   uint64 `json:"rss_bytes"`
}

type sessionMetrics struct {
	Live            int   `json:"live"`
	TickSubscribers int   `json:"tick_subscribers"`
	QueuedEvents    int64 `json:"queued_events"`
}

type systemMetrics struct {
	Timestamp int64          `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Host      hostMetrics    `json:"host"`
	Runtime   runtimeMetrics `json:"runtime"`
	Sessions  sessionMetrics `json:"sessions"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Health check: redis unreachable")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	response.Success(c, code, gin.H{
		"status":   status,
		"sessions": h.registry.Len(),
		"uptime":   formatDuration(time.Since(h.startTime)),
	})
}

// SystemMetricsSSE godoc
// GET /ops/v1/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	h.log.Info().Msg("Operator connected to system metrics SSE")
	defer h.log.Info().Msg("Operator disconnected from system metrics SSE")

	ctx := c.Request.Context()
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	c.SSEvent("metrics", h.collect(ctx))
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.SSEvent("metrics", h.collect(ctx))
			return true
		}
	})
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
	}

	if now, err := h.proc.cpuTimes(); err == nil {
		h.mu.Lock()
		m.Host.CPUPercent = now.busySince(h.prev)
		h.prev = now
		h.mu.Unlock()
	}
	if total, avail, err := h.proc.memory(); err == nil {
		m.Host.MemTotalBytes = total
		m.Host.MemUsedBytes = total - avail
	}
	m.Host.Load1, _ = h.proc.load1()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Runtime = runtimeMetrics{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		NumGC:      ms.NumGC,
	}
	m.Runtime.RSSBytes, _ = h.proc.rss()

	m.Sessions.Live = h.registry.Len()
	if h.ticks != nil {
		m.Sessions.TickSubscribers = h.ticks.Subscribers()
	}
	if n, err := h.rdb.LLen(ctx, config.WorkerKey.PersistSessionEventsQueue).Result(); err == nil {
		m.Sessions.QueuedEvents = n
	} else {
		h.log.Debug().Err(err).Msg("Failed to read event queue length")
	}

	return m
}
