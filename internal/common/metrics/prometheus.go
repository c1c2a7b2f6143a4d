// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	bookingsTotal        *prometheus.CounterVec
	bookingDuration      prometheus.Histogram
	bookingsExpiredTotal prometheus.Counter
	inventoryReserves    *prometheus.CounterVec
	visitTransitions     *prometheus.CounterVec
	cacheHitsTotal       *prometheus.CounterVec
	cacheMissesTotal     *prometheus.CounterVec
	eventsPublished      *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// New 创建指标收集器，每个收集器使用独立的 Registry
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "housing"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		httpRequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		}),
		bookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result kind",
		}, []string{"result"}),
		bookingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_duration_seconds",
			Help:      "Create booking latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		bookingsExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_expired_total",
			Help:      "Bookings moved to EXPIRED by the sweep",
		}),
		inventoryReserves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_reserves_total",
			Help:      "Inventory reserve attempts",
		}, []string{"result"}),
		visitTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visit_transitions_total",
			Help:      "Visit status transitions",
		}, []string{"from", "to"}),
		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}, []string{"cache"}),
		cacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}, []string{"cache"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published",
		}, []string{"type", "status"}),
		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent by channel",
		}, []string{"channel", "status"}),
	}
}

// Init 初始化全局指标收集器，只生效一次
func Init(namespace string) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(namespace)
	})
	return defaultMetrics
}

// GetMetrics 获取默认指标收集器
func GetMetrics() *Metrics {
	return Init("")
}

// Middleware 返回 Gin 中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()

		c.Next()

		m.httpRequestsInFlight.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 Prometheus HTTP 处理器
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordBooking 记录一次下单结果
func (m *Metrics) RecordBooking(result string, duration time.Duration) {
	m.bookingsTotal.WithLabelValues(result).Inc()
	m.bookingDuration.Observe(duration.Seconds())
}

// RecordInventoryReserve 记录库存预留
func (m *Metrics) RecordInventoryReserve(ok bool) {
	result := "ok"
	if !ok {
		result = "insufficient"
	}
	m.inventoryReserves.WithLabelValues(result).Inc()
}

// RecordVisitTransition 记录看房状态变更
func (m *Metrics) RecordVisitTransition(from, to string) {
	m.visitTransitions.WithLabelValues(from, to).Inc()
}

// AddBookingsExpired 累加过期预订数
func (m *Metrics) AddBookingsExpired(n int64) {
	if n > 0 {
		m.bookingsExpiredTotal.Add(float64(n))
	}
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cache string) {
	m.cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cache string) {
	m.cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordEvent 记录领域事件发布
func (m *Metrics) RecordEvent(eventType string, ok bool) {
	m.eventsPublished.WithLabelValues(eventType, statusLabel(ok)).Inc()
}

// RecordNotification 记录通知发送
func (m *Metrics) RecordNotification(channel string, ok bool) {
	m.notificationsTotal.WithLabelValues(channel, statusLabel(ok)).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

// RecordBooking 全局记录下单结果
func RecordBooking(result string, duration time.Duration) {
	GetMetrics().RecordBooking(result, duration)
}

// RecordInventoryReserve 全局记录库存预留
func RecordInventoryReserve(ok bool) {
	GetMetrics().RecordInventoryReserve(ok)
}

// RecordVisitTransition 全局记录看房状态变更
func RecordVisitTransition(from, to string) {
	GetMetrics().RecordVisitTransition(from, to)
}

// AddBookingsExpired 全局累加过期预订数
func AddBookingsExpired(n int64) {
	GetMetrics().AddBookingsExpired(n)
}

// RecordCacheHitGlobal 全局记录缓存命中
func RecordCacheHitGlobal(cache string) {
	GetMetrics().RecordCacheHit(cache)
}

// RecordCacheMissGlobal 全局记录缓存未命中
func RecordCacheMissGlobal(cache string) {
	GetMetrics().RecordCacheMiss(cache)
}

// RecordEvent 全局记录领域事件
func RecordEvent(eventType string, ok bool) {
	GetMetrics().RecordEvent(eventType, ok)
}

// RecordNotification 全局记录通知
func RecordNotification(channel string, ok bool) {
	GetMetrics().RecordNotification(channel, ok)
}
