package metrics

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector Prometheus metrics collector
type Collector struct {
	// GetRouteStats returns the current number of route groups and
	// backend addresses in the published routing table.
	GetRouteStats func() (groups int, backends int)

	// Info metric (always 1)
	proxyInfo *prometheus.Desc

	// Routing table metrics
	routeGroups   *prometheus.Desc
	routeBackends *prometheus.Desc

	// Match metrics
	matchesTotal        *prometheus.Desc
	catchAllTotal       *prometheus.Desc
	reloadsTotal        *prometheus.Desc
	reloadFailuresTotal *prometheus.Desc

	// Forward metrics
	forwardsTotal       *prometheus.Desc
	forwardsActive      *prometheus.Desc
	forwardBytesTx      *prometheus.Desc
	forwardBytesRx      *prometheus.Desc
	forwardLatencySum   *prometheus.Desc
	forwardLatencyCount *prometheus.Desc

	// Error metrics (low cardinality)
	proxyErrorsTotal *prometheus.Desc

	// Metrics counters (protected by mutex)
	metricsLock         sync.RWMutex
	matchesByPattern    map[string]float64
	catchAllFallbacks   float64
	reloads             float64
	reloadFailures      float64
	forwardsByKey       map[string]float64
	forwardsActiveByPat map[string]float64
	bytesTxByPattern    map[string]float64
	bytesRxByPattern    map[string]float64
	latencySumByKey     map[string]float64
	latencyCountByKey   map[string]float64
	proxyErrorsByKey    map[string]float64
}

// NewCollector creates a new metrics collector
func NewCollector(getRouteStats func() (int, int)) *Collector {
	return &Collector{
		GetRouteStats: getRouteStats,
		proxyInfo: prometheus.NewDesc(
			"hostpath_proxy_info",
			"Proxy process info metric (always 1)",
			[]string{"node", "pod"},
			nil,
		),
		routeGroups: prometheus.NewDesc(
			"hostpath_proxy_route_groups",
			"Number of pattern groups in the published routing table",
			[]string{"node", "pod"},
			nil,
		),
		routeBackends: prometheus.NewDesc(
			"hostpath_proxy_route_backends",
			"Number of backend addresses in the published routing table",
			[]string{"node", "pod"},
			nil,
		),
		matchesTotal: prometheus.NewDesc(
			"hostpath_proxy_matches_total",
			"Total requests resolved to a pattern group",
			[]string{"pattern", "node", "pod"},
			nil,
		),
		catchAllTotal: prometheus.NewDesc(
			"hostpath_proxy_catch_all_fallbacks_total",
			"Total requests that fell back to the catch-all group",
			[]string{"node", "pod"},
			nil,
		),
		reloadsTotal: prometheus.NewDesc(
			"hostpath_proxy_reloads_total",
			"Total successful routing table reloads",
			[]string{"node", "pod"},
			nil,
		),
		reloadFailuresTotal: prometheus.NewDesc(
			"hostpath_proxy_reload_failures_total",
			"Total routing table reloads rejected with a configuration error",
			[]string{"node", "pod"},
			nil,
		),
		forwardsTotal: prometheus.NewDesc(
			"hostpath_proxy_forwards_total",
			"Total forwarded connections by pattern, protocol and result",
			[]string{"pattern", "protocol", "result", "node", "pod"},
			nil,
		),
		forwardsActive: prometheus.NewDesc(
			"hostpath_proxy_forwards_active",
			"Currently active forwarded connections by pattern",
			[]string{"pattern", "node", "pod"},
			nil,
		),
		forwardBytesTx: prometheus.NewDesc(
			"hostpath_proxy_forward_bytes_tx_total",
			"Total bytes sent to backends by pattern",
			[]string{"pattern", "node", "pod"},
			nil,
		),
		forwardBytesRx: prometheus.NewDesc(
			"hostpath_proxy_forward_bytes_rx_total",
			"Total bytes received from backends by pattern",
			[]string{"pattern", "node", "pod"},
			nil,
		),
		forwardLatencySum: prometheus.NewDesc(
			"hostpath_proxy_forward_duration_seconds_sum",
			"Sum of forward durations by pattern and protocol",
			[]string{"pattern", "protocol", "node", "pod"},
			nil,
		),
		forwardLatencyCount: prometheus.NewDesc(
			"hostpath_proxy_forward_duration_seconds_count",
			"Count of measured forward durations by pattern and protocol",
			[]string{"pattern", "protocol", "node", "pod"},
			nil,
		),
		proxyErrorsTotal: prometheus.NewDesc(
			"hostpath_proxy_errors_total",
			"Total proxy errors by pattern and reason",
			[]string{"pattern", "reason", "node", "pod"},
			nil,
		),

		matchesByPattern:    make(map[string]float64),
		forwardsByKey:       make(map[string]float64),
		forwardsActiveByPat: make(map[string]float64),
		bytesTxByPattern:    make(map[string]float64),
		bytesRxByPattern:    make(map[string]float64),
		latencySumByKey:     make(map[string]float64),
		latencyCountByKey:   make(map[string]float64),
		proxyErrorsByKey:    make(map[string]float64),
	}
}

// RecordMatch records a request resolved to a pattern group. catchAll marks
// requests that reached the group through the fallback, not a real match.
func (c *Collector) RecordMatch(pattern string, catchAll bool) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.matchesByPattern[pattern]++
	if catchAll {
		c.catchAllFallbacks++
	}
}

// RecordReload records the outcome of a routing table reload.
func (c *Collector) RecordReload(success bool) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	if success {
		c.reloads++
	} else {
		c.reloadFailures++
	}
}

// IncActiveForward increments the active forwards gauge for a pattern.
func (c *Collector) IncActiveForward(pattern string) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.forwardsActiveByPat[pattern]++
}

// DecActiveForward decrements the active forwards gauge for a pattern.
func (c *Collector) DecActiveForward(pattern string) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	if c.forwardsActiveByPat[pattern] > 0 {
		c.forwardsActiveByPat[pattern]--
	}
}

// RecordProxyError records a proxy error by reason (low cardinality).
func (c *Collector) RecordProxyError(pattern, reason string) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.proxyErrorsByKey[pattern+":"+reason]++
}

// UpdateForwardMetrics updates forward counters after a bridge finishes.
func (c *Collector) UpdateForwardMetrics(pattern, protocol string, success bool, bytesTx, bytesRx int64, duration time.Duration) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	result := "success"
	if !success {
		result = "failure"
	}
	c.forwardsByKey[fmt.Sprintf("%s:%s:%s", pattern, protocol, result)]++
	c.bytesTxByPattern[pattern] += float64(bytesTx)
	c.bytesRxByPattern[pattern] += float64(bytesRx)
	if success {
		key := pattern + ":" + protocol
		c.latencySumByKey[key] += duration.Seconds()
		c.latencyCountByKey[key]++
	}
}

// Describe implements prometheus.Collector interface
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.proxyInfo
	ch <- c.routeGroups
	ch <- c.routeBackends
	ch <- c.matchesTotal
	ch <- c.catchAllTotal
	ch <- c.reloadsTotal
	ch <- c.reloadFailuresTotal
	ch <- c.forwardsTotal
	ch <- c.forwardsActive
	ch <- c.forwardBytesTx
	ch <- c.forwardBytesRx
	ch <- c.forwardLatencySum
	ch <- c.forwardLatencyCount
	ch <- c.proxyErrorsTotal
}

// Collect implements prometheus.Collector interface
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	nodeName := os.Getenv("NODE_NAME")
	if nodeName == "" {
		nodeName = "unknown"
	}

	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = os.Getenv("HOSTNAME")
		if podName == "" {
			podName = "unknown"
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.proxyInfo,
		prometheus.GaugeValue,
		1,
		nodeName, podName,
	)

	if c.GetRouteStats != nil {
		groups, backends := c.GetRouteStats()
		ch <- prometheus.MustNewConstMetric(
			c.routeGroups,
			prometheus.GaugeValue,
			float64(groups),
			nodeName, podName,
		)
		ch <- prometheus.MustNewConstMetric(
			c.routeBackends,
			prometheus.GaugeValue,
			float64(backends),
			nodeName, podName,
		)
	}

	c.metricsLock.RLock()
	defer c.metricsLock.RUnlock()

	for pattern, value := range c.matchesByPattern {
		ch <- prometheus.MustNewConstMetric(
			c.matchesTotal,
			prometheus.CounterValue,
			value,
			pattern, nodeName, podName,
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.catchAllTotal,
		prometheus.CounterValue,
		c.catchAllFallbacks,
		nodeName, podName,
	)
	ch <- prometheus.MustNewConstMetric(
		c.reloadsTotal,
		prometheus.CounterValue,
		c.reloads,
		nodeName, podName,
	)
	ch <- prometheus.MustNewConstMetric(
		c.reloadFailuresTotal,
		prometheus.CounterValue,
		c.reloadFailures,
		nodeName, podName,
	)

	for key, value := range c.forwardsByKey {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.forwardsTotal,
			prometheus.CounterValue,
			value,
			parts[0], parts[1], parts[2], nodeName, podName,
		)
	}

	for pattern, value := range c.forwardsActiveByPat {
		ch <- prometheus.MustNewConstMetric(
			c.forwardsActive,
			prometheus.GaugeValue,
			value,
			pattern, nodeName, podName,
		)
	}

	for pattern, value := range c.bytesTxByPattern {
		ch <- prometheus.MustNewConstMetric(
			c.forwardBytesTx,
			prometheus.CounterValue,
			value,
			pattern, nodeName, podName,
		)
	}
	for pattern, value := range c.bytesRxByPattern {
		ch <- prometheus.MustNewConstMetric(
			c.forwardBytesRx,
			prometheus.CounterValue,
			value,
			pattern, nodeName, podName,
		)
	}

	for key, value := range c.latencySumByKey {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.forwardLatencySum,
			prometheus.CounterValue,
			value,
			parts[0], parts[1], nodeName, podName,
		)
	}
	for key, value := range c.latencyCountByKey {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.forwardLatencyCount,
			prometheus.CounterValue,
			value,
			parts[0], parts[1], nodeName, podName,
		)
	}

	for key, value := range c.proxyErrorsByKey {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.proxyErrorsTotal,
			prometheus.CounterValue,
			value,
			parts[0], parts[1], nodeName, podName,
		)
	}
}
