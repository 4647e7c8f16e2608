package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/hostpath-proxy/pkg/config"
	"github.com/hostpath-proxy/pkg/metrics"
	"github.com/hostpath-proxy/pkg/routing"
)

// routeState is one published snapshot of the routing table. The table is
// immutable; the per-group counters drive round-robin backend selection.
// Reload builds a fresh routeState and swaps the pointer, so concurrent
// readers always see a complete table.
type routeState struct {
	table    *routing.Table
	catchAll int
	rr       []atomic.Uint64

	// backend socket deadlines from the routing conf, zero when unset
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// ProxyServer proxy server
type ProxyServer struct {
	cfg       *config.Config
	state     atomic.Pointer[routeState]
	registry  *prometheus.Registry
	collector *metrics.Collector

	// accept EOF log throttling (to avoid flooding debug logs)
	acceptEOFLock       sync.Mutex
	acceptEOFLastLogAt  time.Time
	acceptEOFSuppressed int
}
