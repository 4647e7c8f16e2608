package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/hostpath-proxy/pkg/config"
	"github.com/hostpath-proxy/pkg/logging"
	"github.com/hostpath-proxy/pkg/metrics"
	"github.com/hostpath-proxy/pkg/routing"
)

// NewProxyServer creates a new proxy server with rc as its initial routing
// configuration.
func NewProxyServer(cfg *config.Config, rc *config.RoutingConfig) (*ProxyServer, error) {
	registry := prometheus.NewRegistry()

	server := &ProxyServer{
		cfg:      cfg,
		registry: registry,
	}
	server.Publish(rc)

	collector := metrics.NewCollector(func() (int, int) {
		state := server.state.Load()
		backends := 0
		for i := range state.table.Groups {
			backends += len(state.table.Groups[i].Addrs)
		}
		return len(state.table.Groups), backends
	})

	server.collector = collector
	registry.MustRegister(collector)

	return server, nil
}

// Publish atomically replaces the routing table snapshot. Concurrent
// request handlers keep using the snapshot they already loaded.
func (s *ProxyServer) Publish(rc *config.RoutingConfig) {
	s.state.Store(&routeState{
		table:        &rc.Table,
		catchAll:     rc.CatchAll,
		rr:           make([]atomic.Uint64, len(rc.Table.Groups)),
		readTimeout:  time.Duration(rc.BackendReadTimeout) * time.Second,
		writeTimeout: time.Duration(rc.BackendWriteTimeout) * time.Second,
	})
}

// Reload rebuilds the routing table from the configured file and publishes
// it. On error the previous table stays live.
func (s *ProxyServer) Reload(path string) error {
	rc, err := config.LoadRoutingConf(path)
	if err != nil {
		if s.collector != nil {
			s.collector.RecordReload(false)
		}
		return err
	}
	s.Publish(rc)
	if s.collector != nil {
		s.collector.RecordReload(true)
	}
	s.LogRoutesTable()
	return nil
}

// Table returns the groups and catch-all index of the current snapshot.
func (s *ProxyServer) Table() ([]routing.Group, int) {
	state := s.state.Load()
	return state.table.Groups, state.catchAll
}

// LogRoutesTable prints the published routing table.
func (s *ProxyServer) LogRoutesTable() {
	state := s.state.Load()
	logging.Logf("[routes] %d group(s), catch-all=%q", len(state.table.Groups), state.table.Groups[state.catchAll].Pattern)
	for i := range state.table.Groups {
		g := &state.table.Groups[i]
		for _, addr := range g.Addrs {
			logging.Logf("[routes] pattern=%q backend=%s", g.Pattern, addr)
		}
	}
}

// StartMetricsServer starts the metrics server
func (s *ProxyServer) StartMetricsServer(metricsAddr, metricsPath string) error {
	http.Handle(metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
<head><title>Hostpath Proxy Exporter</title></head>
<body>
<h1>Hostpath Proxy Exporter</h1>
<p><a href="` + metricsPath + `">Metrics</a></p>
</body>
</html>`))
	})

	logging.Logf("[listen] metrics addr=%s path=%s health=/healthz", metricsAddr, metricsPath)
	return http.ListenAndServe(metricsAddr, nil)
}
