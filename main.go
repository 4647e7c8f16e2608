package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/hostpath-proxy/pkg/config"
	"github.com/hostpath-proxy/pkg/logging"
	"github.com/hostpath-proxy/pkg/server"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	configFile    = kingpin.Flag("config.file", "Path to configuration file.").Default("config.yaml").String()
	routingConf   = kingpin.Flag("routing.conf", "Path to the routing configuration file.").String()
	listenAddress = kingpin.Flag("web.listen-address", "Address to listen on for web interface and telemetry.").Default(":9090").String()
	telemetryPath = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
	bindAddr      = kingpin.Flag("bind-addr", "Address to bind for proxy (listening)").Default(":3000").String()

	// Global config
	appConfig *config.Config
)

func main() {
	kingpin.Parse()

	// Load configuration
	var err error
	appConfig, err = config.LoadConfig(*configFile)
	if err != nil {
		// If config file doesn't exist, continue with defaults
		logging.Logf("Warning: Failed to load config file: %v, using defaults", err)
		appConfig = &config.Config{}
		appConfig.SetDefaults()
		appConfig.ApplyEnvOverrides()
	}
	if *routingConf != "" {
		appConfig.Proxy.RoutingConf = *routingConf
	}

	instanceID := logging.GetInstanceID()
	logging.Logf("Proxy initialized with ID: %s", instanceID)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logging.Log("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		logging.Fatalf("Proxy error: %v", err)
	}
}

func run(ctx context.Context) error {
	// The routing table is built before anything listens. A broken
	// configuration refuses to start: no partial table ever goes live.
	rc, err := config.LoadRoutingConf(appConfig.Proxy.RoutingConf)
	if err != nil {
		return fmt.Errorf("failed to load routing configuration: %v", err)
	}

	if rc.TicketKeys != nil {
		logging.Logf("Loaded %d TLS session ticket key(s)", len(rc.TicketKeys.Keys))
	}
	if rc.Workers > 0 {
		runtime.GOMAXPROCS(int(rc.Workers))
	}

	proxyServer, err := server.NewProxyServer(appConfig, rc)
	if err != nil {
		return fmt.Errorf("failed to create proxy server: %v", err)
	}
	proxyServer.LogRoutesTable()

	// Bind address: frontend option from the routing conf wins, then the
	// config file, then the command line.
	network := "tcp"
	bindAddress := *bindAddr
	if appConfig.Proxy.BindAddr != "" {
		bindAddress = appConfig.Proxy.BindAddr
	}
	if rc.FrontendUnix {
		network = "unix"
		bindAddress = rc.FrontendHost
	} else if rc.FrontendHost != "" {
		bindAddress = net.JoinHostPort(rc.FrontendHost, strconv.Itoa(int(rc.FrontendPort)))
	}

	go func() {
		if err := proxyServer.StartProxyListener(network, bindAddress, appConfig); err != nil {
			logging.Fatalf("Proxy listener error: %v", err)
		}
	}()

	// SIGHUP rebuilds the routing table and publishes it atomically; a
	// failed rebuild keeps the old table serving.
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-hupChan:
				logging.Log("Received SIGHUP, reloading routing configuration...")
				if err := proxyServer.Reload(appConfig.Proxy.RoutingConf); err != nil {
					logging.Logf("Reload failed, keeping previous routing table: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Get metrics config from command line or config file
	metricsPath := *telemetryPath
	metricsAddr := *listenAddress
	if appConfig.Proxy.TelemetryPath != "" {
		metricsPath = appConfig.Proxy.TelemetryPath
	}
	if appConfig.Proxy.ListenAddress != "" {
		metricsAddr = appConfig.Proxy.ListenAddress
	}

	return proxyServer.StartMetricsServer(metricsAddr, metricsPath)
}
