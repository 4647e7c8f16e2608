package server

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/hostpath-proxy/pkg/config"
	"github.com/hostpath-proxy/pkg/logging"
	"github.com/hostpath-proxy/pkg/proxy"
	"github.com/hostpath-proxy/pkg/routing"
)

// StartProxyListener starts the proxy listener. network is "tcp" or "unix"
// depending on the configured frontend.
func (s *ProxyServer) StartProxyListener(network, bindAddr string, cfg *config.Config) error {
	listener, err := net.Listen(network, bindAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", bindAddr, err)
	}

	logging.Logf("[listen] proxy network=%s addr=%s", network, bindAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			logging.Logf("Error accepting connection: %v", err)
			continue
		}

		go s.handleConnection(conn, cfg)
	}
}

func (s *ProxyServer) handleConnection(conn net.Conn, cfg *config.Config) {
	defer conn.Close()

	remote := ""
	if conn.RemoteAddr() != nil {
		remote = conn.RemoteAddr().String()
	}

	if cfg != nil && cfg.Log.Level == "debug" {
		logging.Logf("[request][debug] new connection (remote=%s)", remote)
	}

	// Read initial data to classify the connection.
	buf := make([]byte, 4096)
	readTimeout := 5 * time.Second
	if cfg != nil {
		readTimeout = cfg.GetReadTimeout()
	}
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	n, err := conn.Read(buf)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		if err == io.EOF {
			s.logAcceptEOF(remote, cfg)
		} else {
			logging.Logf("[accept] Error reading connection (remote=%s): %v", remote, err)
		}
		return
	}
	initial := buf[:n]

	req := proxy.Sniff(initial)

	// The matcher never fails: any ambiguity resolves to the catch-all
	// group, so every connection has somewhere to go.
	state := s.state.Load()
	idx := state.table.Match(req.Authority, req.RawPath, state.catchAll)
	group := &state.table.Groups[idx]
	backend := pickBackend(group, &state.rr[idx])

	if s.collector != nil {
		s.collector.RecordMatch(group.Pattern, idx == state.catchAll)
	}
	if cfg != nil && cfg.Log.Level == "debug" {
		logging.Logf("[request][debug] matched (remote=%s protocol=%s authority=%q path=%q pattern=%q backend=%s)",
			remote, req.Protocol, req.Authority, req.RawPath, group.Pattern, backend)
	}

	srcReader := &proxy.BufferedConn{Conn: conn, Buf: initial}
	s.forward(srcReader, conn, group.Pattern, req.Protocol, backend, cfg, state)
}

// pickBackend rotates round-robin over the group's load-balancing
// candidates.
func pickBackend(group *routing.Group, counter *atomic.Uint64) routing.Backend {
	n := counter.Add(1) - 1
	return group.Addrs[n%uint64(len(group.Addrs))]
}

func (s *ProxyServer) forward(srcReader io.Reader, srcConn net.Conn, pattern, protocol string, backend routing.Backend, cfg *config.Config, state *routeState) {
	start := time.Now()
	remote := ""
	if srcConn.RemoteAddr() != nil {
		remote = srcConn.RemoteAddr().String()
	}

	logging.Logf("[forward] start pattern=%q protocol=%s backend=%s remote=%s", pattern, protocol, backend, remote)

	if s.collector != nil {
		s.collector.IncActiveForward(pattern)
		defer s.collector.DecActiveForward(pattern)
	}

	dialTimeout := 30 * time.Second
	if cfg != nil {
		dialTimeout = cfg.GetDialTimeout()
	}

	backendConn, err := net.DialTimeout(backend.Network(), backend.DialAddr(), dialTimeout)
	if err != nil {
		logging.Logf("[forward] dial failed pattern=%q backend=%s err=%v", pattern, backend, err)
		if s.collector != nil {
			s.collector.RecordProxyError(pattern, "backend_dial_error")
			s.collector.UpdateForwardMetrics(pattern, protocol, false, 0, 0, time.Since(start))
		}
		return
	}
	defer backendConn.Close()

	if state.readTimeout > 0 {
		_ = backendConn.SetReadDeadline(time.Now().Add(state.readTimeout))
	}
	if state.writeTimeout > 0 {
		_ = backendConn.SetWriteDeadline(time.Now().Add(state.writeTimeout))
	}

	var bytesTx, bytesRx int64
	errCh := make(chan error, 2)

	go func() {
		n, err := io.Copy(backendConn, srcReader)
		atomic.StoreInt64(&bytesTx, n)
		errCh <- err
	}()
	go func() {
		n, err := io.Copy(srcConn, backendConn)
		atomic.StoreInt64(&bytesRx, n)
		errCh <- err
	}()

	err = <-errCh
	// One direction finished; force both ends closed so the surviving
	// copy terminates, and wait for it before sampling the counters.
	_ = backendConn.Close()
	_ = srcConn.Close()
	<-errCh
	success := err == nil || err == io.EOF
	duration := time.Since(start)
	tx := atomic.LoadInt64(&bytesTx)
	rx := atomic.LoadInt64(&bytesRx)
	if !success {
		logging.Logf("[forward] bridge error pattern=%q backend=%s bytes_tx=%d bytes_rx=%d duration=%s err=%v",
			pattern, backend, tx, rx, duration, err)
		if s.collector != nil {
			s.collector.RecordProxyError(pattern, "backend_io_error")
		}
	} else {
		logging.Logf("[forward] bridge done pattern=%q backend=%s bytes_tx=%d bytes_rx=%d duration=%s",
			pattern, backend, tx, rx, duration)
	}
	if s.collector != nil {
		s.collector.UpdateForwardMetrics(pattern, protocol, success, tx, rx, duration)
	}
}

// logAcceptEOF logs connections that closed before sending anything,
// throttled so probes do not flood the log.
func (s *ProxyServer) logAcceptEOF(remote string, cfg *config.Config) {
	s.acceptEOFLock.Lock()
	defer s.acceptEOFLock.Unlock()

	now := time.Now()
	if now.Sub(s.acceptEOFLastLogAt) < 10*time.Second {
		s.acceptEOFSuppressed++
		return
	}
	suppressed := s.acceptEOFSuppressed
	s.acceptEOFSuppressed = 0
	s.acceptEOFLastLogAt = now
	if cfg != nil && cfg.Log.Level == "debug" {
		logging.Logf("[accept][debug] connection closed before data (remote=%s suppressed=%d)", remote, suppressed)
	}
}
