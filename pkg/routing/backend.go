package routing

import (
	"net"
	"strconv"
)

// Backend is one configured downstream endpoint: either a TCP host/port or a
// unix domain socket path.
//
// Backend is a value type. Assigning or appending one copies it completely
// (Go strings are immutable), so records stored in a group never share
// mutable state with the value they were built from, even after the group's
// address slice is reallocated.
type Backend struct {
	Host     string // hostname or IP address, or socket path when HostUnix
	HostPort string // "host:port" display form, empty for unix sockets
	Port     uint16
	HostUnix bool
}

// NewTCPBackend builds a Backend for a TCP endpoint.
func NewTCPBackend(host string, port uint16) Backend {
	return Backend{
		Host:     host,
		HostPort: net.JoinHostPort(host, strconv.Itoa(int(port))),
		Port:     port,
	}
}

// NewUnixBackend builds a Backend for a unix domain socket path.
func NewUnixBackend(path string) Backend {
	return Backend{
		Host:     path,
		HostUnix: true,
	}
}

// Network returns the network argument for net.Dial.
func (b Backend) Network() string {
	if b.HostUnix {
		return "unix"
	}
	return "tcp"
}

// DialAddr returns the address argument for net.Dial.
func (b Backend) DialAddr() string {
	if b.HostUnix {
		return b.Host
	}
	return b.HostPort
}

// String returns a human readable form for logs.
func (b Backend) String() string {
	if b.HostUnix {
		return "unix:" + b.Host
	}
	return b.HostPort
}
