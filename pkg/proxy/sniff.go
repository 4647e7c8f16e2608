// Package proxy inspects the initial bytes of an accepted connection and
// extracts what the routing table needs: the protocol, the request
// authority and the raw request path.
package proxy

import (
	"net"
	"strings"
)

// Protocol names reported by Sniff.
const (
	ProtocolHTTP    = "http"
	ProtocolConnect = "http_connect"
	ProtocolHTTPS   = "https"
	ProtocolTCP     = "tcp"
)

// Request is the routing-relevant view of a sniffed connection. Authority is
// the host (with optional port) the client addressed; RawPath is the request
// target exactly as sent, empty when the protocol carries no path (TLS,
// CONNECT, plain TCP) so that matching degrades to the "/" probe.
type Request struct {
	Protocol  string
	Authority string
	RawPath   string
}

// BufferedConn is a connection wrapper that replays already-read bytes
// before continuing with the underlying connection.
type BufferedConn struct {
	net.Conn
	Buf []byte
	Pos int
}

// Read implements io.Reader
func (bc *BufferedConn) Read(b []byte) (n int, err error) {
	if bc.Pos < len(bc.Buf) {
		n = copy(b, bc.Buf[bc.Pos:])
		bc.Pos += n
		return n, nil
	}
	return bc.Conn.Read(b)
}

var httpMethods = []string{"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH "}

// Sniff classifies the initial bytes of a connection and extracts the
// routing inputs. It never fails: unrecognized traffic is reported as plain
// TCP with an empty authority, which the matcher resolves to catch-all.
func Sniff(data []byte) Request {
	if len(data) >= 8 && string(data[:8]) == "CONNECT " {
		authority, _ := extractConnectAuthority(data)
		return Request{Protocol: ProtocolConnect, Authority: authority}
	}

	for _, m := range httpMethods {
		if len(data) >= len(m) && string(data[:len(m)]) == m {
			return Request{
				Protocol:  ProtocolHTTP,
				Authority: ExtractHostHeader(data),
				RawPath:   ExtractRequestTarget(data),
			}
		}
	}

	// TLS handshake record, ClientHello carries the SNI.
	if len(data) >= 5 && data[0] == 0x16 && data[1] == 0x03 {
		return Request{Protocol: ProtocolHTTPS, Authority: ExtractSNI(data)}
	}

	return Request{Protocol: ProtocolTCP}
}

// ExtractRequestTarget returns the request target from the first request
// line ("GET /foo?x=1 HTTP/1.1" yields "/foo?x=1"), or "" if the line is
// not parseable. The target is returned raw; query and fragment stripping
// is the matcher's job.
func ExtractRequestTarget(data []byte) string {
	line := firstLine(data)
	sp := strings.IndexByte(line, ' ')
	if sp == -1 {
		return ""
	}
	rest := line[sp+1:]
	if end := strings.IndexByte(rest, ' '); end != -1 {
		rest = rest[:end]
	}
	return rest
}

// ExtractHostHeader returns the Host header value, port included, or "".
func ExtractHostHeader(data []byte) string {
	for _, line := range strings.Split(string(data), "\r\n") {
		if len(line) >= 5 && strings.EqualFold(line[:5], "host:") {
			return strings.TrimSpace(line[5:])
		}
	}
	return ""
}

// extractConnectAuthority parses the authority from a CONNECT request line:
// "CONNECT host:port HTTP/1.1".
func extractConnectAuthority(data []byte) (string, bool) {
	line := firstLine(data)
	if !strings.HasPrefix(line, "CONNECT ") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "CONNECT "))
	authority := rest
	if sp := strings.IndexByte(rest, ' '); sp != -1 {
		authority = rest[:sp]
	}
	if authority == "" {
		return "", false
	}
	return authority, true
}

func firstLine(data []byte) string {
	s := string(data)
	if i := strings.Index(s, "\r\n"); i != -1 {
		return s[:i]
	}
	return s
}

// ExtractSNI extracts the server name from a TLS ClientHello.
// Record layout:
// [0] = 0x16 (Handshake)
// [1-2] = Version
// [3-4] = Record length
// [5] = Handshake type (0x01 = ClientHello)
// [6-8] = Handshake length
// [9-10] = Client version
// [11-42] = Random
// [43] = Session ID length, then session ID
// ... cipher suites, compression methods, extensions (SNI is extension 0)
func ExtractSNI(data []byte) string {
	if len(data) < 6 || data[0] != 0x16 || data[5] != 0x01 {
		return ""
	}

	offset := 43
	if len(data) < offset+1 {
		return ""
	}

	// Session ID
	sessionIDLen := int(data[offset])
	offset += 1 + sessionIDLen
	if len(data) < offset+2 {
		return ""
	}

	// Cipher suites
	cipherSuiteLen := int(data[offset])<<8 | int(data[offset+1])
	offset += 2 + cipherSuiteLen
	if len(data) < offset+1 {
		return ""
	}

	// Compression methods
	compressionLen := int(data[offset])
	offset += 1 + compressionLen
	if len(data) < offset+2 {
		return ""
	}

	// Extensions
	extensionsLen := int(data[offset])<<8 | int(data[offset+1])
	offset += 2
	extensionsEnd := offset + extensionsLen
	if len(data) < extensionsEnd {
		extensionsEnd = len(data)
	}

	for offset < extensionsEnd-4 {
		if len(data) < offset+4 {
			break
		}
		extType := int(data[offset])<<8 | int(data[offset+1])
		extLen := int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4

		if extType != 0x0000 {
			offset += extLen
			continue
		}

		// Server Name list: 2-byte list length, then one entry of
		// type host_name (0x00) with a 2-byte name length.
		if len(data) < offset+2 {
			break
		}
		offset += 2
		if len(data) < offset+3 || data[offset] != 0x00 {
			break
		}
		offset++
		nameLen := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if len(data) < offset+nameLen {
			break
		}
		return string(data[offset : offset+nameLen])
	}

	return ""
}
