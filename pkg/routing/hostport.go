package routing

import (
	"fmt"
	"strconv"
	"strings"
)

// maxHostLen bounds the host part of a "host,port" token, mirroring the
// NI_MAXHOST limit commonly applied to hostnames.
const maxHostLen = 1024

// SplitHostPort splits a "host,port" token into its host string and numeric
// port. The host and port are separated by a single ','. The port must be a
// plain unsigned decimal in [1, 65535]; any trailing garbage, empty input or
// out-of-range value is an error.
func SplitHostPort(hostport string) (string, uint16, error) {
	i := strings.IndexByte(hostport, ',')
	if i == -1 {
		return "", 0, fmt.Errorf("invalid host, port: %q", hostport)
	}
	host := hostport[:i]
	if len(host) > maxHostLen {
		return "", 0, fmt.Errorf("hostname too long: %q", hostport)
	}
	port, err := strconv.ParseUint(hostport[i+1:], 10, 64)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port is invalid: %q", hostport[i+1:])
	}
	return host, uint16(port), nil
}
