package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hostpath-proxy/pkg/keys"
	"github.com/hostpath-proxy/pkg/logging"
	"github.com/hostpath-proxy/pkg/routing"
)

// unixPathPrefix marks a host spec as a unix domain socket path.
const unixPathPrefix = "unix:"

// syslogFacilities maps facility names to their numeric values, as accepted
// by the syslog-facility option.
var syslogFacilities = map[string]int{
	"auth":     4 << 3,
	"authpriv": 10 << 3,
	"cron":     9 << 3,
	"daemon":   3 << 3,
	"ftp":      11 << 3,
	"kern":     0,
	"local0":   16 << 3,
	"local1":   17 << 3,
	"local2":   18 << 3,
	"local3":   19 << 3,
	"local4":   20 << 3,
	"local5":   21 << 3,
	"local6":   22 << 3,
	"local7":   23 << 3,
	"lpr":      6 << 3,
	"mail":     2 << 3,
	"news":     7 << 3,
	"syslog":   5 << 3,
	"user":     1 << 3,
	"uucp":     8 << 3,
}

// RoutingConfig is the result of loading a routing configuration file. It is
// built once at startup (or on reload) and treated as immutable afterwards.
type RoutingConfig struct {
	Table    routing.Table
	CatchAll int

	FrontendHost string
	FrontendPort uint16
	FrontendUnix bool

	Workers             uint
	LogLevel            string
	SyslogFacility      int
	BackendReadTimeout  int
	BackendWriteTimeout int

	TicketKeyFiles   []string
	TicketKeys       *keys.TicketKeys
	PrivateKeyPasswd string
}

// LoadRoutingConf loads the key=value routing configuration from filename,
// following include directives with cycle detection. Any error aborts the
// whole load: no partially built configuration is returned.
func LoadRoutingConf(filename string) (*RoutingConfig, error) {
	rc := &RoutingConfig{}
	includeSet := map[string]struct{}{filename: {}}
	if err := rc.loadFile(filename, includeSet); err != nil {
		return nil, err
	}

	// A configuration without any backend still needs a routing table.
	if len(rc.Table.Groups) == 0 {
		rc.Table.AddMapping(routing.NewTCPBackend("127.0.0.1", 80), "")
	}
	catchAll, err := rc.Table.CatchAll()
	if err != nil {
		return nil, fmt.Errorf("backend: %v", err)
	}
	rc.CatchAll = catchAll

	if len(rc.TicketKeyFiles) > 0 {
		ticketKeys, err := keys.ReadTicketKeyFiles(rc.TicketKeyFiles)
		if err != nil {
			return nil, err
		}
		rc.TicketKeys = ticketKeys
	}

	return rc, nil
}

// loadFile reads one configuration file. includeSet holds the files on the
// active inclusion path, so a file including itself, directly or
// transitively, is rejected instead of recursing without bound.
func (rc *RoutingConfig) loadFile(filename string, includeSet map[string]struct{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("could not open config file %s", filename)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	linenum := 0
	for scanner.Scan() {
		linenum++
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i == -1 {
			return fmt.Errorf("bad configuration format in %s at line %d", filename, linenum)
		}
		if err := rc.parseOption(line[:i], line[i+1:], includeSet); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file %s: %v", filename, err)
	}
	return nil
}

// parseOption dispatches one key=value option.
func (rc *RoutingConfig) parseOption(opt, optarg string, includeSet map[string]struct{}) error {
	switch opt {
	case "backend":
		return rc.parseBackend(opt, optarg)

	case "frontend":
		if strings.HasPrefix(optarg, unixPathPrefix) {
			rc.FrontendHost = optarg[len(unixPathPrefix):]
			rc.FrontendPort = 0
			rc.FrontendUnix = true
			return nil
		}
		host, port, err := routing.SplitHostPort(optarg)
		if err != nil {
			return fmt.Errorf("%s: %v", opt, err)
		}
		rc.FrontendHost = host
		rc.FrontendPort = port
		rc.FrontendUnix = false
		return nil

	case "workers":
		n, err := strconv.ParseUint(optarg, 10, 32)
		if err != nil {
			return fmt.Errorf("%s: bad value: %q", opt, optarg)
		}
		rc.Workers = uint(n)
		return nil

	case "log-level":
		switch strings.ToLower(optarg) {
		case "debug", "info", "notice", "warn", "error", "fatal":
			rc.LogLevel = strings.ToLower(optarg)
			return nil
		}
		return fmt.Errorf("%s: invalid severity level: %q", opt, optarg)

	case "syslog-facility":
		facility, ok := syslogFacilities[optarg]
		if !ok {
			return fmt.Errorf("%s: unknown facility: %q", opt, optarg)
		}
		rc.SyslogFacility = facility
		return nil

	case "backend-read-timeout":
		return parseTimeout(&rc.BackendReadTimeout, opt, optarg)

	case "backend-write-timeout":
		return parseTimeout(&rc.BackendWriteTimeout, opt, optarg)

	case "tls-ticket-key-file":
		rc.TicketKeyFiles = append(rc.TicketKeyFiles, optarg)
		return nil

	case "private-key-passwd-file":
		passwd, err := keys.ReadPasswordFile(optarg)
		if err != nil {
			return fmt.Errorf("%s: %v", opt, err)
		}
		rc.PrivateKeyPasswd = passwd
		return nil

	case "include":
		if _, ok := includeSet[optarg]; ok {
			return fmt.Errorf("%s: %s has already been included", opt, optarg)
		}
		includeSet[optarg] = struct{}{}
		err := rc.loadFile(optarg, includeSet)
		delete(includeSet, optarg)
		return err

	case "conf":
		logging.Logf("conf: ignored")
		return nil
	}

	return fmt.Errorf("unknown option: %s", opt)
}

// parseBackend handles backend=["unix:"]host-spec[";"pattern[":"pattern...]]
func (rc *RoutingConfig) parseBackend(opt, optarg string) error {
	patDelim := strings.IndexByte(optarg, ';')
	if patDelim == -1 {
		patDelim = len(optarg)
	}

	var addr routing.Backend
	if strings.HasPrefix(optarg, unixPathPrefix) {
		addr = routing.NewUnixBackend(optarg[len(unixPathPrefix):patDelim])
	} else {
		host, port, err := routing.SplitHostPort(optarg[:patDelim])
		if err != nil {
			return fmt.Errorf("%s: %v", opt, err)
		}
		addr = routing.NewTCPBackend(host, port)
	}

	mapping := ""
	if patDelim < len(optarg) {
		mapping = optarg[patDelim+1:]
	}
	// New parameters may be introduced after an additional ';' later, so
	// an extra ';' in the pattern part is rejected for now.
	if strings.IndexByte(mapping, ';') != -1 {
		return fmt.Errorf("%s: ';' must not be used in pattern", opt)
	}
	rc.Table.AddMapping(addr, mapping)
	return nil
}

func parseTimeout(dest *int, opt, optarg string) error {
	n, err := strconv.ParseUint(optarg, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: bad value: %q", opt, optarg)
	}
	*dest = int(n)
	return nil
}
