package routing

import "strings"

// pathMatch reports whether pattern matches the request (host, path).
//
// A pattern not ending in '/' is exact: it must equal host+path character
// for character. A pattern ending in '/' is a prefix pattern: its remainder
// after the host must be a literal prefix of path. As a special case a
// prefix pattern also matches the path that equals it minus the trailing
// slash, so pattern "host/foo/" matches path "/foo" to deal with requests
// to a directory without the trailing slash.
func pathMatch(pattern, host, path string) bool {
	if !strings.HasSuffix(pattern, "/") {
		return len(pattern) == len(host)+len(path) &&
			strings.HasPrefix(pattern, host) &&
			pattern[len(host):] == path
	}

	if len(pattern) >= len(host) &&
		strings.HasPrefix(pattern, host) &&
		strings.HasPrefix(path, pattern[len(host):]) {
		return true
	}

	return len(pattern)-1 == len(host)+len(path) &&
		strings.HasPrefix(pattern, host) &&
		pattern[len(host):len(pattern)-1] == path
}

// bestMatch returns the index of the group with the longest matching
// pattern, or -1. The winner is replaced only on a strictly longer pattern,
// so among equal-length candidates the first-inserted group wins.
func bestMatch(host, path string, groups []Group) int {
	res := -1
	best := 0
	for i := range groups {
		pattern := groups[i].Pattern
		if !pathMatch(pattern, host, path) {
			continue
		}
		if res == -1 || best < len(pattern) {
			best = len(pattern)
			res = i
		}
	}
	return res
}

// matchHost selects a group for an already extracted, lowercased host. A
// path that is empty or does not start with '/' (absolute-form or CONNECT
// targets) is probed as the literal path "/".
func matchHost(host, path string, groups []Group, catchAll int) int {
	if path == "" || path[0] != '/' {
		if g := bestMatch(host, "/", groups); g != -1 {
			return g
		}
		return catchAll
	}

	if g := bestMatch(host, path, groups); g != -1 {
		return g
	}
	// Retry with the wildcard host.
	if g := bestMatch("", path, groups); g != -1 {
		return g
	}
	return catchAll
}

// MatchGroup selects the group index for a request. hostport is the request
// authority (host with optional :port), rawPath the request target as sent
// by the client. It never fails: any ambiguity degrades to catchAll.
func MatchGroup(hostport, rawPath string, groups []Group, catchAll int) int {
	if strings.IndexByte(hostport, '/') != -1 {
		// '/' is significant in patterns; an authority containing one
		// would corrupt matching. Select the catch-all case.
		return catchAll
	}

	fragment := strings.IndexByte(rawPath, '#')
	if fragment == -1 {
		fragment = len(rawPath)
	}
	pathEnd := fragment
	if query := strings.IndexByte(rawPath[:fragment], '?'); query != -1 {
		pathEnd = query
	}
	path := rawPath[:pathEnd]

	if hostport == "" {
		return matchHost(hostport, path, groups, catchAll)
	}

	var host string
	if hostport[0] == '[' {
		// Assume an IPv6 numeric address.
		p := strings.IndexByte(hostport, ']')
		if p == -1 {
			return catchAll
		}
		if p+1 < len(hostport) && hostport[p+1] != ':' {
			return catchAll
		}
		host = hostport[:p+1]
	} else {
		p := strings.IndexByte(hostport, ':')
		if p == 0 {
			return catchAll
		}
		if p == -1 {
			host = hostport
		} else {
			host = hostport[:p]
		}
	}

	host = strings.ToLower(host)
	return matchHost(host, path, groups, catchAll)
}

// Match is MatchGroup over this table.
func (t *Table) Match(hostport, rawPath string, catchAll int) int {
	return MatchGroup(hostport, rawPath, t.Groups, catchAll)
}
