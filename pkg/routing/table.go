package routing

import (
	"fmt"
	"path"
	"strings"
)

// Group is one routing entry: a canonical host+path pattern and the ordered
// list of backends that serve it. Multiple backends in one group are
// load-balancing candidates for the same pattern.
type Group struct {
	Pattern string
	Addrs   []Backend
}

// Table is the ordered collection of groups built while configuration is
// parsed. Insertion order is discovery order. After startup the table is
// read-only and safe to share across goroutines without locking.
type Table struct {
	Groups []Group
}

// AddMapping parses the host-path patterns in src and stores addr under each
// of them. src is a ':'-delimited list of raw "host/path" tokens; splitting
// always yields at least one token (possibly the empty string), and a token
// without a path becomes a prefix pattern rooted at "/", so an empty src
// produces the catch-all pattern "/". Tokens whose canonical pattern already
// exists merge into the existing group, preserving discovery order.
func (t *Table) AddMapping(addr Backend, src string) {
	for _, raw := range strings.Split(src, ":") {
		var pattern string
		slash := strings.IndexByte(raw, '/')
		if slash == -1 {
			// This effectively makes an empty token the "/" pattern.
			pattern = strings.ToLower(raw) + "/"
		} else {
			pattern = strings.ToLower(raw[:slash]) + normalizePath(raw[slash:])
		}
		merged := false
		for i := range t.Groups {
			if t.Groups[i].Pattern == pattern {
				t.Groups[i].Addrs = append(t.Groups[i].Addrs, addr)
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		t.Groups = append(t.Groups, Group{
			Pattern: pattern,
			Addrs:   []Backend{addr},
		})
	}
}

// CatchAll returns the index of the "/" group. Every valid table has one;
// configuration loading fails otherwise.
func (t *Table) CatchAll() (int, error) {
	for i := range t.Groups {
		if t.Groups[i].Pattern == "/" {
			return i, nil
		}
	}
	return 0, fmt.Errorf("catch-all pattern %q is not configured", "/")
}

// normalizePath resolves dot segments in p, keeping the trailing slash that
// distinguishes prefix patterns from exact ones. p starts with '/'.
func normalizePath(p string) string {
	c := path.Clean(p)
	if c != "/" && (strings.HasSuffix(p, "/") || strings.HasSuffix(p, "/.") || strings.HasSuffix(p, "/..")) {
		c += "/"
	}
	return c
}
