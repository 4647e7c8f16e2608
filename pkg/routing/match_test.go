package routing

import "testing"

// buildTable builds a table from pattern sources in order and returns it
// with its catch-all index. Each source gets a distinct backend so tests can
// tell groups apart by index.
func buildTable(t *testing.T, srcs ...string) (*Table, int) {
	t.Helper()
	table := &Table{}
	for i, src := range srcs {
		table.AddMapping(NewTCPBackend("10.0.0.1", uint16(8000+i)), src)
	}
	catchAll, err := table.CatchAll()
	if err != nil {
		t.Fatalf("CatchAll: %v", err)
	}
	return table, catchAll
}

func groupIndex(t *testing.T, table *Table, pattern string) int {
	t.Helper()
	for i := range table.Groups {
		if table.Groups[i].Pattern == pattern {
			return i
		}
	}
	t.Fatalf("pattern %q not in table", pattern)
	return -1
}

func TestMatchGroupExactPattern(t *testing.T) {
	table, catchAll := buildTable(t, "", "example.com/foo")
	exact := groupIndex(t, table, "example.com/foo")

	tests := []struct {
		name     string
		hostport string
		path     string
		want     int
	}{
		{name: "exact match", hostport: "example.com", path: "/foo", want: exact},
		{name: "exact match with port", hostport: "example.com:8080", path: "/foo", want: exact},
		{name: "sub path not matched", hostport: "example.com", path: "/foo/bar", want: catchAll},
		{name: "trailing slash not matched", hostport: "example.com", path: "/foo/", want: catchAll},
		{name: "prefix of path not matched", hostport: "example.com", path: "/fo", want: catchAll},
		{name: "other host", hostport: "other.example.com", path: "/foo", want: catchAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchGroup(tt.hostport, tt.path, table.Groups, catchAll); got != tt.want {
				t.Errorf("MatchGroup(%q, %q) = %d, want %d", tt.hostport, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchGroupPrefixPattern(t *testing.T) {
	table, catchAll := buildTable(t, "", "example.com/foo/")
	prefix := groupIndex(t, table, "example.com/foo/")

	tests := []struct {
		name     string
		hostport string
		path     string
		want     int
	}{
		{name: "path under prefix", hostport: "example.com", path: "/foo/bar", want: prefix},
		{name: "prefix itself", hostport: "example.com", path: "/foo/", want: prefix},
		{name: "trailing slash equivalence", hostport: "example.com", path: "/foo", want: prefix},
		{name: "not a segment boundary", hostport: "example.com", path: "/foobar", want: catchAll},
		{name: "other host", hostport: "other.example.com", path: "/foo/bar", want: catchAll},
		{name: "host case insensitive", hostport: "EXAMPLE.com", path: "/foo/bar", want: prefix},
		{name: "path case sensitive", hostport: "example.com", path: "/FOO/bar", want: catchAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchGroup(tt.hostport, tt.path, table.Groups, catchAll); got != tt.want {
				t.Errorf("MatchGroup(%q, %q) = %d, want %d", tt.hostport, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchGroupSpecificity(t *testing.T) {
	table, catchAll := buildTable(t, "", "example.com/", "example.com/foo/", "/api/")
	hostRoot := groupIndex(t, table, "example.com/")
	hostFoo := groupIndex(t, table, "example.com/foo/")
	wildAPI := groupIndex(t, table, "/api/")

	tests := []struct {
		name     string
		hostport string
		path     string
		want     int
	}{
		{name: "longest pattern wins", hostport: "example.com", path: "/foo/x", want: hostFoo},
		{name: "shorter pattern for other paths", hostport: "example.com", path: "/bar", want: hostRoot},
		{name: "host specific beats wildcard", hostport: "example.com", path: "/api/x", want: hostRoot},
		{name: "wildcard host fallback", hostport: "anything.example.org", path: "/api/x", want: wildAPI},
		{name: "no match falls back to catch-all", hostport: "anything.example.org", path: "/other", want: catchAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchGroup(tt.hostport, tt.path, table.Groups, catchAll); got != tt.want {
				t.Errorf("MatchGroup(%q, %q) = %d, want %d", tt.hostport, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchGroupStripsQueryAndFragment(t *testing.T) {
	table, catchAll := buildTable(t, "", "example.com/foo")
	exact := groupIndex(t, table, "example.com/foo")

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "plain", path: "/foo", want: exact},
		{name: "query", path: "/foo?x=1", want: exact},
		{name: "fragment", path: "/foo#y", want: exact},
		{name: "query then fragment", path: "/foo?x=1#y", want: exact},
		{name: "fragment then question mark", path: "/foo#y?x=1", want: exact},
		{name: "query hides real path", path: "/foo/bar?x=1", want: catchAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchGroup("example.com", tt.path, table.Groups, catchAll); got != tt.want {
				t.Errorf("MatchGroup(example.com, %q) = %d, want %d", tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchGroupAuthorityHandling(t *testing.T) {
	// A bracketed IPv6 pattern cannot be written through AddMapping (the
	// raw pattern list is colon-separated), so build the group list by
	// hand to exercise the authority parsing on its own.
	groups := []Group{
		{Pattern: "/", Addrs: []Backend{NewTCPBackend("10.0.0.1", 8000)}},
		{Pattern: "[::1]/foo/", Addrs: []Backend{NewTCPBackend("10.0.0.1", 8001)}},
		{Pattern: "example.com/foo/", Addrs: []Backend{NewTCPBackend("10.0.0.1", 8002)}},
	}
	catchAll := 0
	v6 := 1

	tests := []struct {
		name     string
		hostport string
		path     string
		want     int
	}{
		{name: "slash in authority", hostport: "a/b", path: "/foo/x", want: catchAll},
		{name: "ipv6 with port", hostport: "[::1]:8080", path: "/foo/x", want: v6},
		{name: "ipv6 without port", hostport: "[::1]", path: "/foo/x", want: v6},
		{name: "ipv6 unterminated", hostport: "[::1", path: "/foo/x", want: catchAll},
		{name: "ipv6 trailing garbage", hostport: "[::1]x", path: "/foo/x", want: catchAll},
		{name: "empty host before colon", hostport: ":8080", path: "/foo/x", want: catchAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchGroup(tt.hostport, tt.path, groups, catchAll); got != tt.want {
				t.Errorf("MatchGroup(%q, %q) = %d, want %d", tt.hostport, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchGroupSlashInAuthorityIgnoresTable(t *testing.T) {
	table, _ := buildTable(t, "", "a/", "a/b/", "b/")
	// Any catch-all value is returned verbatim, whatever the table holds.
	if got := MatchGroup("a/b", "/x", table.Groups, 3); got != 3 {
		t.Errorf("MatchGroup(a/b, /x) = %d, want 3", got)
	}
}

func TestMatchGroupNonSlashPath(t *testing.T) {
	table, catchAll := buildTable(t, "", "example.com/", "example.com/foo/")
	hostRoot := groupIndex(t, table, "example.com/")

	tests := []struct {
		name     string
		hostport string
		path     string
		want     int
	}{
		{name: "empty path probes root", hostport: "example.com", path: "", want: hostRoot},
		{name: "absolute-form target probes root", hostport: "example.com", path: "http://example.com/foo", want: hostRoot},
		{name: "asterisk form probes root", hostport: "example.com", path: "*", want: hostRoot},
		{name: "unknown host with non-slash path", hostport: "other.example.org", path: "*", want: catchAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchGroup(tt.hostport, tt.path, table.Groups, catchAll); got != tt.want {
				t.Errorf("MatchGroup(%q, %q) = %d, want %d", tt.hostport, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchGroupEmptyAuthority(t *testing.T) {
	table, catchAll := buildTable(t, "", "/api/")
	wild := groupIndex(t, table, "/api/")

	if got := MatchGroup("", "/api/x", table.Groups, catchAll); got != wild {
		t.Errorf("MatchGroup(\"\", /api/x) = %d, want %d", got, wild)
	}
	if got := MatchGroup("", "/other", table.Groups, catchAll); got != catchAll {
		t.Errorf("MatchGroup(\"\", /other) = %d, want %d", got, catchAll)
	}
}

func TestMatchGroupLongestPatternWins(t *testing.T) {
	table := &Table{}
	table.AddMapping(NewTCPBackend("10.0.0.1", 8001), "example.com/foo")  // exact
	table.AddMapping(NewTCPBackend("10.0.0.2", 8002), "example.com/foo/") // prefix, matches /foo too
	table.AddMapping(NewTCPBackend("10.0.0.3", 8003), "")
	catchAll, err := table.CatchAll()
	if err != nil {
		t.Fatalf("CatchAll: %v", err)
	}

	// Both patterns match (example.com, /foo); the prefix form is one
	// character longer and wins.
	if got := MatchGroup("example.com", "/foo", table.Groups, catchAll); got != 1 {
		t.Errorf("MatchGroup(example.com, /foo) = %d, want 1", got)
	}
}

func TestBestMatchTieBreak(t *testing.T) {
	// AddMapping merges identical patterns, so an equal-length collision
	// cannot be built through it. The selection rule still has to prefer
	// the first-inserted candidate: the winner is replaced only on a
	// strictly longer pattern. Pin that with a hand-built group list.
	groups := []Group{
		{Pattern: "example.com/foo/", Addrs: []Backend{NewTCPBackend("10.0.0.1", 8001)}},
		{Pattern: "example.com/foo/", Addrs: []Backend{NewTCPBackend("10.0.0.2", 8002)}},
	}
	if got := bestMatch("example.com", "/foo/x", groups); got != 0 {
		t.Errorf("bestMatch = %d, want first-inserted 0", got)
	}

	// Order of a shorter candidate before the longer one must not matter.
	groups = []Group{
		{Pattern: "example.com/", Addrs: []Backend{NewTCPBackend("10.0.0.1", 8001)}},
		{Pattern: "example.com/foo/", Addrs: []Backend{NewTCPBackend("10.0.0.2", 8002)}},
	}
	if got := bestMatch("example.com", "/foo/x", groups); got != 1 {
		t.Errorf("bestMatch = %d, want longest 1", got)
	}
}
