package cache

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Request describes one cacheable HTTP call. Headers holds only headers that
// affect response content (tenant, base-URL routing); Authorization is
// intentionally excluded from the key domain since a device hosts a single
// logged-in user.
type Request struct {
	Method   string
	URL      string
	Query    url.Values
	Headers  map[string]string
	TTL      time.Duration
	Override bool
}

// Key derives the deterministic cache key: method, URL, sorted query
// parameters and sorted content-affecting headers. Keys stay readable so
// prefix invalidation can target a URL subtree without touching
// session-scoped entries.
func (r Request) Key() string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(r.URL)

	if len(r.Query) > 0 {
		keys := make([]string, 0, len(r.Query))
		for k := range r.Query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('?')
		for i, k := range keys {
			vals := append([]string(nil), r.Query[k]...)
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
	}

	if len(r.Headers) > 0 {
		keys := make([]string, 0, len(r.Headers))
		for k := range r.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('|')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(strings.ToLower(k))
			b.WriteByte('=')
			b.WriteString(r.Headers[k])
		}
	}

	return b.String()
}
