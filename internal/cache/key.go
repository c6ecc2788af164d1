package cache

import (
	"net/http"
	"sort"
	"strings"
)

// RequestKey generates a deterministic store key from the request's path
// and sorted query parameters. Only GET responses are cached, so the
// method is not part of the key.
func RequestKey(r *http.Request) string {
	var sb strings.Builder
	sb.WriteString(r.URL.Path)

	query := r.URL.Query()
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('?')
		first := true
		for _, k := range keys {
			vals := query[k]
			sort.Strings(vals)
			for _, v := range vals {
				if !first {
					sb.WriteByte('&')
				}
				sb.WriteString(k)
				sb.WriteByte('=')
				sb.WriteString(v)
				first = false
			}
		}
	}

	return sb.String()
}

// PathKey generates a store key for a bare asset path.
func PathKey(path string) string {
	return path
}
