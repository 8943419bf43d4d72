package cache

import (
	"net/url"
	"sort"
	"strings"
)

func mask(s string) string {
	if s == "" {
		return s
	}
	h := len(s) / 2
	return s[:h] + strings.Repeat("*", len(s)-h)
}

// redactConnectionString hides the credentials in a URL style connection
// string so it can be logged. Anything that does not parse as a URL with a
// scheme, such as a SQLite path, is returned unchanged.
func redactConnectionString(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s
	}
	if u.User != nil {
		if pass, ok := u.User.Password(); ok {
			u.User = url.UserPassword(mask(u.User.Username()), mask(pass))
		} else {
			u.User = url.User(mask(u.User.Username()))
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			v := strings.Join(q[k], ",")
			if sensitiveParam(k) {
				parts = append(parts, url.QueryEscape(k)+"="+mask(v))
			} else {
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	return u.String()
}

func sensitiveParam(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "password") || strings.Contains(name, "secret") || strings.Contains(name, "token")
}
