package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Credentials maps credential field names (username, password, apikey...)
// to their values. The package never modifies a Credentials value it is
// given.
type Credentials map[string]string

// Keys returns the credential names in sorted order.
func (c Credentials) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// with returns a copy of c extended with one extra variable.
func (c Credentials) with(name, value string) Credentials {
	out := make(Credentials, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[name] = value
	return out
}

// expand substitutes every {name} placeholder in s using lookup. Doubled
// braces are literal braces, and an unterminated { is copied verbatim.
// Placeholders lookup cannot resolve are left in place and reported in
// order of first appearance.
func expand(s string, lookup func(string) (string, bool)) (string, []string) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	var missing []string

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				b.WriteString(s[i:])
				return b.String(), missing
			}
			name := s[i+1 : i+1+end]
			if v, ok := lookup(name); ok {
				b.WriteString(v)
			} else {
				b.WriteString(s[i : i+2+end])
				if !contains(missing, name) {
					missing = append(missing, name)
				}
			}
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), missing
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// missingNames joins unresolved placeholder names for error messages. An
// empty placeholder {} has no name and is reported as such.
func missingNames(missing []string) string {
	names := make([]string, len(missing))
	for i, name := range missing {
		if name == "" {
			name = "empty placeholder {}"
		}
		names[i] = name
	}
	return strings.Join(names, ", ")
}

// Placeholders returns the distinct placeholder names in s, in order of
// first appearance.
func Placeholders(s string) []string {
	_, names := expand(s, func(string) (string, bool) { return "", false })
	return names
}

// ResolveTemplate substitutes every placeholder in s from vars. Any
// placeholder without a value is a MisconfiguredError.
func ResolveTemplate(s string, vars map[string]string) (string, error) {
	out, missing := expand(s, func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
	if len(missing) > 0 {
		return "", NewMisconfiguredError("template",
			fmt.Sprintf("unresolved placeholders in %q: %s", s, missingNames(missing)))
	}
	return out, nil
}

// ResolveHeaders resolves the placeholders of every header value. Header
// values usually embed secrets, so errors name the header but not its value.
func ResolveHeaders(headers, vars map[string]string) (map[string]string, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(headers))
	for name, tmpl := range headers {
		v, missing := expand(tmpl, func(key string) (string, bool) {
			val, ok := vars[key]
			return val, ok
		})
		if len(missing) > 0 {
			return nil, NewMisconfiguredError("headers."+name,
				"unresolved placeholders: "+missingNames(missing))
		}
		out[name] = v
	}
	return out, nil
}
