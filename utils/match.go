package utils

import (
	"regexp"
	"strings"
)

// CompileResourcePattern turns a resource pattern into an anchored regular
// expression. '*' matches any run of characters, including none; everything
// else is literal. "doc:*" matches "doc:1" and "doc:", not "mydoc:1".
func CompileResourcePattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

// MatchResource reports whether a resource name satisfies a pattern. Exact
// names and the bare "*" wildcard short-circuit; patterns containing '*' are
// compiled per call. Callers on a hot path should compile once and reuse.
func MatchResource(resource, pattern string) bool {
	if pattern == "*" || pattern == resource {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	re, err := CompileResourcePattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(resource)
}
