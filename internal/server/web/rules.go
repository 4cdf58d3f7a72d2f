package web

import "strings"

// DefaultExclusions are the paths served without a session.
var DefaultExclusions = []string{"/", "/cert-viewer", "/auth/*", "/static/*", "/metrics", "/healthz"}

// Rule is an exact path, or a prefix when written with a trailing "*".
type Rule struct {
	pattern string
	prefix  bool
}

func ParseRule(p string) Rule {
	if strings.HasSuffix(p, "*") {
		return Rule{pattern: strings.TrimSuffix(p, "*"), prefix: true}
	}
	return Rule{pattern: p}
}

func (r Rule) Match(path string) bool {
	if r.prefix {
		return strings.HasPrefix(path, r.pattern)
	}
	return path == r.pattern
}

// Rules are evaluated in order; the first match wins.
type Rules []Rule

func ParseRules(patterns ...string) Rules {
	rs := make(Rules, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rs = append(rs, ParseRule(p))
	}
	return rs
}

func (rs Rules) Match(path string) bool {
	for _, r := range rs {
		if r.Match(path) {
			return true
		}
	}
	return false
}
