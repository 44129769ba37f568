package router

import (
	"regexp"
	"strings"
)

// compiledHostPattern is one compiled entry of Router.hosts: a plain,
// case-insensitive regex matched directly against the normalized host, per
// hosts[i] being a compiled regex (rump.router.Router.match_me: host.match
// (request.host), no exact/wildcard special-casing).
type compiledHostPattern struct {
	raw   string
	regex *regexp.Regexp
}

// compileHostPattern compiles pattern as a case-insensitive regex, anchored
// at the start only (mirroring Python's re.match, which the original's
// host.match(request.host) relies on: a match need not consume the whole
// host, just its prefix, unless the pattern itself ends in "$").
func compileHostPattern(pattern string) (compiledHostPattern, error) {
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")")
	if err != nil {
		return compiledHostPattern{raw: pattern}, err
	}
	return compiledHostPattern{raw: pattern, regex: re}, nil
}

// compileHostPatterns compiles every pattern, returning the first error.
func compileHostPatterns(patterns []string) ([]compiledHostPattern, error) {
	out := make([]compiledHostPattern, 0, len(patterns))
	for _, p := range patterns {
		cp, err := compileHostPattern(p)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// normalizeHost strips a port suffix (respecting IPv6 bracket literals)
// and a trailing dot, and lowercases the result. This is a host-normalization
// step applied before the regex match, not a classification of the pattern.
func normalizeHost(host string) string {
	if host == "" {
		return ""
	}
	if colonIdx := strings.LastIndex(host, ":"); colonIdx != -1 {
		if !strings.Contains(host, "]") || colonIdx > strings.Index(host, "]") {
			host = host[:colonIdx]
		}
	}
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}

// matchHost reports whether host matches cp's regex, host already normalized.
func matchHost(cp compiledHostPattern, host string) bool {
	return cp.regex.MatchString(host)
}

// matchAnyHost reports whether host matches any of patterns, first match
// wins (same iteration contract as the original's match_me). An empty
// pattern list never matches — match_me returns null when a router
// declares no hosts at all, it is not a wildcard "matches everything"
// default.
func matchAnyHost(patterns []compiledHostPattern, host string) bool {
	if len(patterns) == 0 {
		return false
	}
	normalized := normalizeHost(host)
	for _, cp := range patterns {
		if matchHost(cp, normalized) {
			return true
		}
	}
	return false
}
