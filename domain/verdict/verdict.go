// Package verdict provides the stable, serializable result type for a
// completed match: which router claimed the request, and the (protocol,
// location) pair it resolved to. These are plain value types so an external
// caller (an admin endpoint, a dry-run CLI, a future WSGI-style adapter) has
// a contract to depend on without reaching into domain/router or
// domain/upstream internals.
package verdict

import "github.com/artpar/selector/domain/upstream"

// Verdict is the outcome of resolving a request against a Router: the
// server it was sent to and the weight that server carried in its
// Upstream at selection time.
type Verdict struct {
	Protocol string `json:"protocol"`
	Location string `json:"location"`
	Weight   int    `json:"weight"`
}

// FromServer builds a Verdict from a chosen Server and its selection
// weight (0 if the weight is not known/applicable).
func FromServer(s upstream.Server, weight int) Verdict {
	return Verdict{
		Protocol: s.Protocol,
		Location: s.Location,
		Weight:   weight,
	}
}

// MatchResult is the full result of a dry-run match: which router matched
// the host, whether an upstream was resolved, and the candidate verdicts
// that upstream carries (before weighted-random selection picks one).
type MatchResult struct {
	Router   string    `json:"router"`
	Matched  bool      `json:"matched"`
	Verdicts []Verdict `json:"verdicts,omitempty"`
	Picked   *Verdict  `json:"picked,omitempty"`
}

// FromUpstream converts every selection in up into a Verdict, in order.
// Returns nil if up is nil or empty.
func FromUpstream(up *upstream.Upstream) []Verdict {
	if up == nil || up.Len() == 0 {
		return nil
	}
	sels := up.Selections()
	out := make([]Verdict, len(sels))
	for i, s := range sels {
		out[i] = FromServer(s.Server, s.Weight)
	}
	return out
}
