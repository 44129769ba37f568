// Package upstream implements the weighted list of candidate servers a
// matched Rule or Router resolves to, and the weighted-random selection
// among them.
package upstream

import (
	"fmt"
	"math/rand"
	"strings"
)

const defaultProtocol = "http"

// Server is one candidate destination: a protocol and a location
// (host[:port], or host:port/path — opaque to this package).
type Server struct {
	Protocol string
	Location string
}

func (s Server) String() string {
	proto := s.Protocol
	if proto == "" {
		proto = defaultProtocol
	}
	return fmt.Sprintf("%s://%s", proto, s.Location)
}

// Selection pairs a Server with its selection weight.
type Selection struct {
	Server Server
	Weight int
}

func (s Selection) String() string {
	return fmt.Sprintf("%s,%d", s.Server.String(), s.Weight)
}

// Upstream is an ordered, weighted list of servers. A zero-value Upstream
// has no servers; Pick panics on it.
type Upstream struct {
	selections []Selection
	total      int
	uniform    bool
}

// New builds an Upstream from selections, defaulting any zero/negative
// weight to 1.
func New(selections ...Selection) *Upstream {
	u := &Upstream{selections: make([]Selection, len(selections))}
	copy(u.selections, selections)
	for i, s := range u.selections {
		if s.Weight <= 0 {
			u.selections[i].Weight = 1
		}
	}
	u.recompute()
	return u
}

func (u *Upstream) recompute() {
	total := 0
	weights := make(map[int]struct{})
	for _, s := range u.selections {
		total += s.Weight
		weights[s.Weight] = struct{}{}
	}
	u.total = total
	u.uniform = len(weights) <= 1
}

// Selections returns a copy of the underlying selection list.
func (u *Upstream) Selections() []Selection {
	out := make([]Selection, len(u.selections))
	copy(out, u.selections)
	return out
}

// Len returns the number of servers.
func (u *Upstream) Len() int { return len(u.selections) }

// Pick performs a weighted-random selection using r as the source of
// randomness, returning the chosen Server. Pick panics if the upstream is
// empty — callers are expected to only invoke it on a non-empty Upstream
// (mirroring the panic-on-logic-impossible-fallthrough of the original).
func (u *Upstream) Pick(r *rand.Rand) Server {
	if len(u.selections) == 0 {
		panic("upstream: Pick called on empty Upstream")
	}
	if u.uniform {
		return u.selections[r.Intn(len(u.selections))].Server
	}
	target := r.Intn(u.total)
	acc := 0
	for _, s := range u.selections {
		acc += s.Weight
		if target < acc {
			return s.Server
		}
	}
	// Unreachable if total/selections are consistent.
	panic("upstream: weighted selection fell through")
}

func (u *Upstream) String() string {
	parts := make([]string, len(u.selections))
	for i, s := range u.selections {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}

// Equal reports whether two Upstreams select from the same ordered
// sequence of (Server, Weight) selections — canonical equality is
// selection-sequence equality, not pointer/instance identity.
func (u *Upstream) Equal(other *Upstream) bool {
	if u == nil || other == nil {
		return u == other
	}
	a, b := u.selections, other.selections
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
