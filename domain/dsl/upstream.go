package dsl

import (
	"strconv"
	"strings"

	"github.com/artpar/selector/domain/rumperr"
	"github.com/artpar/selector/domain/upstream"
)

// ParseUpstream parses a space-separated list of "proto://location,weight"
// selections into an Upstream, the inverse of Upstream.String.
func ParseUpstream(text string) (*upstream.Upstream, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, &rumperr.ParseError{Input: text, Reason: "empty upstream"}
	}
	selections := make([]upstream.Selection, 0, len(fields))
	for _, tok := range fields {
		sel, err := parseSelection(tok)
		if err != nil {
			return nil, &rumperr.ParseError{Input: text, Reason: err.Error()}
		}
		selections = append(selections, sel)
	}
	return upstream.New(selections...), nil
}

func parseSelection(tok string) (upstream.Selection, error) {
	proto := ""
	rest := tok
	if idx := strings.Index(tok, "://"); idx >= 0 {
		proto = tok[:idx]
		rest = tok[idx+3:]
	}
	location := rest
	weight := 1
	if idx := strings.LastIndex(rest, ","); idx >= 0 {
		location = rest[:idx]
		w, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return upstream.Selection{}, err
		}
		weight = w
	}
	return upstream.Selection{
		Server: upstream.Server{Protocol: proto, Location: location},
		Weight: weight,
	}, nil
}
