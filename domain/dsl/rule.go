package dsl

import (
	"github.com/artpar/selector/domain/expr"
	"github.com/artpar/selector/domain/rumperr"
	"github.com/artpar/selector/domain/schema"
	"github.com/artpar/selector/domain/upstream"
)

// ParseRule parses "expression => upstream" text into its two halves
// against sch. The arrow is located by lexing rather than string search so
// a "=>" occurring inside a quoted string literal is never mistaken for
// the rule separator. The upstream half (with its "://" and ":port") is not
// part of the expression grammar, so a lex error after the arrow is ignored:
// only the tokens before the first arrow are used.
func ParseRule(text string, sch *schema.Schema) (expr.Expression, *upstream.Upstream, error) {
	l := &lexer{src: text}
	_, lexErr := l.run()
	arrowPos := -1
	for _, t := range l.tokens {
		if t.Type == TokArrow {
			arrowPos = t.Pos
			break
		}
	}
	if arrowPos < 0 {
		if lexErr != nil {
			return nil, nil, &rumperr.ParseError{Input: text, Reason: lexErr.Error()}
		}
		return nil, nil, &rumperr.ParseError{Input: text, Reason: "missing => separator"}
	}
	left := text[:arrowPos]
	right := text[arrowPos+2:]

	e, err := ParseExpression(left, sch)
	if err != nil {
		return nil, nil, err
	}
	u, err := ParseUpstream(right)
	if err != nil {
		return nil, nil, err
	}
	return e, u, nil
}
