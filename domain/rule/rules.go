package rule

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/artpar/selector/domain/dsl"
	"github.com/artpar/selector/domain/expr"
	"github.com/artpar/selector/domain/rumperr"
	"github.com/artpar/selector/domain/schema"
	"github.com/artpar/selector/domain/upstream"
	"github.com/rs/zerolog"
)

// ErrorPolicy controls what Rules.Match does when an entry's expression
// raises while being evaluated.
type ErrorPolicy int

const (
	// ErrorDisable disables the offending entry and continues matching
	// the rest of the list.
	ErrorDisable ErrorPolicy = iota
	// ErrorSuppress skips the offending entry for this call only, without
	// disabling it.
	ErrorSuppress
	// ErrorRaise aborts Match and returns the error to the caller.
	ErrorRaise
)

// Options configures a Rules list at construction time.
type Options struct {
	RequestSchema *schema.Schema
	Compile       bool
	Strict        bool
	AutoDisable   bool
	Logger        zerolog.Logger
}

// Rules is an ordered, mutable sequence of routing rules evaluated
// first-match. It behaves like a slice of Entry with the added bookkeeping
// of a disabled set and an optional shared-symbol compiled mode.
type Rules struct {
	mu       sync.Mutex
	entries  []Entry
	disabled map[int]bool

	schema      *schema.Schema
	compile     bool
	strict      bool
	autoDisable bool
	symbols     *expr.SymbolTable
	logger      zerolog.Logger
}

// New builds an empty Rules list against opts.RequestSchema.
func New(opts Options) *Rules {
	r := &Rules{
		disabled:    make(map[int]bool),
		schema:      opts.RequestSchema,
		strict:      opts.Strict,
		autoDisable: opts.AutoDisable,
		logger:      opts.Logger,
	}
	if opts.Compile {
		r.SetCompile(true)
	}
	return r
}

// SetAutoDisable toggles whether a Match call defaults to ErrorDisable (on
// error, quarantine the offending rule) or ErrorSuppress (on error, skip
// it for this call only). Has no effect on a Match call given an explicit
// policy.
func (r *Rules) SetAutoDisable(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoDisable = on
}

// Len reports the number of rules, including disabled ones.
func (r *Rules) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Get returns the entry at index i.
func (r *Rules) Get(i int) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[i]
}

// coerce turns a string, *Rule or *CompiledRule into an Entry consistent
// with the list's current compile mode.
func (r *Rules) coerce(value interface{}) (Entry, error) {
	var entry Entry
	switch v := value.(type) {
	case string:
		e, u, err := dsl.ParseRule(v, r.schema)
		if err != nil {
			return nil, err
		}
		entry = &Rule{Expr: e, Up: u}
	case *Rule:
		entry = v
	case *CompiledRule:
		entry = v.Uncompiled()
	case Entry:
		entry = v
	default:
		return nil, fmt.Errorf("rule: %v is not a string, *Rule or *CompiledRule", value)
	}
	if r.compile {
		if rule, ok := entry.(*Rule); ok {
			entry = rule.Compile(r.symbols)
		}
	}
	return entry, nil
}

// Set replaces the entry at index i.
func (r *Rules) Set(i int, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.coerce(value)
	if err != nil {
		return err
	}
	r.entries[i] = entry
	return nil
}

// Insert inserts value at index i, shifting subsequent entries (and their
// disabled-by-index bookkeeping) up by one.
func (r *Rules) Insert(i int, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.coerce(value)
	if err != nil {
		return err
	}
	r.entries = append(r.entries, nil)
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = entry
	r.disabled = shiftDisabled(r.disabled, i, 1)
	return nil
}

// Append adds value to the end of the list.
func (r *Rules) Append(value interface{}) error {
	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	return r.Insert(n, value)
}

// Delete removes the entry at index i.
func (r *Rules) Delete(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.entries) {
		return fmt.Errorf("rule: index %d out of range", i)
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.disabled = shiftDisabled(r.disabled, i, -1)
	return nil
}

func shiftDisabled(disabled map[int]bool, at, delta int) map[int]bool {
	out := make(map[int]bool, len(disabled))
	for idx := range disabled {
		switch {
		case idx < at:
			out[idx] = true
		case delta > 0:
			out[idx+delta] = true
		case idx > at:
			out[idx+delta] = true
		// idx == at with delta < 0: the disabled entry was deleted, drop it
		}
	}
	return out
}

// Disable marks the rule at index i as disabled.
func (r *Rules) Disable(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[i] = true
}

// Enable clears the disabled flag on the rule at index i.
func (r *Rules) Enable(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabled, i)
}

// DisableAll disables every rule currently in the list.
func (r *Rules) DisableAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		r.disabled[i] = true
	}
}

// EnableAll clears every disabled flag.
func (r *Rules) EnableAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = make(map[int]bool)
}

// SetCompile toggles compiled mode, rebuilding every entry against a fresh
// shared SymbolTable (compiled) or detaching them back into plain Rules
// (uncompiled). A no-op if the mode is unchanged.
func (r *Rules) SetCompile(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on == r.compile {
		return
	}
	r.compile = on
	if on {
		r.symbols = expr.NewSymbolTable()
		for i, e := range r.entries {
			r.entries[i] = &Rule{Expr: e.Expression(), Up: e.Upstream()}
			r.entries[i] = r.entries[i].(*Rule).Compile(r.symbols)
		}
	} else {
		r.symbols = nil
		for i, e := range r.entries {
			r.entries[i] = &Rule{Expr: e.Expression(), Up: e.Upstream()}
		}
	}
}

// Load parses rule text from r, one rule per line, blank lines and lines
// starting with '#' ignored. If strict is true (it defaults to the
// list's own Strict option, which is off unless set) a parse failure
// aborts the load; otherwise it is logged and the line is skipped.
func (r *Rules) Load(src io.Reader, strict ...bool) error {
	useStrict := r.strict
	if len(strict) > 0 {
		useStrict = strict[0]
	}
	scanner := bufio.NewScanner(src)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, u, err := dsl.ParseRule(line, r.schema)
		if err != nil {
			if useStrict {
				return err
			}
			r.logger.Warn().Err(err).Int("line", lineNo).Msg("unable to parse rule, skipping")
			continue
		}
		if err := r.Append(&Rule{Expr: e, Up: u}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Loads is Load over a string.
func (r *Rules) Loads(s string, strict ...bool) error {
	return r.Load(strings.NewReader(s), strict...)
}

// Dump writes every rule's canonical text form to w, one per line.
func (r *Rules) Dump(w io.Writer) error {
	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()
	for _, e := range entries {
		if _, err := io.WriteString(w, e.String()+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Dumps is Dump into a string.
func (r *Rules) Dumps() string {
	var b strings.Builder
	_ = r.Dump(&b)
	return b.String()
}

func defaultErrorPolicy(autoDisable bool) ErrorPolicy {
	if autoDisable {
		return ErrorDisable
	}
	return ErrorSuppress
}

// Match evaluates the rule list against req in order, returning the first
// matched Upstream (or nil if none match). policy controls what happens
// when an entry's expression errors during evaluation; pass nil to use
// the list's default (ErrorDisable if AutoDisable, else ErrorSuppress).
//
// On an error the offending entry's index is still advanced past in the
// same pass — an error does not cause the loop to retry the same index,
// it is treated exactly like a disabled, non-matching entry for the rest
// of this call.
func (r *Rules) Match(req *schema.Request, policy *ErrorPolicy) (*upstream.Upstream, error) {
	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	disabled := make(map[int]bool, len(r.disabled))
	for k, v := range r.disabled {
		disabled[k] = v
	}
	symbols := r.symbols
	compiled := r.compile
	autoDisable := r.autoDisable
	r.mu.Unlock()

	effective := defaultErrorPolicy(autoDisable)
	if policy != nil {
		effective = *policy
	}

	var ctx *expr.Context
	if compiled {
		ctx = expr.NewContext(req, symbols)
	}

	i := 0
	for i < len(entries) {
		if disabled[i] {
			i++
			continue
		}
		var (
			up  *upstream.Upstream
			err error
		)
		if compiled {
			up, err = entries[i].MatchContext(ctx)
		} else {
			up, err = entries[i].MatchContext(expr.NewContext(req, expr.NewSymbolTable()))
		}
		if err != nil {
			wrapped := &rumperr.RuleEvaluationError{Index: i, Rule: entries[i].String(), Err: err}
			switch effective {
			case ErrorRaise:
				return nil, wrapped
			case ErrorDisable:
				r.Disable(i)
				disabled[i] = true
			}
			i++
			continue
		}
		if up != nil {
			return up, nil
		}
		i++
	}
	return nil, nil
}
