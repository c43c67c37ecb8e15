// internal/segmentation/registry.go
package segmentation

import (
	"fmt"
	"sync"

	"github.com/wonderpush/segmenter/internal/types"
)

/*
 * Grammar registries.
 *
 * A Registry maps criterion or value keys to parser functions. Exact-name
 * parsers are looked up first; dynamic parsers are then tried in
 * registration order and the first one returning a node wins. A dynamic
 * parser declines a key by returning (nil, nil).
 *
 * A Grammar couples one criterion registry and one value registry with a
 * Mode. Grammars are assembled once and only read afterwards, so a built
 * grammar is safe for concurrent use without locking.
 */

// ParserFunc parses the input found under key into a node.
// Returning (nil, nil) means the key is not handled by this parser.
type ParserFunc[N any] func(ctx *ParsingContext, key string, input any) (N, error)

// CriterionParserFunc parses criterion inputs.
type CriterionParserFunc = ParserFunc[Criterion]

// ValueParserFunc parses value inputs.
type ValueParserFunc = ParserFunc[Value]

// Registry holds exact-name and dynamic parsers for one node family.
type Registry[N any] struct {
	exact   map[string]ParserFunc[N]
	dynamic []ParserFunc[N]
}

// NewRegistry creates an empty registry.
func NewRegistry[N any]() *Registry[N] {
	return &Registry[N]{exact: make(map[string]ParserFunc[N])}
}

// RegisterExact binds key to fn.
// Returns ErrDuplicateKey if key is already bound.
func (r *Registry[N]) RegisterExact(key string, fn ParserFunc[N]) error {
	if _, exists := r.exact[key]; exists {
		return fmt.Errorf("%w: %q", types.ErrDuplicateKey, key)
	}
	r.exact[key] = fn
	return nil
}

// RegisterDynamic appends fn to the ordered fallback list.
func (r *Registry[N]) RegisterDynamic(fn ParserFunc[N]) {
	r.dynamic = append(r.dynamic, fn)
}

// Len returns the number of exact-name and dynamic parsers.
func (r *Registry[N]) Len() (exact, dynamic int) {
	return len(r.exact), len(r.dynamic)
}

// Parse resolves key and runs the matching parser.
// Returns ok=false when no parser handles key.
func (r *Registry[N]) Parse(ctx *ParsingContext, key string, input any) (result N, ok bool, err error) {
	var zero N
	if fn, exists := r.exact[key]; exists {
		n, err := fn(ctx, key, input)
		if err != nil {
			return zero, true, err
		}
		return n, !isNil(n), nil
	}
	for _, fn := range r.dynamic {
		n, err := fn(ctx, key, input)
		if err != nil {
			return zero, true, err
		}
		if !isNil(n) {
			return n, true, nil
		}
	}
	return zero, false, nil
}

func isNil[N any](n N) bool {
	return any(n) == nil
}

// Mode selects how unrecognized keys are handled.
type Mode int

const (
	// Tolerant substitutes Unknown nodes for unrecognized keys.
	Tolerant Mode = iota
	// Strict fails with ErrUnknownCriterion or ErrUnknownValue.
	Strict
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "tolerant"
}

// Grammar is the set of parsers and the unknown-key policy used by a Parser.
type Grammar struct {
	Criteria *Registry[Criterion]
	Values   *Registry[Value]
	Mode     Mode
}

// NewGrammar creates a grammar with empty registries.
func NewGrammar(mode Mode) *Grammar {
	return &Grammar{
		Criteria: NewRegistry[Criterion](),
		Values:   NewRegistry[Value](),
		Mode:     mode,
	}
}

var (
	defaultGrammarOnce sync.Once
	defaultGrammar     *Grammar
	strictGrammarOnce  sync.Once
	strictGrammar      *Grammar
)

// DefaultGrammar returns the shared tolerant grammar with all built-ins.
// Built on first use.
func DefaultGrammar() *Grammar {
	defaultGrammarOnce.Do(func() {
		defaultGrammar = mustBuiltinGrammar(Tolerant)
	})
	return defaultGrammar
}

// StrictGrammar returns the shared strict grammar with all built-ins.
// Used by validation tooling.
func StrictGrammar() *Grammar {
	strictGrammarOnce.Do(func() {
		strictGrammar = mustBuiltinGrammar(Strict)
	})
	return strictGrammar
}

// GrammarFor returns the shared built-in grammar for mode.
func GrammarFor(mode Mode) *Grammar {
	if mode == Strict {
		return StrictGrammar()
	}
	return DefaultGrammar()
}

// NewBuiltinGrammar creates a fresh grammar with all built-ins registered.
// Callers extend it with their own parsers before first use.
func NewBuiltinGrammar(mode Mode) (*Grammar, error) {
	g := NewGrammar(mode)
	if err := RegisterBuiltinCriteria(g.Criteria); err != nil {
		return nil, err
	}
	if err := RegisterBuiltinValues(g.Values); err != nil {
		return nil, err
	}
	return g, nil
}

func mustBuiltinGrammar(mode Mode) *Grammar {
	g, err := NewBuiltinGrammar(mode)
	if err != nil {
		panic(fmt.Sprintf("built-in segmentation grammar is inconsistent: %v", err))
	}
	return g
}
