// internal/segmentation/parser.go
package segmentation

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonderpush/segmenter/internal/types"
)

/*
 * Recursive-descent parser from decoded JSON to AST.
 *
 * Inputs are decoded JSON values (see Normalize): maps, slices, strings,
 * booleans, int64/float64 numbers and nil.
 *
 * Criterion objects:
 *   - 0 keys: MatchAll when the context reads from a root, error otherwise
 *   - >1 keys: implicit conjunction of one single-key object per key, in
 *     sorted key order
 *   - 1 key: resolved through the criterion registry
 *
 * Value inputs: nil, booleans, numbers and strings are leaves; arrays are
 * rejected; objects must have exactly one key naming the value type,
 * resolved through the value registry.
 *
 * Unrecognized keys yield Unknown nodes in tolerant mode and
 * ErrUnknownCriterion / ErrUnknownValue in strict mode.
 */

// Parser turns decoded JSON segments into ASTs using a Grammar.
type Parser struct {
	grammar *Grammar
	now     func() time.Time
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithParserClock sets the clock used to convert ISO 8601 durations to milliseconds.
func WithParserClock(now func() time.Time) ParserOption {
	return func(p *Parser) {
		p.now = now
	}
}

// NewParser creates a parser over g.
func NewParser(g *Grammar, opts ...ParserOption) *Parser {
	p := &Parser{grammar: g, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Grammar returns the grammar the parser resolves keys with.
func (p *Parser) Grammar() *Grammar {
	return p.grammar
}

// Now returns the parser clock reading.
func (p *Parser) Now() time.Time {
	return p.now()
}

// Parse parses a segment under root.
func (p *Parser) Parse(input any, root *DataSource) (Criterion, error) {
	ctx := &ParsingContext{Parser: p, DataSource: root}
	return p.ParseCriterion(ctx, input)
}

// ParseCriterion parses a criterion object under ctx.
func (p *Parser) ParseCriterion(ctx *ParsingContext, input any) (Criterion, error) {
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, badInput("criterion expects an object")
	}

	switch len(obj) {
	case 0:
		if !ctx.DataSource.IsRoot() {
			return nil, badInput("missing data criterion")
		}
		return &MatchAllCriterion{node{ctx}}, nil

	case 1:
		for key, value := range obj {
			return p.parseSingleKeyCriterion(ctx, key, value)
		}
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	// Decoded objects lose their key order, so a multi-key object splits in
	// sorted key order. The conjunction has no side effects, so order only
	// shows in Format output.
	sort.Strings(keys)

	children := make([]Criterion, 0, len(keys))
	for _, key := range keys {
		child, err := p.ParseCriterion(ctx, map[string]any{key: obj[key]})
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return &AndCriterion{node: node{ctx}, Children: children}, nil
}

func (p *Parser) parseSingleKeyCriterion(ctx *ParsingContext, key string, value any) (Criterion, error) {
	if key == "" {
		return nil, badInput(`bad key ""`)
	}
	parsed, ok, err := p.grammar.Criteria.Parse(ctx, key, value)
	if err != nil {
		return nil, err
	}
	if ok {
		return parsed, nil
	}
	if p.grammar.Mode == Strict {
		return nil, fmt.Errorf("%w %q", types.ErrUnknownCriterion, key)
	}
	return &UnknownCriterion{node: node{ctx}, Key: key, Input: value}, nil
}

// ParseValue parses a value under ctx.
func (p *Parser) ParseValue(ctx *ParsingContext, input any) (Value, error) {
	switch v := input.(type) {
	case nil:
		return &NullValue{node{ctx}}, nil
	case bool:
		return &BoolValue{node: node{ctx}, Value: v}, nil
	case string:
		return &StringValue{node: node{ctx}, Value: v}, nil
	case []any:
		return nil, badInput("array values are not accepted")
	case map[string]any:
		if len(v) != 1 {
			return nil, badInput("object values can only have 1 key defining their type")
		}
		for key, inner := range v {
			return p.parseTypedValue(ctx, key, inner)
		}
	}
	if n, ok := toNumber(input); ok {
		return &NumberValue{node: node{ctx}, Value: n}, nil
	}
	return nil, badInput(fmt.Sprintf("unsupported value of type %T", input))
}

func (p *Parser) parseTypedValue(ctx *ParsingContext, key string, value any) (Value, error) {
	if key == "" {
		return nil, badInput(`bad value type ""`)
	}
	parsed, ok, err := p.grammar.Values.Parse(ctx, key, value)
	if err != nil {
		return nil, err
	}
	if ok {
		return parsed, nil
	}
	if p.grammar.Mode == Strict {
		return nil, fmt.Errorf("%w %q", types.ErrUnknownValue, key)
	}
	return &UnknownValue{node: node{ctx}, Key: key, Input: value}, nil
}

// badInput wraps msg in ErrBadInput.
func badInput(msg string) error {
	return fmt.Errorf("%w: %s", types.ErrBadInput, msg)
}

// wrapBadInput marks a value decoding error as bad segment input.
func wrapBadInput(err error) error {
	return fmt.Errorf("%w: %w", types.ErrBadInput, err)
}

// badInputf formats a message and wraps it in ErrBadInput.
func badInputf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{types.ErrBadInput}, args...)...)
}
