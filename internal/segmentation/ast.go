// internal/segmentation/ast.go
package segmentation

import (
	"time"

	"github.com/wonderpush/segmenter/internal/geo"
	"github.com/wonderpush/segmenter/internal/iso8601"
)

/*
 * Abstract syntax tree for segments.
 *
 * Criterion and Value are closed sum types: every variant embeds node and
 * implements an unexported marker method, so only this package can add
 * variants. The evaluator and the formatter switch over the concrete types.
 *
 * Every node keeps the ParsingContext it was parsed under. The context's
 * data source tells the evaluator where to read values from.
 *
 * Nodes are immutable once parsed and safe to share between goroutines.
 */

// ParsingContext is the lineage at a parse point.
type ParsingContext struct {
	Parser     *Parser
	Parent     *ParsingContext
	DataSource *DataSource
}

// WithDataSource forks a child context reading from ds.
func (c *ParsingContext) WithDataSource(ds *DataSource) *ParsingContext {
	return &ParsingContext{Parser: c.Parser, Parent: c, DataSource: ds}
}

type node struct {
	ctx *ParsingContext
}

// Context returns the context the node was parsed under.
func (n node) Context() *ParsingContext { return n.ctx }

// Criterion is a boolean-producing node.
type Criterion interface {
	Context() *ParsingContext
	isCriterion()
}

// Value is a data-producing node.
type Value interface {
	Context() *ParsingContext
	isValue()
}

// AreaValue is a value describing a geographic area usable with "inside".
type AreaValue interface {
	Value
	Area() geo.Area
}

// Comparator selects the ordering test of a ComparisonCriterion.
type Comparator int

const (
	Gt Comparator = iota
	Gte
	Lt
	Lte
)

// String returns the grammar key of the comparator.
func (c Comparator) String() string {
	switch c {
	case Gt:
		return "gt"
	case Gte:
		return "gte"
	case Lt:
		return "lt"
	case Lte:
		return "lte"
	default:
		return "unknown"
	}
}

// SubscriptionStatus is the push subscription state of an installation.
type SubscriptionStatus string

const (
	OptIn      SubscriptionStatus = "optIn"
	OptOut     SubscriptionStatus = "optOut"
	SoftOptOut SubscriptionStatus = "softOptOut"
)

// Criteria

type MatchAllCriterion struct{ node }

type AndCriterion struct {
	node
	Children []Criterion
}

type OrCriterion struct {
	node
	Children []Criterion
}

type NotCriterion struct {
	node
	Child Criterion
}

type EqCriterion struct {
	node
	Value Value
}

type AnyCriterion struct {
	node
	Values []Value
}

type AllCriterion struct {
	node
	Values []Value
}

type ComparisonCriterion struct {
	node
	Comparator Comparator
	Value      Value
}

type PrefixCriterion struct {
	node
	Value *StringValue
}

type InsideCriterion struct {
	node
	Value AreaValue
}

// PresenceCriterion optional sub-criteria are nil when absent.
type PresenceCriterion struct {
	node
	Present     bool
	SinceDate   Criterion
	ElapsedTime Criterion
}

type GeoCriterion struct {
	node
	Location Criterion
	Date     Criterion
}

// LastActivityDateCriterion with a nil DateComparison checks that the
// application was ever opened.
type LastActivityDateCriterion struct {
	node
	DateComparison Criterion
}

type SubscriptionStatusCriterion struct {
	node
	Status SubscriptionStatus
}

// JoinCriterion re-roots evaluation of Child onto the data source of its own context.
type JoinCriterion struct {
	node
	Child Criterion
}

// UnknownCriterion stands in for a key no parser recognized in tolerant mode.
type UnknownCriterion struct {
	node
	Key   string
	Input any
}

func (MatchAllCriterion) isCriterion()           {}
func (AndCriterion) isCriterion()                {}
func (OrCriterion) isCriterion()                 {}
func (NotCriterion) isCriterion()                {}
func (EqCriterion) isCriterion()                 {}
func (AnyCriterion) isCriterion()                {}
func (AllCriterion) isCriterion()                {}
func (ComparisonCriterion) isCriterion()         {}
func (PrefixCriterion) isCriterion()             {}
func (InsideCriterion) isCriterion()             {}
func (PresenceCriterion) isCriterion()           {}
func (GeoCriterion) isCriterion()                {}
func (LastActivityDateCriterion) isCriterion()   {}
func (SubscriptionStatusCriterion) isCriterion() {}
func (JoinCriterion) isCriterion()               {}
func (UnknownCriterion) isCriterion()            {}

// Values

type NullValue struct{ node }

type BoolValue struct {
	node
	Value bool
}

// NumberValue holds an int64 or a float64.
type NumberValue struct {
	node
	Value any
}

type StringValue struct {
	node
	Value string
}

// DateValue is an absolute date in epoch milliseconds.
type DateValue struct {
	node
	Millis int64
}

// RelativeDateValue is resolved against the evaluation clock.
type RelativeDateValue struct {
	node
	Duration iso8601.Duration
}

// DurationValue is a length of time in milliseconds. ISO 8601 durations
// keep their calendar parts in ISO and are measured at evaluation time.
type DurationValue struct {
	node
	Millis float64
	ISO    *iso8601.Duration
}

// MillisAt returns the length of the duration when applied at now.
func (v *DurationValue) MillisAt(now time.Time) float64 {
	if v.ISO != nil {
		return float64(v.ISO.Millis(now))
	}
	return v.Millis
}

type GeoLocationValue struct {
	node
	Value geo.Location
}

type GeoBoxValue struct {
	node
	Value geo.Box
}

type GeoCircleValue struct {
	node
	Value geo.Circle
}

type GeoPolygonValue struct {
	node
	Value geo.Polygon
}

// UnknownValue stands in for a value type no parser recognized in tolerant mode.
type UnknownValue struct {
	node
	Key   string
	Input any
}

func (NullValue) isValue()         {}
func (BoolValue) isValue()         {}
func (NumberValue) isValue()       {}
func (StringValue) isValue()       {}
func (DateValue) isValue()         {}
func (RelativeDateValue) isValue() {}
func (DurationValue) isValue()     {}
func (GeoLocationValue) isValue()  {}
func (GeoBoxValue) isValue()       {}
func (GeoCircleValue) isValue()    {}
func (GeoPolygonValue) isValue()   {}
func (UnknownValue) isValue()      {}

func (v *GeoBoxValue) Area() geo.Area     { return v.Value }
func (v *GeoCircleValue) Area() geo.Area  { return v.Value }
func (v *GeoPolygonValue) Area() geo.Area { return v.Value }
