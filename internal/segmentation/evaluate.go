// internal/segmentation/evaluate.go
package segmentation

import (
	"math"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/wonderpush/segmenter/internal/geo"
)

/*
 * Segment evaluation.
 *
 * An Evaluator is bound to one Data snapshot and one clock reading. It
 * walks the AST with an exhaustive switch over node types:
 *
 *   - criteria produce booleans, short-circuiting And/Or
 *   - values produce runtime scalars (relative dates resolve against the
 *     clock reading taken when the evaluator was built)
 *   - data sources produce value lists read from the snapshot
 *
 * Field sources read from the document of their root: the installation,
 * the user, or the event bound by the innermost event join (no event
 * bound reads as empty). Event joins are existential over Data.Events.
 *
 * Evaluation never fails. Unknown nodes, incomparable types and malformed
 * runtime data all degrade to false or to an empty value list.
 */

// Evaluator matches criteria against one runtime snapshot.
type Evaluator struct {
	data   *Data
	now    int64
	event  map[string]any
	logger hclog.Logger
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*evaluatorConfig)

type evaluatorConfig struct {
	now    func() time.Time
	logger hclog.Logger
}

// WithEvaluatorClock sets the clock read for relative dates and presence.
func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(c *evaluatorConfig) {
		c.now = now
	}
}

// WithEvaluatorLogger sets the logger receiving evaluation traces.
func WithEvaluatorLogger(logger hclog.Logger) EvaluatorOption {
	return func(c *evaluatorConfig) {
		c.logger = logger
	}
}

// NewEvaluator binds an evaluator to data. A nil data evaluates as EmptyData.
func NewEvaluator(data *Data, opts ...EvaluatorOption) *Evaluator {
	cfg := evaluatorConfig{now: time.Now, logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if data == nil {
		data = EmptyData()
	}
	return &Evaluator{
		data:   data,
		now:    cfg.now().UnixMilli(),
		logger: cfg.logger,
	}
}

// ForEvent returns a copy of e with event bound as the current event.
// Field sources under an event root read from it.
func (e *Evaluator) ForEvent(event map[string]any) *Evaluator {
	child := *e
	child.event = event
	return &child
}

// Matches evaluates c against the bound snapshot.
func (e *Evaluator) Matches(c Criterion) bool {
	switch n := c.(type) {
	case *MatchAllCriterion:
		return true

	case *AndCriterion:
		for _, child := range n.Children {
			if !e.Matches(child) {
				if e.logger.IsTrace() {
					e.logger.Trace("and: child is false", "child", Format(child))
				}
				return false
			}
		}
		return true

	case *OrCriterion:
		for _, child := range n.Children {
			if e.Matches(child) {
				if e.logger.IsTrace() {
					e.logger.Trace("or: child is true", "child", Format(child))
				}
				return true
			}
		}
		return false

	case *NotCriterion:
		return !e.Matches(n.Child)

	case *EqCriterion:
		return e.matchEq(n)

	case *AnyCriterion:
		return e.matchAny(n)

	case *AllCriterion:
		return e.matchAll(n)

	case *ComparisonCriterion:
		return e.matchComparison(n)

	case *PrefixCriterion:
		return e.matchPrefix(n)

	case *InsideCriterion:
		return e.matchInside(n)

	case *PresenceCriterion:
		return e.matchPresence(n)

	case *GeoCriterion:
		e.logger.Warn("unsupported criterion", "criterion", "geo")
		return false

	case *LastActivityDateCriterion:
		if n.DateComparison == nil {
			return e.data.LastAppOpenDate > 0
		}
		return e.Matches(n.DateComparison)

	case *SubscriptionStatusCriterion:
		status := e.subscriptionStatus()
		e.logger.Trace("subscriptionStatus", "actual", status, "expected", n.Status)
		return status == n.Status

	case *JoinCriterion:
		return e.matchJoin(n)

	case *UnknownCriterion:
		e.logger.Warn("unsupported unknown criterion", "key", n.Key)
		return false

	default:
		return false
	}
}

func (e *Evaluator) matchEq(n *EqCriterion) bool {
	literal, ok := e.valueOf(n.Value)
	if !ok {
		return false
	}
	values := e.sourceValues(n.Context().DataSource)
	var result bool
	if literal == nil {
		result = len(values) == 0
	} else {
		result = containsEqual(values, literal)
	}
	e.logger.Trace("eq", "source", values, "literal", literal, "result", result)
	return result
}

func (e *Evaluator) matchAny(n *AnyCriterion) bool {
	values := e.sourceValues(n.Context().DataSource)
	for _, v := range n.Values {
		literal, ok := e.valueOf(v)
		if !ok {
			continue
		}
		if found(values, literal) {
			e.logger.Trace("any: literal found", "source", values, "literal", literal)
			return true
		}
	}
	return false
}

func (e *Evaluator) matchAll(n *AllCriterion) bool {
	values := e.sourceValues(n.Context().DataSource)
	for _, v := range n.Values {
		literal, ok := e.valueOf(v)
		if !ok || !found(values, literal) {
			e.logger.Trace("all: literal not found", "source", values, "literal", literal)
			return false
		}
	}
	return true
}

// found reports whether literal is in values. A null literal is found in an empty list.
func found(values []any, literal any) bool {
	if literal == nil {
		return len(values) == 0
	}
	return containsEqual(values, literal)
}

func (e *Evaluator) matchComparison(n *ComparisonCriterion) bool {
	literal, ok := e.valueOf(n.Value)
	if !ok {
		return false
	}
	values := e.sourceValues(n.Context().DataSource)
	for _, v := range values {
		if Compare(n.Comparator, v, literal) {
			e.logger.Trace("comparison matched", "value", v, "comparator", n.Comparator, "literal", literal)
			return true
		}
	}
	return false
}

func (e *Evaluator) matchPrefix(n *PrefixCriterion) bool {
	values := e.sourceValues(n.Context().DataSource)
	for _, v := range values {
		if comparePrefix(v, n.Value.Value) {
			return true
		}
	}
	return false
}

func (e *Evaluator) matchInside(n *InsideCriterion) bool {
	area := n.Value.Area()
	for _, v := range e.sourceValues(n.Context().DataSource) {
		loc, ok := locationOf(v)
		if ok && area.Contains(loc) {
			return true
		}
	}
	return false
}

// locationOf decodes a runtime value as a {lat, lon} object or a geohash string.
func locationOf(v any) (geo.Location, bool) {
	switch v.(type) {
	case string, map[string]any:
		loc, err := decodeLocation("geolocation", v)
		return loc, err == nil
	}
	return geo.Location{}, false
}

func (e *Evaluator) matchPresence(n *PresenceCriterion) bool {
	info := e.data.Presence
	present := info == nil || (info.FromDate <= e.now && info.UntilDate >= e.now)
	if present != n.Present {
		e.logger.Trace("presence mismatch", "present", present, "expected", n.Present)
		return false
	}
	if n.ElapsedTime != nil && !e.Matches(n.ElapsedTime) {
		return false
	}
	if n.SinceDate != nil && !e.Matches(n.SinceDate) {
		return false
	}
	return true
}

func (e *Evaluator) subscriptionStatus() SubscriptionStatus {
	installation := e.data.Installation
	pushToken, _ := installation["pushToken"].(map[string]any)
	if _, ok := pushToken["data"].(string); !ok {
		return OptOut
	}
	preferences, _ := installation["preferences"].(map[string]any)
	if status, _ := preferences["subscriptionStatus"].(string); status == string(OptOut) {
		return SoftOptOut
	}
	return OptIn
}

func (e *Evaluator) matchJoin(n *JoinCriterion) bool {
	switch n.Context().DataSource.Kind {
	case SourceEvent:
		for _, event := range e.data.Events {
			if e.ForEvent(event).Matches(n.Child) {
				e.logger.Trace("join: event matched", "event", event)
				return true
			}
		}
		return false
	case SourceInstallation:
		return e.Matches(n.Child)
	case SourceUser:
		if e.data.User == nil {
			return false
		}
		return e.Matches(n.Child)
	default:
		e.logger.Warn("unsupported join", "source", n.Context().DataSource.String())
		return false
	}
}

// valueOf resolves a literal. Returns ok=false for values that can never match.
func (e *Evaluator) valueOf(v Value) (any, bool) {
	switch n := v.(type) {
	case *NullValue:
		return nil, true
	case *BoolValue:
		return n.Value, true
	case *NumberValue:
		return n.Value, true
	case *StringValue:
		return n.Value, true
	case *DateValue:
		return n.Millis, true
	case *RelativeDateValue:
		return n.Duration.ApplyToMillis(e.now), true
	case *DurationValue:
		d, _ := toNumber(n.MillisAt(time.UnixMilli(e.now)))
		return d, true
	case *GeoLocationValue:
		return n.Value, true
	case *GeoBoxValue:
		return n.Value, true
	case *GeoCircleValue:
		return n.Value, true
	case *GeoPolygonValue:
		return n.Value, true
	case *UnknownValue:
		e.logger.Warn("unsupported unknown value", "key", n.Key)
		return nil, false
	default:
		return nil, false
	}
}

// sourceValues reads the value list of ds from the snapshot.
func (e *Evaluator) sourceValues(ds *DataSource) []any {
	switch ds.Kind {
	case SourceField:
		return ResolvePath(e.document(ds.Root()), ds.FullPath())
	case SourceLastActivityDate:
		return []any{e.data.LastAppOpenDate}
	case SourcePresenceSinceDate:
		info := e.data.Presence
		switch {
		case ds.Present && info == nil:
			return []any{e.now}
		case ds.Present:
			return []any{info.FromDate}
		case info == nil:
			return []any{int64(math.MaxInt64)}
		default:
			return []any{info.UntilDate}
		}
	case SourcePresenceElapsedTime:
		info := e.data.Presence
		switch {
		case info == nil:
			return []any{int64(0)}
		case ds.Present:
			return []any{max(0, e.now-info.FromDate)}
		default:
			return []any{info.ElapsedTime}
		}
	default:
		// roots, geo location and geo date have no value list
		return nil
	}
}

// document returns the snapshot document field sources under root read from.
func (e *Evaluator) document(root *DataSource) map[string]any {
	switch root.Kind {
	case SourceInstallation:
		return e.data.Installation
	case SourceUser:
		return e.data.User
	case SourceEvent:
		return e.event
	default:
		return nil
	}
}
