// internal/segmentation/criteria.go
package segmentation

import (
	"strings"
)

/*
 * Built-in criteria.
 *
 * Vocabulary:
 *   .path                      field access below the current source
 *   and, or, not               boolean combinators
 *   lastActivityDate, presence,
 *   geo, subscriptionStatus    installation-only criteria
 *   user, installation, event  cross-root hops (joins)
 *   eq, any, all, gt, gte,
 *   lt, lte, prefix, inside    field-only comparisons
 *
 * Cross-root hops resolve against the root of the current source. A hop
 * to the current root re-roots in place; a hop between user and event
 * goes through the installation.
 */

// RegisterBuiltinCriteria binds the built-in criterion vocabulary into r.
func RegisterBuiltinCriteria(r *Registry[Criterion]) error {
	r.RegisterDynamic(parseDotField)

	exact := []struct {
		key string
		fn  CriterionParserFunc
	}{
		{"and", parseAnd},
		{"or", parseOr},
		{"not", parseNot},
		{"lastActivityDate", parseLastActivityDate},
		{"presence", parsePresence},
		{"geo", parseGeo},
		{"subscriptionStatus", parseSubscriptionStatus},
		{"user", parseUser},
		{"installation", parseInstallation},
		{"event", parseEvent},
		{"eq", parseEq},
		{"any", parseAny},
		{"all", parseAll},
		{"gt", comparisonParser(Gt)},
		{"gte", comparisonParser(Gte)},
		{"lt", comparisonParser(Lt)},
		{"lte", comparisonParser(Lte)},
		{"prefix", parsePrefix},
		{"inside", parseInside},
	}
	for _, e := range exact {
		if err := r.RegisterExact(e.key, e.fn); err != nil {
			return err
		}
	}
	return nil
}

func parseDotField(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if !strings.HasPrefix(key, ".") {
		return nil, nil
	}
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}
	field := FieldSource(ctx.DataSource, strings.Split(key[1:], "."))
	return ctx.Parser.ParseCriterion(ctx.WithDataSource(field), obj)
}

func parseChildren(ctx *ParsingContext, key string, input any) ([]Criterion, error) {
	items, err := ensureArrayOfObjects(key, input)
	if err != nil {
		return nil, err
	}
	children := make([]Criterion, 0, len(items))
	for _, item := range items {
		child, err := ctx.Parser.ParseCriterion(ctx, item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func parseAnd(ctx *ParsingContext, key string, input any) (Criterion, error) {
	children, err := parseChildren(ctx, key, input)
	if err != nil {
		return nil, err
	}
	return &AndCriterion{node: node{ctx}, Children: children}, nil
}

func parseOr(ctx *ParsingContext, key string, input any) (Criterion, error) {
	children, err := parseChildren(ctx, key, input)
	if err != nil {
		return nil, err
	}
	return &OrCriterion{node: node{ctx}, Children: children}, nil
}

func parseNot(ctx *ParsingContext, key string, input any) (Criterion, error) {
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}
	child, err := ctx.Parser.ParseCriterion(ctx, obj)
	if err != nil {
		return nil, err
	}
	return &NotCriterion{node: node{ctx}, Child: child}, nil
}

func parseLastActivityDate(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if err := requireInstallation(ctx, key); err != nil {
		return nil, err
	}
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}
	// {} only checks that the application was ever opened
	if len(obj) == 0 {
		return &LastActivityDateCriterion{node: node{ctx}}, nil
	}
	source := derivedSource(SourceLastActivityDate, ctx.DataSource, false)
	dateComparison, err := ctx.Parser.ParseCriterion(ctx.WithDataSource(source), obj)
	if err != nil {
		return nil, err
	}
	return &LastActivityDateCriterion{node: node{ctx}, DateComparison: dateComparison}, nil
}

func parsePresence(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if err := requireInstallation(ctx, key); err != nil {
		return nil, err
	}
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}
	present, ok := obj["present"].(bool)
	if !ok {
		return nil, badInputf("%q expects a boolean", key+".present")
	}

	result := &PresenceCriterion{node: node{ctx}, Present: present}
	sinceDate := derivedSource(SourcePresenceSinceDate, ctx.DataSource, present)
	if result.SinceDate, err = parseOptionalSub(ctx, key+".sinceDate", obj, "sinceDate", sinceDate); err != nil {
		return nil, err
	}
	elapsedTime := derivedSource(SourcePresenceElapsedTime, ctx.DataSource, present)
	if result.ElapsedTime, err = parseOptionalSub(ctx, key+".elapsedTime", obj, "elapsedTime", elapsedTime); err != nil {
		return nil, err
	}
	return result, nil
}

func parseGeo(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if err := requireInstallation(ctx, key); err != nil {
		return nil, err
	}
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}

	result := &GeoCriterion{node: node{ctx}}
	location := derivedSource(SourceGeoLocation, ctx.DataSource, false)
	if result.Location, err = parseOptionalSub(ctx, key+".location", obj, "location", location); err != nil {
		return nil, err
	}
	date := derivedSource(SourceGeoDate, ctx.DataSource, false)
	if result.Date, err = parseOptionalSub(ctx, key+".date", obj, "date", date); err != nil {
		return nil, err
	}
	return result, nil
}

// parseOptionalSub parses obj[field] under ds, or returns nil when the field is absent.
func parseOptionalSub(ctx *ParsingContext, key string, obj map[string]any, field string, ds *DataSource) (Criterion, error) {
	raw, exists := obj[field]
	if !exists {
		return nil, nil
	}
	sub, err := ensureObject(key, raw)
	if err != nil {
		return nil, err
	}
	return ctx.Parser.ParseCriterion(ctx.WithDataSource(ds), sub)
}

func parseSubscriptionStatus(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if err := requireInstallation(ctx, key); err != nil {
		return nil, err
	}
	s, ok := input.(string)
	if !ok {
		return nil, badInputf("%q expects a string", key)
	}
	status := SubscriptionStatus(s)
	switch status {
	case OptIn, OptOut, SoftOptOut:
		return &SubscriptionStatusCriterion{node: node{ctx}, Status: status}, nil
	default:
		return nil, badInputf(`%q must be one of "optIn", "optOut" or "softOptOut"`, key)
	}
}

func parseUser(ctx *ParsingContext, key string, input any) (Criterion, error) {
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}
	switch ctx.DataSource.Root().Kind {
	case SourceUser:
		return ctx.Parser.ParseCriterion(ctx.WithDataSource(UserSource()), obj)
	case SourceInstallation:
		return join(ctx, obj, UserSource())
	case SourceEvent:
		return join(ctx, obj, InstallationSource(), UserSource())
	}
	return nil, badInputf("%q is not supported in this context", key)
}

func parseInstallation(ctx *ParsingContext, key string, input any) (Criterion, error) {
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}
	switch ctx.DataSource.Root().Kind {
	case SourceInstallation:
		return ctx.Parser.ParseCriterion(ctx.WithDataSource(InstallationSource()), obj)
	case SourceUser, SourceEvent:
		return join(ctx, obj, InstallationSource())
	}
	return nil, badInputf("%q is not supported in this context", key)
}

func parseEvent(ctx *ParsingContext, key string, input any) (Criterion, error) {
	obj, err := ensureObject(key, input)
	if err != nil {
		return nil, err
	}
	switch ctx.DataSource.Root().Kind {
	case SourceEvent:
		return ctx.Parser.ParseCriterion(ctx.WithDataSource(EventSource()), obj)
	case SourceInstallation:
		return join(ctx, obj, EventSource())
	case SourceUser:
		return join(ctx, obj, InstallationSource(), EventSource())
	}
	return nil, badInputf("%q is not supported in this context", key)
}

// join parses obj under the last of hops, wrapping it in one JoinCriterion per hop.
func join(ctx *ParsingContext, obj map[string]any, hops ...*DataSource) (Criterion, error) {
	contexts := make([]*ParsingContext, len(hops))
	curr := ctx
	for i, hop := range hops {
		curr = curr.WithDataSource(hop)
		contexts[i] = curr
	}
	result, err := ctx.Parser.ParseCriterion(curr, obj)
	if err != nil {
		return nil, err
	}
	for i := len(contexts) - 1; i >= 0; i-- {
		result = &JoinCriterion{node: node{contexts[i]}, Child: result}
	}
	return result, nil
}

func parseEq(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if err := requireField(ctx, key); err != nil {
		return nil, err
	}
	value, err := ctx.Parser.ParseValue(ctx, input)
	if err != nil {
		return nil, err
	}
	return &EqCriterion{node: node{ctx}, Value: value}, nil
}

func parseValues(ctx *ParsingContext, key string, input any) ([]Value, error) {
	if err := requireField(ctx, key); err != nil {
		return nil, err
	}
	items, err := ensureArray(key, input)
	if err != nil {
		return nil, err
	}
	values := make([]Value, 0, len(items))
	for _, item := range items {
		value, err := ctx.Parser.ParseValue(ctx, item)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func parseAny(ctx *ParsingContext, key string, input any) (Criterion, error) {
	values, err := parseValues(ctx, key, input)
	if err != nil {
		return nil, err
	}
	return &AnyCriterion{node: node{ctx}, Values: values}, nil
}

func parseAll(ctx *ParsingContext, key string, input any) (Criterion, error) {
	values, err := parseValues(ctx, key, input)
	if err != nil {
		return nil, err
	}
	return &AllCriterion{node: node{ctx}, Values: values}, nil
}

func comparisonParser(comparator Comparator) CriterionParserFunc {
	return func(ctx *ParsingContext, key string, input any) (Criterion, error) {
		if err := requireField(ctx, key); err != nil {
			return nil, err
		}
		value, err := ctx.Parser.ParseValue(ctx, input)
		if err != nil {
			return nil, err
		}
		return &ComparisonCriterion{node: node{ctx}, Comparator: comparator, Value: value}, nil
	}
}

func parsePrefix(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if err := requireField(ctx, key); err != nil {
		return nil, err
	}
	value, err := ctx.Parser.ParseValue(ctx, input)
	if err != nil {
		return nil, err
	}
	s, ok := value.(*StringValue)
	if !ok {
		return nil, badInputf("%q expects a string value", key)
	}
	return &PrefixCriterion{node: node{ctx}, Value: s}, nil
}

func parseInside(ctx *ParsingContext, key string, input any) (Criterion, error) {
	if err := requireField(ctx, key); err != nil {
		return nil, err
	}
	value, err := ctx.Parser.ParseValue(ctx, input)
	if err != nil {
		return nil, err
	}
	area, ok := value.(AreaValue)
	if !ok {
		return nil, badInputf("%q expects a compatible geo value", key)
	}
	return &InsideCriterion{node: node{ctx}, Value: area}, nil
}

func requireField(ctx *ParsingContext, key string) error {
	if ctx.DataSource.IsRoot() {
		return badInputf("%q is only supported in the context of a field", key)
	}
	return nil
}

func requireInstallation(ctx *ParsingContext, key string) error {
	if ctx.DataSource.Kind != SourceInstallation {
		return badInputf(`%q is only supported in the context of "installation"`, key)
	}
	return nil
}

func ensureObject(key string, input any) (map[string]any, error) {
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, badInputf("%q expects an object", key)
	}
	return obj, nil
}

func ensureArray(key string, input any) ([]any, error) {
	arr, ok := input.([]any)
	if !ok {
		return nil, badInputf("%q expects an array", key)
	}
	return arr, nil
}

func ensureArrayOfObjects(key string, input any) ([]map[string]any, error) {
	arr, err := ensureArray(key, input)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, badInputf("%q expects an array of objects", key)
		}
		out = append(out, obj)
	}
	return out, nil
}
