// internal/segmentation/format.go
package segmentation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Format renders a criterion tree in a canonical one-line form, e.g.
// and(eq(installation.foo, "bar"), join(event, eq(event.type, "test"))).
// Two trees with the same structure and data sources render identically.
func Format(c Criterion) string {
	var b strings.Builder
	formatCriterion(&b, c)
	return b.String()
}

// FormatValue renders a value node in the same canonical form.
func FormatValue(v Value) string {
	var b strings.Builder
	formatValue(&b, v)
	return b.String()
}

func formatCriterion(b *strings.Builder, c Criterion) {
	switch n := c.(type) {
	case nil:
		b.WriteString("nil")
	case *MatchAllCriterion:
		b.WriteString("matchAll")
	case *AndCriterion:
		formatChildren(b, "and", n.Children)
	case *OrCriterion:
		formatChildren(b, "or", n.Children)
	case *NotCriterion:
		b.WriteString("not(")
		formatCriterion(b, n.Child)
		b.WriteString(")")
	case *EqCriterion:
		fmt.Fprintf(b, "eq(%s, ", n.Context().DataSource)
		formatValue(b, n.Value)
		b.WriteString(")")
	case *AnyCriterion:
		fmt.Fprintf(b, "any(%s, ", n.Context().DataSource)
		formatValues(b, n.Values)
		b.WriteString(")")
	case *AllCriterion:
		fmt.Fprintf(b, "all(%s, ", n.Context().DataSource)
		formatValues(b, n.Values)
		b.WriteString(")")
	case *ComparisonCriterion:
		fmt.Fprintf(b, "%s(%s, ", n.Comparator, n.Context().DataSource)
		formatValue(b, n.Value)
		b.WriteString(")")
	case *PrefixCriterion:
		fmt.Fprintf(b, "prefix(%s, ", n.Context().DataSource)
		formatValue(b, n.Value)
		b.WriteString(")")
	case *InsideCriterion:
		fmt.Fprintf(b, "inside(%s, ", n.Context().DataSource)
		formatValue(b, n.Value)
		b.WriteString(")")
	case *PresenceCriterion:
		fmt.Fprintf(b, "presence(present=%t", n.Present)
		formatOptional(b, "sinceDate", n.SinceDate)
		formatOptional(b, "elapsedTime", n.ElapsedTime)
		b.WriteString(")")
	case *GeoCriterion:
		b.WriteString("geo(")
		b.WriteString(strings.TrimPrefix(optionalString("location", n.Location)+optionalString("date", n.Date), ", "))
		b.WriteString(")")
	case *LastActivityDateCriterion:
		b.WriteString("lastActivityDate(")
		if n.DateComparison != nil {
			formatCriterion(b, n.DateComparison)
		}
		b.WriteString(")")
	case *SubscriptionStatusCriterion:
		fmt.Fprintf(b, "subscriptionStatus(%s)", n.Status)
	case *JoinCriterion:
		fmt.Fprintf(b, "join(%s, ", n.Context().DataSource)
		formatCriterion(b, n.Child)
		b.WriteString(")")
	case *UnknownCriterion:
		fmt.Fprintf(b, "unknown(%q, %s)", n.Key, formatJSON(n.Input))
	default:
		fmt.Fprintf(b, "%T", c)
	}
}

func formatChildren(b *strings.Builder, name string, children []Criterion) {
	b.WriteString(name)
	b.WriteString("(")
	for i, child := range children {
		if i > 0 {
			b.WriteString(", ")
		}
		formatCriterion(b, child)
	}
	b.WriteString(")")
}

func formatOptional(b *strings.Builder, name string, c Criterion) {
	b.WriteString(optionalString(name, c))
}

func optionalString(name string, c Criterion) string {
	if c == nil {
		return ""
	}
	return ", " + name + "=" + Format(c)
}

func formatValues(b *strings.Builder, values []Value) {
	b.WriteString("[")
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		formatValue(b, v)
	}
	b.WriteString("]")
}

func formatValue(b *strings.Builder, v Value) {
	switch n := v.(type) {
	case *NullValue:
		b.WriteString("null")
	case *BoolValue:
		b.WriteString(strconv.FormatBool(n.Value))
	case *NumberValue:
		b.WriteString(formatNumber(n.Value))
	case *StringValue:
		b.WriteString(strconv.Quote(n.Value))
	case *DateValue:
		fmt.Fprintf(b, "date(%d)", n.Millis)
	case *RelativeDateValue:
		fmt.Fprintf(b, "relativeDate(%s)", n.Duration)
	case *DurationValue:
		if n.ISO != nil {
			fmt.Fprintf(b, "duration(%s)", n.ISO)
			break
		}
		fmt.Fprintf(b, "duration(%s)", formatNumber(n.Millis))
	case *GeoLocationValue:
		fmt.Fprintf(b, "geolocation(%g, %g)", n.Value.Lat, n.Value.Lon)
	case *GeoBoxValue:
		fmt.Fprintf(b, "geobox(%g, %g, %g, %g)", n.Value.Top, n.Value.Right, n.Value.Bottom, n.Value.Left)
	case *GeoCircleValue:
		fmt.Fprintf(b, "geocircle(%g, %g, %g)", n.Value.Center.Lat, n.Value.Center.Lon, n.Value.RadiusMeters)
	case *GeoPolygonValue:
		b.WriteString("geopolygon(")
		for i, p := range n.Value.Points {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%g %g", p.Lat, p.Lon)
		}
		b.WriteString(")")
	case *UnknownValue:
		fmt.Fprintf(b, "unknownValue(%q, %s)", n.Key, formatJSON(n.Input))
	default:
		fmt.Fprintf(b, "%T", v)
	}
}

func formatNumber(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func formatJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
