// internal/segmentation/values.go
package segmentation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonderpush/segmenter/internal/geo"
	"github.com/wonderpush/segmenter/internal/iso8601"
)

/*
 * Built-in value kinds: date, duration, geolocation, geobox, geocircle,
 * geopolygon. Each is written as a single-key object, e.g.
 * {"date": "2020-01-01"} or {"duration": "3 days"}.
 */

var (
	absoluteDatePattern  = regexp.MustCompile(`^(\d\d\d\d(?:-\d\d(?:-\d\d)?)?)(?:T(\d\d(?::\d\d(?::\d\d(?:.\d\d\d)?)?)?))?(Z|[+-]\d\d(?::\d\d(?::\d\d(?:.\d\d\d)?)?)?)?$`)
	humanDurationPattern = regexp.MustCompile(`^\s*([+-]?[0-9.]+(?:[eE][+-]?[0-9]+)?)\s*([a-zA-Z]*)?\s*$`)
)

// RegisterBuiltinValues binds the built-in value kinds into r.
func RegisterBuiltinValues(r *Registry[Value]) error {
	exact := []struct {
		key string
		fn  ValueParserFunc
	}{
		{"date", parseDate},
		{"duration", parseDuration},
		{"geolocation", parseGeoLocation},
		{"geobox", parseGeoBox},
		{"geocircle", parseGeoCircle},
		{"geopolygon", parseGeoPolygon},
	}
	for _, e := range exact {
		if err := r.RegisterExact(e.key, e.fn); err != nil {
			return err
		}
	}
	return nil
}

func parseDate(ctx *ParsingContext, key string, input any) (Value, error) {
	if f, ok := asFloat(input); ok {
		return &DateValue{node: node{ctx}, Millis: int64(f)}, nil
	}
	s, ok := input.(string)
	if !ok {
		return nil, badInputf("%q values expect a number or a string value", key)
	}
	if iso8601.LooksLikeDuration(s) {
		d, err := iso8601.Parse(s)
		if err != nil {
			return nil, wrapBadInput(err)
		}
		return &RelativeDateValue{node: node{ctx}, Duration: d}, nil
	}
	ms, ok, err := ParseAbsoluteDate(s)
	if err != nil {
		return nil, badInputf("%s value %q does not parse: %v", key, s, err)
	}
	if !ok {
		return nil, badInputf("%q values expect a number or a string value", key)
	}
	return &DateValue{node: node{ctx}, Millis: ms}, nil
}

// ParseAbsoluteDate parses a partial-precision timestamp such as "2020",
// "2020-02-03T04:05" or "2020-02-03T04:05:06.789+02:00" into epoch
// milliseconds. Omitted trailing parts take their earliest value and a
// missing zone means UTC.
// Returns ok=false when s does not have the timestamp shape.
func ParseAbsoluteDate(s string) (ms int64, ok bool, err error) {
	m := absoluteDatePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false, nil
	}
	date, clock, offset := m[1], m[2], m[3]
	date += "1970-01-01"[len(date):]
	clock += "00:00:00.000"[len(clock):]
	if offset == "Z" {
		offset = ""
	}
	offset += "+00:00"[min(len(offset), 6):]
	// seconds in the zone offset are not significant
	offset = offset[:6]

	t, err := time.Parse("2006-01-02T15:04:05.000-07:00", date+"T"+clock+offset)
	if err != nil {
		return 0, true, err
	}
	return t.UnixMilli(), true, nil
}

func parseDuration(ctx *ParsingContext, key string, input any) (Value, error) {
	if f, ok := asFloat(input); ok {
		return &DurationValue{node: node{ctx}, Millis: f}, nil
	}
	s, ok := input.(string)
	if !ok {
		return nil, badInputf("%q values expect a number or a valid string value", key)
	}
	if iso8601.LooksLikeDuration(s) {
		d, err := iso8601.Parse(s)
		if err != nil {
			return nil, wrapBadInput(err)
		}
		return &DurationValue{node: node{ctx}, ISO: &d}, nil
	}
	m := humanDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, badInputf("%q values expect a number or a valid string value", key)
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, badInputf("%q string values expect a valid number", key)
	}
	scale, ok := durationUnits[m[2]]
	if !ok {
		return nil, badInputf("%q string values expect a valid unit", key)
	}
	return &DurationValue{node: node{ctx}, Millis: amount * scale}, nil
}

func parseGeoLocation(ctx *ParsingContext, key string, input any) (Value, error) {
	loc, err := decodeLocation(key, input)
	if err != nil {
		return nil, err
	}
	return &GeoLocationValue{node: node{ctx}, Value: loc}, nil
}

// decodeLocation accepts a geohash string (its center) or a {lat, lon} object.
func decodeLocation(key string, input any) (geo.Location, error) {
	switch v := input.(type) {
	case string:
		loc, err := geo.DecodeGeohashCenter(v)
		if err != nil {
			return geo.Location{}, wrapBadInput(err)
		}
		return loc, nil
	case map[string]any:
		lat, latOK := asFloat(v["lat"])
		lon, lonOK := asFloat(v["lon"])
		if latOK && lonOK {
			return geo.Location{Lat: lat, Lon: lon}, nil
		}
	}
	return geo.Location{}, badInputf(`%q values expect an object with a "lat" and "lon" numeric fields`, key)
}

func parseGeoBox(ctx *ParsingContext, key string, input any) (Value, error) {
	if s, ok := input.(string); ok {
		box, err := geo.DecodeGeohash(s)
		if err != nil {
			return nil, wrapBadInput(err)
		}
		return &GeoBoxValue{node: node{ctx}, Value: box}, nil
	}
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, badInputf("%q values expect an object", key)
	}

	corners := func(a, b string, build func(geo.Location, geo.Location) geo.Box) (Value, bool, error) {
		rawA, hasA := obj[a]
		rawB, hasB := obj[b]
		if !hasA || !hasB {
			return nil, false, nil
		}
		locA, err := decodeLocation("geolocation", rawA)
		if err != nil {
			return nil, true, err
		}
		locB, err := decodeLocation("geolocation", rawB)
		if err != nil {
			return nil, true, err
		}
		return &GeoBoxValue{node: node{ctx}, Value: build(locA, locB)}, true, nil
	}
	if v, ok, err := corners("topLeft", "bottomRight", geo.BoxFromTopLeftBottomRight); ok {
		return v, err
	}
	if v, ok, err := corners("topRight", "bottomLeft", geo.BoxFromTopRightBottomLeft); ok {
		return v, err
	}

	top, topOK := asFloat(obj["top"])
	right, rightOK := asFloat(obj["right"])
	bottom, bottomOK := asFloat(obj["bottom"])
	left, leftOK := asFloat(obj["left"])
	if topOK && rightOK && bottomOK && leftOK {
		box := geo.Box{Top: top, Right: right, Bottom: bottom, Left: left}
		return &GeoBoxValue{node: node{ctx}, Value: box}, nil
	}
	return nil, badInputf("%q did not receive an object with a handled format", key)
}

func parseGeoCircle(ctx *ParsingContext, key string, input any) (Value, error) {
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, badInputf("%q values expect an object", key)
	}
	radius, ok := asFloat(obj["radius"])
	if !ok {
		return nil, badInputf("%q needs a radius numeric field", key)
	}
	rawCenter, ok := obj["center"]
	if !ok || rawCenter == nil {
		return nil, badInputf("%q did not receive an object with a handled format", key)
	}
	center, err := decodeLocation("geolocation", rawCenter)
	if err != nil {
		return nil, err
	}
	circle := geo.Circle{Center: center, RadiusMeters: radius}
	return &GeoCircleValue{node: node{ctx}, Value: circle}, nil
}

func parseGeoPolygon(ctx *ParsingContext, key string, input any) (Value, error) {
	arr, ok := input.([]any)
	if !ok || len(arr) < 3 {
		return nil, badInputf("%q values expect an array of at least 3 geolocations", key)
	}
	points := make([]geo.Location, 0, len(arr))
	for _, item := range arr {
		loc, err := decodeLocation("geolocation", item)
		if err != nil {
			return nil, err
		}
		points = append(points, loc)
	}
	return &GeoPolygonValue{node: node{ctx}, Value: geo.Polygon{Points: points}}, nil
}

// asFloat converts a normalized number to float64.
func asFloat(v any) (float64, bool) {
	n, ok := toNumber(v)
	if !ok {
		return 0, false
	}
	switch n := n.(type) {
	case int64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// durationUnits maps unit names to their length in milliseconds.
var durationUnits = func() map[string]float64 {
	groups := []struct {
		scale float64
		names string
	}{
		{1e-6, "nanoseconds nanosecond nanos ns"},
		{1e-3, "microseconds microsecond micros us"},
		{1, "milliseconds millisecond millis ms"},
		{1000, "seconds second secs sec s"},
		{60 * 1000, "minutes minute min m"},
		{60 * 60 * 1000, "hours hour hr h"},
		{24 * 60 * 60 * 1000, "days day d"},
		{7 * 24 * 60 * 60 * 1000, "weeks week w"},
	}
	units := map[string]float64{"": 1}
	for _, g := range groups {
		for _, name := range strings.Fields(g.names) {
			units[name] = g.scale
		}
	}
	return units
}()
