// internal/iso8601/duration.go
package iso8601

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonderpush/segmenter/internal/types"
)

/*
 * ISO 8601 durations with calendar-aware application.
 *
 * Accepted form: [+-]P[nY][nM][nW][nD][T[nH][nM][nS]] where every n may
 * carry a fractional part using "." or "," as decimal separator. Every
 * component is optional, so "P" and "PT" are valid zero durations.
 *
 * ApplyTo walks units from years down to milliseconds in UTC. The
 * fractional remainder of each unit is carried into the next one:
 * years x12 into months, months x(days in the resulting month) into days,
 * days x24 into hours, and so on. Month and year additions clamp the day
 * of month (Jan 31 + 1 month = Feb 28/29).
 */

var durationPattern = regexp.MustCompile(`^([+-])?P(\d+(?:[.,]\d*)?Y)?(\d+(?:[.,]\d*)?M)?(\d+(?:[.,]\d*)?W)?(\d+(?:[.,]\d*)?D)?(?:T(\d+(?:[.,]\d*)?H)?(\d+(?:[.,]\d*)?M)?(\d+(?:[.,]\d*)?S)?)?$`)

// relativePattern detects strings that should be parsed as a Duration.
var relativePattern = regexp.MustCompile(`^[+-]?P`)

// Duration is a signed calendar offset.
type Duration struct {
	Positive bool
	Years    float64
	Months   float64
	Weeks    float64
	Days     float64
	Hours    float64
	Minutes  float64
	Seconds  float64
}

// LooksLikeDuration reports whether s starts like an ISO 8601 duration.
// Used to route date and duration values before full parsing.
func LooksLikeDuration(s string) bool {
	return relativePattern.MatchString(s)
}

// Parse parses an ISO 8601 duration.
// Returns ErrInvalidDuration when s does not match the accepted form.
func Parse(s string) (Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return Duration{}, fmt.Errorf("%w: invalid ISO 8601 duration %q", types.ErrInvalidDuration, s)
	}
	return Duration{
		Positive: m[1] != "-",
		Years:    part(m[2]),
		Months:   part(m[3]),
		Weeks:    part(m[4]),
		Days:     part(m[5]),
		Hours:    part(m[6]),
		Minutes:  part(m[7]),
		Seconds:  part(m[8]),
	}, nil
}

// part strips the unit letter and parses the number, zero when absent.
func part(text string) float64 {
	if text == "" {
		return 0
	}
	text = strings.ReplaceAll(text[:len(text)-1], ",", ".")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return f
}

// String formats the duration with every component spelled out.
func (d Duration) String() string {
	sign := "+"
	if !d.Positive {
		sign = "-"
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return sign + "P" + f(d.Years) + "Y" + f(d.Months) + "M" + f(d.Weeks) + "W" + f(d.Days) + "D" +
		"T" + f(d.Hours) + "H" + f(d.Minutes) + "M" + f(d.Seconds) + "S"
}

// ApplyTo returns t shifted by the duration, computed in UTC.
func (d Duration) ApplyTo(t time.Time) time.Time {
	rtn := t.UTC()
	sign := 1
	if !d.Positive {
		sign = -1
	}

	years := int(d.Years)
	rtn = addMonthsClamped(rtn, sign*years*12)
	remainder := (d.Years - float64(years)) * 12

	months := int(d.Months + remainder)
	rtn = addMonthsClamped(rtn, sign*months)
	remainder = (d.Months + remainder - float64(months)) * float64(daysIn(rtn.Year(), rtn.Month()))

	days := int(d.Days + d.Weeks*7 + remainder)
	rtn = rtn.AddDate(0, 0, sign*days)
	remainder = (d.Days + d.Weeks*7 + remainder - float64(days)) * 24

	hours := int(d.Hours + remainder)
	rtn = rtn.Add(time.Duration(sign*hours) * time.Hour)
	remainder = (d.Hours + remainder - float64(hours)) * 60

	minutes := int(d.Minutes + remainder)
	rtn = rtn.Add(time.Duration(sign*minutes) * time.Minute)
	remainder = (d.Minutes + remainder - float64(minutes)) * 60

	seconds := int(d.Seconds + remainder)
	rtn = rtn.Add(time.Duration(sign*seconds) * time.Second)
	remainder = (d.Seconds + remainder - float64(seconds)) * 1000

	millis := int(remainder + 0.5)
	rtn = rtn.Add(time.Duration(sign*millis) * time.Millisecond)

	return rtn
}

// ApplyToMillis applies the duration to an epoch timestamp in milliseconds.
func (d Duration) ApplyToMillis(ms int64) int64 {
	return d.ApplyTo(time.UnixMilli(ms)).UnixMilli()
}

// Millis returns the length of the duration when applied at now.
func (d Duration) Millis(now time.Time) int64 {
	return d.ApplyTo(now).UnixMilli() - now.UnixMilli()
}

// addMonthsClamped adds n months keeping the day of month within the target month.
func addMonthsClamped(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	total := int(t.Month()) - 1 + n
	year := t.Year() + total/12
	month := total % 12
	if month < 0 {
		month += 12
		year--
	}
	day := t.Day()
	if maxDay := daysIn(year, time.Month(month+1)); day > maxDay {
		day = maxDay
	}
	return time.Date(year, time.Month(month+1), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
