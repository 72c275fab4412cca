// Package timestamp decodes the timestamp encodings used by upstream producers.
//
// Every decoder is a pure function that accepts one raw JSON value and returns a
// UTC time with microsecond precision, or an error wrapping ErrMalformedTimestamp.
package timestamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedTimestamp is returned when a value does not fit the expected encoding.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

const (
	layoutISOSeconds = "2006-01-02T15:04:05-07:00"
	layoutISOMicros  = "2006-01-02T15:04:05.000000-07:00"

	microsPerSecond = 1_000_000
)

var (
	// Valid epoch range mirrors the calendar range 0001-01-01..9999-12-31.
	minEpochSeconds = decimal.NewFromInt(-62135596800)
	maxEpochSeconds = decimal.NewFromInt(253402300799)

	isoBaseLayouts = []string{
		"2006-01-02T15:04:05.000000",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02T15",
	}
	isoZoneSuffixes = []string{"-07:00", "-0700", "-07", ""}
)

// FromComponents decodes [year, month, day, hour, minute, second, (nanoseconds)].
// The optional seventh component is floor-divided to microseconds.
func FromComponents(raw any) (time.Time, error) {
	parts, err := integers(raw)
	if err != nil {
		return time.Time{}, err
	}
	if len(parts) < 6 {
		return time.Time{}, fmt.Errorf("%w: expected at least year..second components, got %d", ErrMalformedTimestamp, len(parts))
	}

	year, month, day := parts[0], parts[1], parts[2]
	hour, minute, second := parts[3], parts[4], parts[5]
	var nanos int64
	if len(parts) > 6 {
		nanos = parts[6]
	}
	if nanos < 0 {
		return time.Time{}, fmt.Errorf("%w: negative sub-second component %d", ErrMalformedTimestamp, nanos)
	}
	if year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("%w: year %d out of range", ErrMalformedTimestamp, year)
	}

	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
	// time.Date normalizes overflowing fields; a round-trip mismatch means the input was not a calendar date.
	if int64(t.Month()) != month || int64(t.Day()) != day ||
		int64(t.Hour()) != hour || int64(t.Minute()) != minute || int64(t.Second()) != second {
		return time.Time{}, fmt.Errorf("%w: %v is not a valid calendar timestamp", ErrMalformedTimestamp, parts[:6])
	}

	return t.Add(time.Duration(nanos/1000) * time.Microsecond), nil
}

// FromEpoch decodes seconds since the Unix epoch, possibly fractional.
// The fraction is rounded half-to-even to microseconds.
func FromEpoch(raw any) (time.Time, error) {
	d, err := epochDecimal(raw)
	if err != nil {
		return time.Time{}, err
	}
	if d.LessThan(minEpochSeconds) || d.GreaterThan(maxEpochSeconds) {
		return time.Time{}, fmt.Errorf("%w: epoch value %s out of range", ErrMalformedTimestamp, d.String())
	}

	secs := d.Floor()
	micros := d.Sub(secs).Shift(6).RoundBank(0).IntPart()
	whole := secs.IntPart()
	if micros >= microsPerSecond {
		whole++
		micros -= microsPerSecond
	}

	return time.Unix(whole, micros*int64(time.Microsecond)).UTC(), nil
}

// FromISO decodes an ISO-8601 string. A trailing "Z" means UTC, fractional seconds
// of any length are truncated or padded to six digits, and values without an offset
// are taken as UTC.
func FromISO(raw any) (time.Time, error) {
	value, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: expected ISO-8601 string, got %T", ErrMalformedTimestamp, raw)
	}

	working := normalizeISO(value)
	for _, layout := range isoLayouts() {
		if t, err := time.Parse(layout, working); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q is not a valid ISO-8601 timestamp", ErrMalformedTimestamp, value)
}

// FormatISO renders t in UTC as 2006-01-02T15:04:05[.ffffff]+00:00.
// The fraction is only rendered when the microsecond field is non-zero.
func FormatISO(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format(layoutISOSeconds)
	}
	return t.Format(layoutISOMicros)
}

func normalizeISO(value string) string {
	working := value
	if strings.HasSuffix(working, "Z") {
		working = strings.TrimSuffix(working, "Z") + "+00:00"
	}
	if len(working) > 10 && working[10] == ' ' {
		working = working[:10] + "T" + working[11:]
	}

	base, rest, found := strings.Cut(working, ".")
	if !found {
		return working
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	fraction := (rest[:digits] + "000000")[:6]
	return base + "." + fraction + rest[digits:]
}

func isoLayouts() []string {
	layouts := make([]string, 0, len(isoBaseLayouts)*len(isoZoneSuffixes)+1)
	for _, base := range isoBaseLayouts {
		for _, zone := range isoZoneSuffixes {
			layouts = append(layouts, base+zone)
		}
	}
	return append(layouts, "2006-01-02")
}

func epochDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q is not numeric", ErrMalformedTimestamp, v.String())
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q is not numeric", ErrMalformedTimestamp, v)
		}
		return d, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: non-finite epoch value", ErrMalformedTimestamp)
		}
		return decimal.NewFromFloat(v), nil
	case float32:
		return epochDecimal(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int32:
		return decimal.NewFromInt(int64(v)), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: expected numeric epoch seconds, got %T", ErrMalformedTimestamp, raw)
	}
}

func integers(raw any) ([]int64, error) {
	switch v := raw.(type) {
	case []int64:
		return v, nil
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, nil
	case []any:
		out := make([]int64, len(v))
		for i, item := range v {
			n, err := integer(item)
			if err != nil {
				return nil, fmt.Errorf("%w: component %d: %v", ErrMalformedTimestamp, i, err)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected component array, got %T", ErrMalformedTimestamp, raw)
	}
}

func integer(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
