package events

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampFormat is the layout used for every epoch-derived payload field.
const TimestampFormat = "2006-01-02T15:04:05.000000"

// ErrInvalidTimestamp is returned for values that are not a Unix epoch.
var ErrInvalidTimestamp = errors.New("events: invalid timestamp")

// FormatTimestamp renders a Unix epoch value such as "1704067200.12345" as
// "2024-01-01T00:00:00.123450" in UTC. Sub-microsecond digits are rounded
// half to even.
func FormatTimestamp(value string) (string, error) {
	t, err := parseEpoch(strings.TrimSpace(value))
	if err != nil {
		return "", err
	}
	if y := t.Year(); y < 1 || y > 9999 {
		return "", fmt.Errorf("%w: %q out of range", ErrInvalidTimestamp, value)
	}
	return t.Format(TimestampFormat), nil
}

func parseEpoch(value string) (time.Time, error) {
	whole, frac, _ := strings.Cut(value, ".")
	if isDigits(whole) && (frac == "" || isDigits(frac)) {
		sec, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
		}
		usec := roundMicros(frac)
		if usec == 1e6 {
			sec++
			usec = 0
		}
		return time.Unix(sec, usec*1000).UTC(), nil
	}

	// signed, exponent or otherwise unusual forms
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	sec := math.Floor(f)
	usec := math.RoundToEven((f - sec) * 1e6)
	if usec >= 1e6 {
		sec++
		usec -= 1e6
	}
	if sec > math.MaxInt64/2 || sec < math.MinInt64/2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	return time.Unix(int64(sec), int64(usec)*1000).UTC(), nil
}

// roundMicros converts a fractional-second digit string to microseconds.
func roundMicros(frac string) int64 {
	digits := frac
	if len(digits) < 6 {
		digits += strings.Repeat("0", 6-len(digits))
	}
	usec, _ := strconv.ParseInt(digits[:6], 10, 64)

	rest := digits[6:]
	if rest == "" {
		return usec
	}
	tail := strings.TrimRight(rest[1:], "0") != ""
	switch {
	case rest[0] > '5', rest[0] == '5' && (tail || usec%2 == 1):
		usec++
	}
	return usec
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
