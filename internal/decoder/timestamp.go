package decoder

import (
	"regexp"
	"strconv"
	"time"
)

// isoTimestampPattern accepts ISO-8601 with an optional up-to-3-digit
// fractional second and either a "Z" or a "+HH:MM"/"-HH:MM" offset, per
// spec.md §4.3 "Timestamp parsing". Anything else is rejected.
var isoTimestampPattern = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(\.\d{1,3})?(Z|[+-]\d{2}:\d{2})$`,
)

// ParseTimestamp converts an ISO-8601 string to UTC milliseconds since the
// epoch. A "-00:00" offset is treated as UTC (spec.md §8 boundary
// behavior). Any string not matching the accepted grammar is rejected.
func ParseTimestamp(s string) (int64, error) {
	if !isoTimestampPattern.MatchString(s) {
		return 0, newFieldError(KindInvalidValue, "", "timestamp %q is not a supported ISO-8601 form")
	}
	// time.Parse handles the offset arithmetic (including -00:00, which Go
	// normalizes to UTC) and up to nanosecond fractional precision; we've
	// already constrained the fractional digits to <=3 via the regex.
	layouts := []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.000Z07:00",
		"2006-01-02T15:04:05.00Z07:00",
		"2006-01-02T15:04:05.0Z07:00",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC().UnixMilli(), nil
		}
		lastErr = err
	}
	_ = lastErr
	return 0, newFieldError(KindInvalidValue, "", "timestamp %q could not be parsed")
}

// mustAtoi is a small helper kept for potential manual-grammar fallback; not
// used on the happy path since time.Parse covers every accepted layout, but
// retained so numeric field extraction doesn't need a new helper if the
// layout list above ever needs a manual parse branch.
func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
