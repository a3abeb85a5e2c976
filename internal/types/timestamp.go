package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a mutation time decoded leniently from client data.
// Anything that cannot be interpreted decodes to the zero Timestamp, which
// compares as epoch 0 and therefore never wins a conflict.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// FromMillis converts epoch milliseconds. Zero maps to the zero Timestamp.
func FromMillis(ms int64) Timestamp {
	if ms == 0 {
		return Timestamp{}
	}
	return Timestamp{Time: time.UnixMilli(ms).UTC()}
}

// Millis returns epoch milliseconds, or 0 for the zero Timestamp.
func (ts Timestamp) Millis() int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}

// ParseTimestamp interprets a decoded JSON value as a timestamp.
// Strings may be ISO-8601 date-times, plain dates or epoch millis; numbers
// are epoch millis.
func ParseTimestamp(v any) Timestamp {
	switch val := v.(type) {
	case time.Time:
		return NewTimestamp(val)
	case Timestamp:
		return val
	case float64:
		return fromFloatMillis(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Timestamp{}
		}
		return fromFloatMillis(f)
	case int64:
		return FromMillis(val)
	case int:
		return FromMillis(int64(val))
	case string:
		return parseTimestampString(val)
	}
	return Timestamp{}
}

func parseTimestampString(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t)
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromFloatMillis(f)
	}
	return Timestamp{}
}

func fromFloatMillis(f float64) Timestamp {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return Timestamp{}
	}
	return FromMillis(int64(f))
}

// UnmarshalJSON never fails on well-formed JSON; unparseable values become zero.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*ts = ParseTimestamp(v)
	return nil
}

// MarshalJSON encodes an RFC 3339 string, or null for the zero Timestamp.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}
