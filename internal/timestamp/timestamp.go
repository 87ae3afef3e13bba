// Package timestamp normalizes the timestamp shapes found in cached and remote
// payloads into a single time.Time at the adapter boundary.
//
// Accepted inputs:
//   - RFC 3339 strings (with or without fractional seconds)
//   - epoch milliseconds as a JSON number or numeric string
//   - server timestamp objects {"seconds": n, "nanoseconds": n}
//     (also {"_seconds": n, "_nanoseconds": n})
//   - null or "" (zero time)
//
// Output is always an RFC 3339 string in UTC, or null for the zero time.
package timestamp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Time wraps time.Time with lenient JSON decoding.
type Time struct {
	time.Time
}

// From wraps t, normalized to UTC.
func From(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{Time: t.UTC()}
}

// MarshalJSON writes the canonical representation.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

type serverTimestamp struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

// UnmarshalJSON accepts every supported shape.
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	case '{':
		var st serverTimestamp
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		switch {
		case st.Seconds != nil:
			t.Time = time.Unix(*st.Seconds, st.Nanoseconds).UTC()
		case st.USeconds != nil:
			t.Time = time.Unix(*st.USeconds, st.UNanoseconds).UTC()
		default:
			return fmt.Errorf("timestamp: object without seconds field")
		}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("timestamp: unsupported value %s", string(data))
		}
		ms, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return fmt.Errorf("timestamp: %w", err)
			}
			ms = int64(f)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
}

// Parse converts a textual timestamp (RFC 3339 or epoch millis) into UTC time.
func Parse(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z07:00"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: cannot parse %q", s)
}
