package timex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates second-based from millisecond-based unix
// timestamps: anything above it is treated as milliseconds.
const millisThreshold = 1e12

// FromEpoch converts a unix timestamp in seconds or milliseconds to time.Time.
// Zero, negative and non-finite values yield the zero time.
func FromEpoch(v float64) time.Time {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}
	if v > millisThreshold {
		return time.UnixMilli(int64(v))
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// ParseEpoch parses the textual form of an epoch timestamp as persisted by
// the token store.
func ParseEpoch(s string) (time.Time, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch %q: %w", s, err)
	}
	t := FromEpoch(v)
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("invalid epoch %q", s)
	}
	return t, nil
}

// FormatEpoch renders t as unix seconds.
func FormatEpoch(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// Epoch is a JSON timestamp field that tolerates both seconds and
// milliseconds, as numbers or numeric strings. null or a missing field leaves
// it zero.
type Epoch struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Epoch) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		e.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			e.Time = time.Time{}
			return nil
		}
		t, err := ParseEpoch(s)
		if err != nil {
			return err
		}
		e.Time = t
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid epoch: %w", err)
	}
	e.Time = FromEpoch(v)
	return nil
}

// MarshalJSON encodes the timestamp as unix seconds, or null when zero.
func (e Epoch) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(e.Unix(), 10)), nil
}
