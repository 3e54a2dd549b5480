package common

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// AtoiDefault converts the provided string to an integer falling back to the default when parsing fails.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// StripDigits keeps only ASCII digits. Cashiers type amounts like "Rp 15.000"
// or "15,000"; both become "15000".
func StripDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaxDigits is the largest value ParseDigits and Digits produce. Two of them
// still sum without overflowing int64.
const MaxDigits int64 = 999_999_999_999

// ParseDigits strips non-digits and parses the rest. Empty input is zero and
// values above MaxDigits saturate.
func ParseDigits(value string) int64 {
	digits := strings.TrimLeft(StripDigits(value), "0")
	if digits == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return MaxDigits
	}
	return min(parsed, MaxDigits)
}

// Digits is a non-negative integer that decodes from a JSON number or from
// free text. Text is reduced to its digits; null and "" decode as zero.
type Digits int64

// UnmarshalJSON implements json.Unmarshaler.
func (d *Digits) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = 0
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*d = Digits(ParseDigits(text))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, err := n.Int64(); err == nil {
		*d = Digits(min(max(v, 0), MaxDigits))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	switch {
	case f <= 0:
		*d = 0
	case f >= float64(MaxDigits):
		*d = Digits(MaxDigits)
	default:
		*d = Digits(int64(f))
	}
	return nil
}

// Int returns the value as int.
func (d Digits) Int() int { return int(d) }

// Int64 returns the value as int64.
func (d Digits) Int64() int64 { return int64(d) }

// DigitsPtr returns nil for a nil input, otherwise a pointer to the int value.
func DigitsPtr(d *Digits) *int {
	if d == nil {
		return nil
	}
	v := d.Int()
	return &v
}
