package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// fields is a decoded JSON object whose known keys are consumed one by one;
// whatever remains is kept as vendor extras.
type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	d := bytes.TrimSpace(data)
	if len(d) == 0 || d[0] != '{' {
		return nil, fmt.Errorf("expected object, got %s", preview(d))
	}
	var f fields
	if err := json.Unmarshal(d, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// str removes key and returns its text when it is a JSON string or number.
func (f fields) str(key string) string {
	raw, ok := f[key]
	if !ok {
		return ""
	}
	delete(f, key)
	s, _ := scalarText(raw)
	return strings.TrimSpace(s)
}

// take removes key and decodes it into dst. Absent and null values leave dst untouched.
func (f fields) take(key string, dst any) error {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	delete(f, key)
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (f fields) extra() map[string]json.RawMessage {
	if len(f) == 0 {
		return nil
	}
	return map[string]json.RawMessage(f)
}

// takeList decodes key as a list, accepting a lone object where an array is expected.
func takeList[T any](f fields, key string) ([]T, error) {
	raw, ok := f[key]
	if !ok {
		return nil, nil
	}
	delete(f, key)
	d := bytes.TrimSpace(raw)
	if isNull(d) {
		return nil, nil
	}
	if d[0] == '{' {
		var one T
		if err := json.Unmarshal(d, &one); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return []T{one}, nil
	}
	var out []T
	if err := json.Unmarshal(d, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}

func isNull(raw []byte) bool {
	d := bytes.TrimSpace(raw)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}

// scalarText returns the text of a JSON string or number. Integral numbers
// written in float or exponent form are rendered without a fraction.
func scalarText(raw []byte) (string, bool) {
	d := bytes.TrimSpace(raw)
	if len(d) == 0 {
		return "", false
	}
	switch d[0] {
	case '"':
		var s string
		if err := json.Unmarshal(d, &s); err != nil {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return numberText(string(d)), true
	}
	return "", false
}

func numberText(s string) string {
	if !strings.ContainsAny(s, ".eE") {
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func preview(b []byte) string {
	const max = 64
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
