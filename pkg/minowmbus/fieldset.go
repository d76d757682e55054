package minowmbus

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FieldSet offers typed helpers on top of a dynamic field map.
type FieldSet struct {
	data map[string]any
}

// MonthlyVolume is one entry of the monthly consumption history.
type MonthlyVolume struct {
	Month    int
	VolumeM3 float64
}

const (
	monthlyPrefix = "total_consumption_prev_"
	monthlySuffix = "_month_m3"
)

// FieldSet returns a FieldSet wrapper for the result's fields.
func (r Result) FieldSet() FieldSet {
	return FieldSet{data: r.Fields}
}

// Raw returns the stored value without conversions.
func (fs FieldSet) Raw(key string) (any, bool) {
	if fs.data == nil {
		return nil, false
	}
	v, ok := fs.data[key]
	return v, ok
}

// Has reports whether the field is present.
func (fs FieldSet) Has(key string) bool {
	_, ok := fs.Raw(key)
	return ok
}

// Float returns the field coerced to float64.
func (fs FieldSet) Float(key string) (float64, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %w", key, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}

// String returns the field as a string.
func (fs FieldSet) String(key string) (string, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return "", fmt.Errorf("field %q missing", key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// Bool returns the field coerced to bool.
func (fs FieldSet) Bool(key string) (bool, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return false, fmt.Errorf("field %q missing", key)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("field %q is not bool: %w", key, err)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}

// MonthlyProfile collects the total_consumption_prev_N_month_m3 fields in
// month order. Months the meter had not recorded yet are absent.
func (fs FieldSet) MonthlyProfile() []MonthlyVolume {
	var out []MonthlyVolume
	for key := range fs.data {
		if !strings.HasPrefix(key, monthlyPrefix) || !strings.HasSuffix(key, monthlySuffix) {
			continue
		}
		month, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(key, monthlyPrefix), monthlySuffix))
		if err != nil {
			continue
		}
		volume, err := fs.Float(key)
		if err != nil {
			continue
		}
		out = append(out, MonthlyVolume{Month: month, VolumeM3: volume})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
