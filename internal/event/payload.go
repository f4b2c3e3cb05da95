package event

import (
	"encoding/json"
	"maps"
	"math"
)

// Reserved payload keys lifted to the top level of the wire body.
const (
	KeyClientID = "client_id"
	KeyJobID    = "job_id"
	KeyTaskID   = "task_id"
	KeyDuration = "duration"
)

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	maps.Copy(out, p)
	return out
}

// checkSerializable reports whether p survives encoding/json. Cycles through
// maps or slices, NaN, channels and funcs all fail.
func checkSerializable(t Type, p map[string]any) error {
	if _, err := json.Marshal(p); err != nil {
		return &ValidationError{Type: t, Constraint: err.Error(), Err: ErrNotSerializable}
	}
	return nil
}

// asInt accepts Go integer kinds, integral floats (what encoding/json decodes
// numbers into) and json.Number.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func uintToInt(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
