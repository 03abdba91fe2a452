package transport

import (
	"fmt"

	gojson "github.com/goccy/go-json"
)

// Value is the distributed executor's closed payload type (spec §4.6:
// "Only a closed set of payload types is supported: integer/float scalars,
// strings, and homogeneous vectors thereof; any other type is rejected at
// serialization"). Kind tags which field is populated.
type Value struct {
	Kind Kind `json:"kind"`

	Int     int64     `json:"int,omitempty"`
	Float   float64   `json:"float,omitempty"`
	Str     string    `json:"str,omitempty"`
	Ints    []int64   `json:"ints,omitempty"`
	Floats  []float64 `json:"floats,omitempty"`
	Strs    []string  `json:"strs,omitempty"`
}

type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindIntVector
	KindFloatVector
	KindStringVector
)

// FromAny converts a Go value into a Value, rejecting anything outside the
// closed payload set.
func FromAny(v interface{}) (Value, error) {
	switch x := v.(type) {
	case int:
		return Value{Kind: KindInt, Int: int64(x)}, nil
	case int64:
		return Value{Kind: KindInt, Int: x}, nil
	case float64:
		return Value{Kind: KindFloat, Float: x}, nil
	case string:
		return Value{Kind: KindString, Str: x}, nil
	case []int64:
		return Value{Kind: KindIntVector, Ints: x}, nil
	case []float64:
		return Value{Kind: KindFloatVector, Floats: x}, nil
	case []string:
		return Value{Kind: KindStringVector, Strs: x}, nil
	default:
		return Value{}, fmt.Errorf("transport: unsupported payload type %T", v)
	}
}

// ToAny recovers the Go value a Value was built from.
func (v Value) ToAny() interface{} {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindIntVector:
		return v.Ints
	case KindFloatVector:
		return v.Floats
	case KindStringVector:
		return v.Strs
	default:
		return nil
	}
}

// Marshal serializes v for Transport.Send/Broadcast.
func Marshal(v interface{}) ([]byte, error) {
	val, err := FromAny(v)
	if err != nil {
		return nil, err
	}
	return gojson.Marshal(val)
}

// Unmarshal recovers the value Marshal produced.
func Unmarshal(data []byte) (interface{}, error) {
	var v Value
	if err := gojson.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("transport: unmarshal: %w", err)
	}
	return v.ToAny(), nil
}

// Concat implements the distributed executor's typed collective aggregation
// (spec §4.6: "rank 0 receives size+bytes from each worker, deserializes,
// and concatenates into the final value"). All parts must carry the same
// Kind; scalars concatenate into a vector of that element type.
func Concat(parts []Value) (Value, error) {
	if len(parts) == 0 {
		return Value{}, fmt.Errorf("transport: concat: no parts")
	}
	kind := parts[0].Kind
	switch kind {
	case KindInt, KindIntVector:
		out := Value{Kind: KindIntVector}
		for _, p := range parts {
			if p.Kind == KindInt {
				out.Ints = append(out.Ints, p.Int)
			} else if p.Kind == KindIntVector {
				out.Ints = append(out.Ints, p.Ints...)
			} else {
				return Value{}, fmt.Errorf("transport: concat: mixed kinds")
			}
		}
		return out, nil
	case KindFloat, KindFloatVector:
		out := Value{Kind: KindFloatVector}
		for _, p := range parts {
			if p.Kind == KindFloat {
				out.Floats = append(out.Floats, p.Float)
			} else if p.Kind == KindFloatVector {
				out.Floats = append(out.Floats, p.Floats...)
			} else {
				return Value{}, fmt.Errorf("transport: concat: mixed kinds")
			}
		}
		return out, nil
	case KindString, KindStringVector:
		out := Value{Kind: KindStringVector}
		for _, p := range parts {
			if p.Kind == KindString {
				out.Strs = append(out.Strs, p.Str)
			} else if p.Kind == KindStringVector {
				out.Strs = append(out.Strs, p.Strs...)
			} else {
				return Value{}, fmt.Errorf("transport: concat: mixed kinds")
			}
		}
		return out, nil
	default:
		return Value{}, fmt.Errorf("transport: concat: unsupported kind %d", kind)
	}
}
