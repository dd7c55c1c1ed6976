package engine

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// #region value

// Kind is the primitive type carried by a Value.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	default:
		return "none"
	}
}

// Value is a primitive crossing the bridge. Composite values never cross.
type Value struct {
	Kind Kind
	Str  string
	Num  int64
	Real float64
	Flag bool
}

func None() Value           { return Value{Kind: KindNone} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value     { return Value{Kind: KindInt, Num: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Real: f} }
func Bool(b bool) Value     { return Value{Kind: KindBool, Flag: b} }

// Any returns the Go value held by v.
func (v Value) Any() any {
	switch v.Kind {
	case KindBool:
		return v.Flag
	case KindInt:
		return v.Num
	case KindFloat:
		return v.Real
	case KindString:
		return v.Str
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Flag)
	case KindInt:
		return strconv.FormatInt(v.Num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	default:
		return "None"
	}
}

// #endregion value

// #region conversion

// ErrConversion is returned when a value cannot be converted to the requested type.
var ErrConversion = errors.New("value not convertible")

// AsInt converts v to an integer. Booleans convert to 0/1; floats, strings
// and None are rejected.
func (v Value) AsInt() (int64, error) {
	switch v.Kind {
	case KindInt:
		return v.Num, nil
	case KindBool:
		if v.Flag {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %s to int", ErrConversion, v.Kind)
	}
}

// AsFloat converts v to a float. Integers and booleans widen; NaN is rejected.
func (v Value) AsFloat() (float64, error) {
	switch v.Kind {
	case KindFloat:
		if math.IsNaN(v.Real) {
			return 0, fmt.Errorf("%w: NaN", ErrConversion)
		}
		return v.Real, nil
	case KindInt:
		return float64(v.Num), nil
	case KindBool:
		if v.Flag {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %s to float", ErrConversion, v.Kind)
	}
}

// #endregion conversion

// #region value-result

// ValueResult adapts a Value into a Result. The release hook, when set, runs
// on every Release call.
type ValueResult struct {
	V         Value
	OnRelease func()
}

// NewResult wraps v as an owned Result.
func NewResult(v Value, onRelease func()) *ValueResult {
	return &ValueResult{V: v, OnRelease: onRelease}
}

func (r *ValueResult) Int() (int64, error)     { return r.V.AsInt() }
func (r *ValueResult) Float() (float64, error) { return r.V.AsFloat() }

// Value returns the wrapped value unconverted.
func (r *ValueResult) Value() Value { return r.V }

func (r *ValueResult) Release() {
	if r.OnRelease != nil {
		r.OnRelease()
	}
}

// #endregion value-result
