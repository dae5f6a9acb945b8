package value

import (
	"strings"

	"pyvm/internal/errs"
	"pyvm/internal/ir"
)

// MaxRepeatLen caps the length of a string built by repetition.
const MaxRepeatLen = 1 << 28

// BinaryOp applies op to a and b. Integer arithmetic wraps around in two's
// complement int32, like Go's own int32 operators. Operand pairs without a
// definition fail with a TypeError; there is no implicit coercion.
func BinaryOp(op ir.BinaryOperator, a, b Value) (Value, error) {
	if a.Kind == KindInt && b.Kind == KindInt {
		return intOp(op, a.Int, b.Int)
	}

	switch op {
	case ir.Add:
		switch {
		case a.Kind == KindString && b.Kind == KindString:
			return Str(a.Str + b.Str), nil
		case a.Kind == KindList && b.Kind == KindList:
			return List(concat(a.Elems, b.Elems)), nil
		case a.Kind == KindTuple && b.Kind == KindTuple:
			return Tuple(concat(a.Elems, b.Elems)), nil
		}
	case ir.Multiply:
		switch {
		case a.Kind == KindString && b.Kind == KindInt:
			return repeat(a.Str, b.Int)
		case a.Kind == KindInt && b.Kind == KindString:
			return repeat(b.Str, a.Int)
		}
	}
	return Value{}, unsupported(op, a, b)
}

func unsupported(op ir.BinaryOperator, a, b Value) error {
	return errs.Typef("unsupported operand type(s) for %s: '%s' and '%s'", op, a.TypeName(), b.TypeName())
}

func intOp(op ir.BinaryOperator, x, y int32) (Value, error) {
	switch op {
	case ir.Add:
		return Int(x + y), nil
	case ir.Subtract:
		return Int(x - y), nil
	case ir.Multiply:
		return Int(x * y), nil
	case ir.FloorDivide:
		if y == 0 {
			return Value{}, errs.New(errs.ZeroDivision, "integer division or modulo by zero")
		}
		return Int(floorDiv(x, y)), nil
	case ir.Modulo:
		if y == 0 {
			return Value{}, errs.New(errs.ZeroDivision, "integer division or modulo by zero")
		}
		return Int(floorMod(x, y)), nil
	case ir.Power:
		if y < 0 {
			return Value{}, errs.New(errs.Value, "negative exponent %d is not supported for integers", y)
		}
		return Int(pow(x, y)), nil
	case ir.Lshift:
		if y < 0 {
			return Value{}, errs.New(errs.Value, "negative shift count")
		}
		return Int(x << uint32(y)), nil
	case ir.Rshift:
		if y < 0 {
			return Value{}, errs.New(errs.Value, "negative shift count")
		}
		return Int(x >> uint32(y)), nil
	case ir.And:
		return Int(x & y), nil
	case ir.Xor:
		return Int(x ^ y), nil
	case ir.Or:
		return Int(x | y), nil
	}
	// Divide and MatrixMultiply: there are no float or matrix values.
	return Value{}, unsupported(op, Int(x), Int(y))
}

// floorDiv rounds toward negative infinity. MinInt32 // -1 wraps to MinInt32.
func floorDiv(x, y int32) int32 {
	q := x / y
	if x%y != 0 && (x < 0) != (y < 0) {
		q--
	}
	return q
}

// floorMod takes the sign of the divisor.
func floorMod(x, y int32) int32 {
	r := x % y
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return r
}

func pow(base, exp int32) int32 {
	result := int32(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func repeat(s string, n int32) (Value, error) {
	if n <= 0 || s == "" {
		return Str(""), nil
	}
	if int64(len(s))*int64(n) > MaxRepeatLen {
		return Value{}, errs.New(errs.Value, "repeated string would be %d bytes long", int64(len(s))*int64(n))
	}
	return Str(strings.Repeat(s, int(n))), nil
}

func concat(a, b []Value) []Value {
	out := make([]Value, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// Len implements len() for strings (in code points) and containers.
func Len(v Value) (int, error) {
	switch v.Kind {
	case KindString:
		return len([]rune(v.Str)), nil
	case KindList, KindTuple:
		return len(v.Elems), nil
	case KindDict:
		return v.Dict.Len(), nil
	default:
		return 0, errs.Typef("object of type '%s' has no len()", v.TypeName())
	}
}
