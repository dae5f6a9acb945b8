package value

import (
	"strconv"
	"strings"

	"pyvm/internal/errs"
)

// ToStr implements str(): integers as decimal text, strings as their own
// content, containers Python-style. Callables and iterators have no textual
// form in this language and fail with a TypeError.
func ToStr(v Value) (string, error) {
	if v.Kind == KindString {
		return v.Str, nil
	}
	return Repr(v)
}

// Repr implements repr(); it differs from ToStr only for strings, which are
// quoted.
func Repr(v Value) (string, error) {
	switch v.Kind {
	case KindNone:
		return "None", nil
	case KindInt:
		return strconv.FormatInt(int64(v.Int), 10), nil
	case KindString:
		return quote(v.Str), nil
	case KindList:
		return reprSeq("[", v.Elems, "]", false)
	case KindTuple:
		return reprSeq("(", v.Elems, ")", len(v.Elems) == 1)
	case KindDict:
		var b strings.Builder
		b.WriteByte('{')
		for i, e := range v.Dict.Items() {
			if i > 0 {
				b.WriteString(", ")
			}
			k, err := Repr(e.Key)
			if err != nil {
				return "", err
			}
			val, err := Repr(e.Value)
			if err != nil {
				return "", err
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(val)
		}
		b.WriteByte('}')
		return b.String(), nil
	default:
		return "", errs.Typef("cannot convert '%s' value to str", v.TypeName())
	}
}

func reprSeq(open string, elems []Value, close string, trailingComma bool) (string, error) {
	var b strings.Builder
	b.WriteString(open)
	for i, el := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		s, err := Repr(el)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	if trailingComma {
		b.WriteByte(',')
	}
	b.WriteString(close)
	return b.String(), nil
}

// Truthy reports the truth value used by conditional jumps.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindNone, KindInvalid:
		return false
	case KindInt:
		return v.Int != 0
	case KindString:
		return v.Str != ""
	case KindList, KindTuple:
		return len(v.Elems) > 0
	case KindDict:
		return v.Dict.Len() > 0
	default:
		return true
	}
}
