package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type of a value at runtime.
type Kind int

const (
	KindInvalid Kind = iota
	KindNone
	KindInt
	KindString
	KindList
	KindTuple
	KindDict
	KindNative
	KindFunction
	KindIterator
)

// Value is a universal value for the VM/runtime. Int and String are
// immutable; List and Tuple share their element slice between copies and
// are never mutated in place. An Iterator is owned by the loop driving it.
type Value struct {
	Kind   Kind
	Int    int32
	Str    string
	Elems  []Value // for KindList and KindTuple
	Dict   *Dict
	Native *NativeFunction
	Func   *Function
	Iter   *Iterator
}

// TypeName returns the Python-level type name used in error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNone:
		return "NoneType"
	case KindInt:
		return "int"
	case KindString:
		return "str"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	case KindNative:
		return "builtin_function_or_method"
	case KindFunction:
		return "function"
	case KindIterator:
		return "iterator"
	default:
		return "<invalid>"
	}
}

// String renders v for logs and traces. Unlike Str it never fails.
func (v Value) String() string {
	switch v.Kind {
	case KindNative:
		return fmt.Sprintf("<built-in function %s>", v.Native.Name)
	case KindFunction:
		return fmt.Sprintf("<function %s>", v.Func.Name)
	case KindIterator:
		return fmt.Sprintf("<iterator at %d>", v.Iter.Position)
	case KindInvalid:
		return "<invalid>"
	default:
		s, err := Repr(v)
		if err != nil {
			return "<" + v.TypeName() + ">"
		}
		return s
	}
}

// Helpers

var none = Value{Kind: KindNone}

// None returns the no-value sentinel.
func None() Value {
	return none
}

func Int(v int32) Value {
	return Value{Kind: KindInt, Int: v}
}

func Str(s string) Value {
	return Value{Kind: KindString, Str: s}
}

func List(vals []Value) Value {
	return Value{Kind: KindList, Elems: vals}
}

func Tuple(vals []Value) Value {
	return Value{Kind: KindTuple, Elems: vals}
}

func DictValue(d *Dict) Value {
	return Value{Kind: KindDict, Dict: d}
}

func Native(name string, fn func(args []Value) (Value, error)) Value {
	return Value{Kind: KindNative, Native: &NativeFunction{Name: name, Fn: fn}}
}

// IsNone reports whether v is the no-value sentinel.
func (v Value) IsNone() bool {
	return v.Kind == KindNone
}

func quote(s string) string {
	// Python prefers single quotes unless the text contains one.
	q := strconv.Quote(s)
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		return q
	}
	body := q[1 : len(q)-1]
	out := make([]byte, 0, len(body)+2)
	out = append(out, '\'')
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) && body[i+1] == '"' {
			out = append(out, '"')
			i++
			continue
		}
		if c == '\'' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '\'')
	return string(out)
}
