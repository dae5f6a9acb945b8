package value

import (
	"pyvm/internal/errs"
	"pyvm/internal/ir"
)

// Invoker runs user-defined function bodies. The VM implements it.
type Invoker interface {
	Invoke(fn *Function, args []Value) (Value, error)
}

// Callable is the capability CALL_FUNCTION dispatches through. A call always
// produces exactly one value; callees with nothing to return yield None.
type Callable interface {
	CallableName() string
	Call(inv Invoker, args []Value) (Value, error)
}

// NativeFunction is a host-provided built-in.
type NativeFunction struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

func (n *NativeFunction) CallableName() string { return n.Name }

func (n *NativeFunction) Call(_ Invoker, args []Value) (Value, error) {
	res, err := n.Fn(args)
	if err != nil {
		return Value{}, err
	}
	if res.Kind == KindInvalid {
		return None(), nil
	}
	return res, nil
}

// Function is a user-defined function: a name, positional parameters and
// the code object of its body.
type Function struct {
	Name   string
	Params []string
	Code   *ir.CodeObject
}

// NewFunction builds a function value from its compiled description.
func NewFunction(fc *ir.FunctionCode) Value {
	return Value{Kind: KindFunction, Func: &Function{
		Name:   fc.Name,
		Params: fc.Params,
		Code:   fc.Code,
	}}
}

func (f *Function) CallableName() string { return f.Name }

// Call checks the arity and hands the body to inv, which binds the
// arguments positionally in a fresh scope.
func (f *Function) Call(inv Invoker, args []Value) (Value, error) {
	if len(args) != len(f.Params) {
		return Value{}, errs.Typef("%s() takes %d positional argument%s but %d %s given",
			f.Name, len(f.Params), plural(len(f.Params)), len(args), wasWere(len(args)))
	}
	if inv == nil {
		return Value{}, errs.Internalf("no invoker to run %s()", f.Name)
	}
	return inv.Invoke(f, args)
}

// AsCallable returns v's call capability or a TypeError.
func AsCallable(v Value) (Callable, error) {
	switch v.Kind {
	case KindNative:
		return v.Native, nil
	case KindFunction:
		return v.Func, nil
	default:
		return nil, errs.Typef("'%s' object is not callable", v.TypeName())
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}
