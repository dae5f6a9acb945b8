package runtime

import (
	"fmt"

	"pyvm/internal/runtime/builtins"
	// Import all builtin packages to trigger their init() functions for self-registration
	_ "pyvm/internal/runtime/builtins/collections"
	_ "pyvm/internal/runtime/builtins/io"
	_ "pyvm/internal/runtime/builtins/strings"
	"pyvm/internal/value"
)

// CallBuiltin executes a builtin identified by builtins.ID with given args.
// It uses services from Env and checks the argument count first.
func CallBuiltin(env *Env, id builtins.ID, args []value.Value) (value.Value, error) {
	builtin := builtins.LookupByID(id)
	if builtin == nil {
		return value.Value{}, fmt.Errorf("unknown builtin id %d", id)
	}
	return call(env, builtin, args)
}

func call(env *Env, b *builtins.Builtin, args []value.Value) (value.Value, error) {
	if err := b.Meta.CheckArity(args); err != nil {
		return value.Value{}, err
	}
	var benv builtins.Env
	if env != nil {
		benv = env
	}
	res, err := b.Call(benv, args)
	if err != nil {
		return value.Value{}, err
	}
	if res.Kind == value.KindInvalid {
		return value.None(), nil
	}
	return res, nil
}

// Binding is a name and the value a fresh module scope starts with.
type Binding struct {
	Name  string
	Value value.Value
}

// Bindings returns every registered builtin as a native function bound to
// env, ordered by builtin ID.
func Bindings(env *Env) []Binding {
	all := builtins.All()
	out := make([]Binding, 0, len(all))
	for _, b := range all {
		b := b
		out = append(out, Binding{
			Name: b.Meta.Name,
			Value: value.Native(b.Meta.Name, func(args []value.Value) (value.Value, error) {
				return call(env, b, args)
			}),
		})
	}
	return out
}
