package collections

import (
	"math"

	"pyvm/internal/errs"
	"pyvm/internal/runtime/builtins"
	"pyvm/internal/value"
)

func init() {
	builtins.Register(builtins.Builtin{
		Meta: builtins.Meta{
			ID:    builtins.Len,
			Name:  "len",
			Arity: 1,
		},
		Call: func(env builtins.Env, args []value.Value) (value.Value, error) {
			n, err := value.Len(args[0])
			if err != nil {
				return value.Value{}, err
			}
			if n > math.MaxInt32 {
				return value.Value{}, errs.New(errs.Value, "length %d does not fit in an int", n)
			}
			return value.Int(int32(n)), nil
		},
	})
}
