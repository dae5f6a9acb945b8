package strings

import (
	"pyvm/internal/runtime/builtins"
	"pyvm/internal/value"
)

func init() {
	builtins.Register(builtins.Builtin{
		Meta: builtins.Meta{
			ID:    builtins.Str,
			Name:  "str",
			Arity: 1,
		},
		Call: func(env builtins.Env, args []value.Value) (value.Value, error) {
			s, err := value.ToStr(args[0])
			if err != nil {
				return value.Value{}, err
			}
			return value.Str(s), nil
		},
	})
}
