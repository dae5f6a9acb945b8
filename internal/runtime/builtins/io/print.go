package io

import (
	"fmt"
	"strings"

	"pyvm/internal/runtime/builtins"
	"pyvm/internal/value"
)

func init() {
	builtins.Register(builtins.Builtin{
		Meta: builtins.Meta{
			ID:    builtins.Print,
			Name:  "print",
			Arity: builtins.Variadic,
		},
		Call: func(env builtins.Env, args []value.Value) (value.Value, error) {
			if env == nil || env.IO() == nil {
				return value.Value{}, fmt.Errorf("runtime env IO is nil")
			}
			parts := make([]string, len(args))
			for i, arg := range args {
				s, err := value.ToStr(arg)
				if err != nil {
					return value.Value{}, err
				}
				parts[i] = s
			}
			if err := env.IO().Println(strings.Join(parts, " ")); err != nil {
				return value.Value{}, fmt.Errorf("print: %w", err)
			}
			return value.None(), nil
		},
	})
}
