// Package errs defines the error taxonomy shared by the compiler and the VM.
//
// User program errors (SyntaxError, NameError, TypeError and friends) are
// reported to the person running the script. InternalError means the compiler
// or the VM broke its own contract and is reported as a defect.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindInvalid Kind = iota
	Syntax
	Name
	Type
	ZeroDivision
	Value
	Assertion
	Recursion
	Internal
)

func (k Kind) String() string {
	switch k {
	case Syntax:
		return "SyntaxError"
	case Name:
		return "NameError"
	case Type:
		return "TypeError"
	case ZeroDivision:
		return "ZeroDivisionError"
	case Value:
		return "ValueError"
	case Assertion:
		return "AssertionError"
	case Recursion:
		return "RecursionError"
	case Internal:
		return "InternalError"
	default:
		return "Error"
	}
}

// Position is a 1-based source location. The zero value means unknown.
type Position struct {
	Line   int
	Column int
}

func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Error is a classified language error.
type Error struct {
	Kind Kind
	Msg  string
	Pos  Position
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches another *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

// Sentinels for errors.Is.
var (
	ErrSyntax       = &Error{Kind: Syntax}
	ErrName         = &Error{Kind: Name}
	ErrType         = &Error{Kind: Type}
	ErrZeroDivision = &Error{Kind: ZeroDivision}
	ErrValue        = &Error{Kind: Value}
	ErrAssertion    = &Error{Kind: Assertion}
	ErrRecursion    = &Error{Kind: Recursion}
	ErrInternal     = &Error{Kind: Internal}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// At creates an error of the given kind tied to a source position.
func At(pos Position, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Pos: pos}
}

func Syntaxf(pos Position, format string, args ...any) *Error {
	return At(pos, Syntax, format, args...)
}

func Typef(format string, args ...any) *Error {
	return New(Type, format, args...)
}

func Internalf(format string, args ...any) *Error {
	return New(Internal, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInvalid when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInvalid
}

// IsInternal reports whether err signals a compiler or VM defect.
func IsInternal(err error) bool {
	return KindOf(err) == Internal
}
