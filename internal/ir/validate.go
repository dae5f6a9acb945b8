package ir

import (
	"math"

	"pyvm/internal/errs"
)

// Validate checks the structural invariants the VM relies on: known
// opcodes, label operands within 0..len(code), well-formed operands, and
// PUSH_BLOCK/POP_BLOCK pairs that nest in instruction order. Nested function
// bodies are checked too. Failures are InternalErrors: a compiler emitting
// such code is defective, and a loaded code file is corrupt.
func Validate(code *CodeObject) error {
	if code == nil {
		return errs.Internalf("nil code object")
	}

	end := Label(code.Len())
	inRange := func(l Label) bool { return l >= 0 && l <= end }

	depth := 0
	for i, in := range code.Code {
		if !in.Op.Valid() {
			return errs.Internalf("%s@%d: invalid opcode %d", code.Name, i, byte(in.Op))
		}

		switch in.Op {
		case OpJump, OpJumpIfFalse:
			if !inRange(in.Target) {
				return errs.Internalf("%s@%d: %s target %d out of range 0..%d", code.Name, i, in.Op, in.Target, end)
			}

		case OpPushBlock:
			if !inRange(in.Start) || !inRange(in.End) {
				return errs.Internalf("%s@%d: %s labels (%d, %d) out of range 0..%d", code.Name, i, in.Op, in.Start, in.End, end)
			}
			depth++

		case OpPopBlock:
			depth--
			if depth < 0 {
				return errs.Internalf("%s@%d: %s without a matching %s", code.Name, i, in.Op, OpPushBlock)
			}

		case OpLoadConst:
			if in.Arg < math.MinInt32 || in.Arg > math.MaxInt32 {
				return errs.Internalf("%s@%d: constant %d out of int32 range", code.Name, i, in.Arg)
			}

		case OpBuildList, OpBuildTuple, OpCallFunction:
			if in.Arg < 0 {
				return errs.Internalf("%s@%d: %s with negative count %d", code.Name, i, in.Op, in.Arg)
			}

		case OpBuildMap:
			if in.Arg < 0 || in.Arg%2 != 0 {
				return errs.Internalf("%s@%d: %s needs an even slot count, got %d", code.Name, i, in.Op, in.Arg)
			}

		case OpBinaryOperation:
			if in.BinOp == BinaryInvalid || in.BinOp > Or {
				return errs.Internalf("%s@%d: invalid binary operator %d", code.Name, i, byte(in.BinOp))
			}

		case OpLoadName, OpStoreName, OpDeleteName:
			if in.Name == "" {
				return errs.Internalf("%s@%d: %s with empty name", code.Name, i, in.Op)
			}

		case OpMakeFunction:
			if in.Func == nil || in.Func.Code == nil {
				return errs.Internalf("%s@%d: %s without a body", code.Name, i, in.Op)
			}
			if err := Validate(in.Func.Code); err != nil {
				return err
			}
		}
	}

	if depth != 0 {
		return errs.Internalf("%s: %d %s without a matching %s", code.Name, depth, OpPushBlock, OpPopBlock)
	}
	return nil
}
