package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// DisassembleInstruction renders one instruction as "0004  NAME operands".
func DisassembleInstruction(pos int, in Instruction) string {
	name := in.Op.Info().Name

	switch in.Op {
	case OpLoadName, OpStoreName, OpDeleteName:
		return fmt.Sprintf("%04d  %s %s", pos, name, in.Name)

	case OpLoadStringConstant:
		return fmt.Sprintf("%04d  %s %s", pos, name, strconv.Quote(in.Name))

	case OpLoadConst, OpBuildList, OpBuildTuple, OpBuildMap, OpCallFunction:
		return fmt.Sprintf("%04d  %s %d", pos, name, in.Arg)

	case OpBinaryOperation:
		return fmt.Sprintf("%04d  %s %s", pos, name, in.BinOp)

	case OpJump, OpJumpIfFalse:
		return fmt.Sprintf("%04d  %s -> %04d", pos, name, in.Target)

	case OpPushBlock:
		return fmt.Sprintf("%04d  %s start=%04d end=%04d", pos, name, in.Start, in.End)

	case OpMakeFunction:
		if in.Func == nil {
			return fmt.Sprintf("%04d  %s <nil>", pos, name)
		}
		return fmt.Sprintf("%04d  %s %s(%s)", pos, name, in.Func.Name, strings.Join(in.Func.Params, ", "))

	default:
		return fmt.Sprintf("%04d  %s", pos, name)
	}
}

// Disassemble renders a code object and, after it, every nested function
// body in the order they are defined.
func Disassemble(code *CodeObject) string {
	var sb strings.Builder
	disassembleInto(&sb, code)
	return sb.String()
}

func disassembleInto(sb *strings.Builder, code *CodeObject) {
	fmt.Fprintf(sb, "code %s:\n", code.Name)
	var nested []*CodeObject
	for i, in := range code.Code {
		sb.WriteString(DisassembleInstruction(i, in))
		sb.WriteByte('\n')
		if in.Op == OpMakeFunction && in.Func != nil && in.Func.Code != nil {
			nested = append(nested, in.Func.Code)
		}
	}
	for _, n := range nested {
		sb.WriteByte('\n')
		disassembleInto(sb, n)
	}
}
