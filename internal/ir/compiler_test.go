package ir_test

import (
	"errors"
	"strings"
	"testing"

	"pyvm/internal/ast"
	"pyvm/internal/errs"
	"pyvm/internal/ir"
	"pyvm/internal/parser"
)

func compileSource(t *testing.T, src string) *ir.CodeObject {
	t.Helper()

	prog, perrs := parser.ParseString(src, "<test>")
	if len(perrs) > 0 {
		t.Fatalf("parser errors: %v", perrs)
	}
	code, cerrs := ir.Compile(prog)
	if len(cerrs) > 0 {
		t.Fatalf("compiler errors: %v", cerrs)
	}
	return code
}

func compileErrors(t *testing.T, src string) []error {
	t.Helper()

	prog, perrs := parser.ParseString(src, "<test>")
	if len(perrs) > 0 {
		t.Fatalf("parser errors: %v", perrs)
	}
	code, cerrs := ir.Compile(prog)
	if len(cerrs) == 0 {
		t.Fatalf("expected compile errors, got code:\n%s", ir.Disassemble(code))
	}
	if code != nil {
		t.Fatalf("expected no code object alongside errors")
	}
	return cerrs
}

func opcodes(code *ir.CodeObject) []ir.OpCode {
	ops := make([]ir.OpCode, len(code.Code))
	for i, in := range code.Code {
		ops[i] = in.Op
	}
	return ops
}

func expectOps(t *testing.T, code *ir.CodeObject, want ...ir.OpCode) {
	t.Helper()

	got := opcodes(code)
	if len(got) != len(want) {
		t.Fatalf("expected %d instructions, got %d:\n%s", len(want), len(got), ir.Disassemble(code))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("instruction %d: expected %s, got %s:\n%s", i, want[i], got[i], ir.Disassemble(code))
		}
	}
}

func TestBinaryOperatorForCoversEveryOperator(t *testing.T) {
	seen := make(map[ir.BinaryOperator]ast.Operator)
	for _, op := range ast.Operators {
		bop, ok := ir.BinaryOperatorFor(op)
		if !ok {
			t.Fatalf("no mapping for %v", op)
		}
		if prev, dup := seen[bop]; dup {
			t.Fatalf("%v and %v both map to %v", prev, op, bop)
		}
		seen[bop] = op
		if bop.String() != op.String() {
			t.Errorf("%v maps to %v", op, bop)
		}
	}
	if len(seen) != len(ir.BinaryOperators) {
		t.Fatalf("expected %d operators, mapped %d", len(ir.BinaryOperators), len(seen))
	}
	if _, ok := ir.BinaryOperatorFor(ast.OpInvalid); ok {
		t.Fatalf("invalid operator should not map")
	}
}

func TestCompileExpressionStatement(t *testing.T) {
	code := compileSource(t, "print(1 + 2)\n")

	expectOps(t, code,
		ir.OpLoadName, ir.OpLoadConst, ir.OpLoadConst,
		ir.OpBinaryOperation, ir.OpCallFunction, ir.OpPop,
	)
	if code.Name != ir.ModuleName {
		t.Errorf("expected module name %q, got %q", ir.ModuleName, code.Name)
	}
	if code.Code[3].BinOp != ir.Add {
		t.Errorf("expected +, got %v", code.Code[3].BinOp)
	}
	if code.Code[4].Arg != 1 {
		t.Errorf("expected one argument, got %d", code.Code[4].Arg)
	}
}

func TestCompileLiterals(t *testing.T) {
	code := compileSource(t, "x = (True, False, None, 'hi', [1], {1: 2, 3: 4})\n")

	expectOps(t, code,
		ir.OpLoadConst, ir.OpLoadConst, ir.OpLoadConst,
		ir.OpLoadStringConstant,
		ir.OpLoadConst, ir.OpBuildList,
		ir.OpLoadConst, ir.OpLoadConst, ir.OpLoadConst, ir.OpLoadConst, ir.OpBuildMap,
		ir.OpBuildTuple, ir.OpStoreName,
	)
	if code.Code[0].Arg != 1 || code.Code[1].Arg != 0 || code.Code[2].Arg != 0 {
		t.Errorf("expected True/False/None as 1/0/0")
	}
	if code.Code[3].Name != "hi" {
		t.Errorf("expected string constant hi, got %q", code.Code[3].Name)
	}
	if code.Code[10].Arg != 4 {
		t.Errorf("expected BUILD_MAP 4, got %d", code.Code[10].Arg)
	}
	if code.Code[11].Arg != 6 {
		t.Errorf("expected BUILD_TUPLE 6, got %d", code.Code[11].Arg)
	}
}

func TestCompileChainedAssignment(t *testing.T) {
	code := compileSource(t, "a = b = c = 7\n")

	expectOps(t, code,
		ir.OpLoadConst,
		ir.OpDupTop, ir.OpStoreName,
		ir.OpDupTop, ir.OpStoreName,
		ir.OpStoreName,
	)
	for i, name := range map[int]string{2: "a", 4: "b", 5: "c"} {
		if code.Code[i].Name != name {
			t.Errorf("instruction %d: expected store to %s, got %s", i, name, code.Code[i].Name)
		}
	}
}

func TestCompileIfElse(t *testing.T) {
	code := compileSource(t, "if x:\n    a = 1\nelse:\n    a = 2\n")

	expectOps(t, code,
		ir.OpLoadName, ir.OpJumpIfFalse,
		ir.OpLoadConst, ir.OpStoreName, ir.OpJump,
		ir.OpLoadConst, ir.OpStoreName,
	)
	if code.Code[1].Target != 5 {
		t.Errorf("JUMP_IF_FALSE should land on the else branch, got %d", code.Code[1].Target)
	}
	if code.Code[4].Target != 7 {
		t.Errorf("JUMP should land past the else branch, got %d", code.Code[4].Target)
	}
}

func TestCompileWhileLayout(t *testing.T) {
	code := compileSource(t, "while x:\n    break\n")

	expectOps(t, code,
		ir.OpPushBlock,
		ir.OpLoadName, ir.OpJumpIfFalse,
		ir.OpBreak,
		ir.OpJump,
		ir.OpPopBlock,
	)
	push := code.Code[0]
	if push.Start != 1 || push.End != 6 {
		t.Errorf("expected block (1, 6), got (%d, %d)", push.Start, push.End)
	}
	if code.Code[2].Target != 5 {
		t.Errorf("failed test should jump to POP_BLOCK, got %d", code.Code[2].Target)
	}
	if code.Code[4].Target != 1 {
		t.Errorf("loop should jump back to its test, got %d", code.Code[4].Target)
	}
}

func TestCompileForLayout(t *testing.T) {
	code := compileSource(t, "for i in xs:\n    continue\n")

	expectOps(t, code,
		ir.OpLoadName, ir.OpGetIter,
		ir.OpPushBlock,
		ir.OpForIter, ir.OpStoreName,
		ir.OpContinue,
		ir.OpJump,
		ir.OpPopBlock,
		ir.OpPop,
	)
	push := code.Code[2]
	if push.Start != 3 || push.End != 8 {
		t.Errorf("expected block (3, 8), got (%d, %d)", push.Start, push.End)
	}
	if code.Code[6].Target != 3 {
		t.Errorf("loop should jump back to FOR_ITER, got %d", code.Code[6].Target)
	}
	if code.Code[4].Name != "i" {
		t.Errorf("expected loop variable i, got %q", code.Code[4].Name)
	}
}

func TestCompileAssertLayout(t *testing.T) {
	code := compileSource(t, "assert x, 'boom'\nassert y\n")

	expectOps(t, code,
		ir.OpLoadName, ir.OpJumpIfFalse, ir.OpJump,
		ir.OpLoadStringConstant, ir.OpAssertionFailed,
		ir.OpLoadName, ir.OpJumpIfFalse, ir.OpJump,
		ir.OpLoadNone, ir.OpAssertionFailed,
	)
	if code.Code[1].Target != 3 || code.Code[2].Target != 5 {
		t.Errorf("unexpected assert targets %d, %d", code.Code[1].Target, code.Code[2].Target)
	}
	if code.Code[7].Target != 10 {
		t.Errorf("last assert should jump to the end label, got %d", code.Code[7].Target)
	}
}

func TestCompileFunctionDef(t *testing.T) {
	code := compileSource(t, "def add(a, b):\n    return a + b\n")

	expectOps(t, code, ir.OpMakeFunction, ir.OpStoreName)

	fn := code.Code[0].Func
	if fn == nil {
		t.Fatalf("MAKE_FUNCTION without a body")
	}
	if fn.Name != "add" || strings.Join(fn.Params, ",") != "a,b" {
		t.Errorf("unexpected function %s(%v)", fn.Name, fn.Params)
	}
	expectOps(t, fn.Code,
		ir.OpLoadName, ir.OpLoadName, ir.OpBinaryOperation, ir.OpReturnValue,
		ir.OpLoadNone, ir.OpReturnValue,
	)
	if fn.Code.Name != "add" {
		t.Errorf("expected code object named add, got %q", fn.Code.Name)
	}
}

func TestCompileReturnForms(t *testing.T) {
	code := compileSource(t, "def f():\n    return\ndef g():\n    return 1, 2\n")

	f := code.Code[0].Func.Code
	expectOps(t, f, ir.OpLoadNone, ir.OpReturnValue, ir.OpLoadNone, ir.OpReturnValue)

	g := code.Code[2].Func.Code
	expectOps(t, g, ir.OpLoadConst, ir.OpLoadConst, ir.OpBuildTuple, ir.OpReturnValue, ir.OpLoadNone, ir.OpReturnValue)
	if g.Code[2].Arg != 2 {
		t.Errorf("expected BUILD_TUPLE 2, got %d", g.Code[2].Arg)
	}
}

func TestCompileDelete(t *testing.T) {
	code := compileSource(t, "x = 1\ndel x\n")
	expectOps(t, code, ir.OpLoadConst, ir.OpStoreName, ir.OpDeleteName)
}

func TestCompileIsDeterministic(t *testing.T) {
	src := "def f(n):\n    for i in [1, 2]:\n        n = n + i\n    return n\nprint(f(3))\n"

	first := ir.Disassemble(compileSource(t, src))
	for i := 0; i < 5; i++ {
		if got := ir.Disassemble(compileSource(t, src)); got != first {
			t.Fatalf("compilation %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}
}

func TestCompileRejections(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"break outside loop", "break\n", "'break' outside loop"},
		{"continue outside loop", "continue\n", "'continue' not properly in loop"},
		{"break in function outside loop", "while x:\n    def f():\n        break\n", "'break' outside loop"},
		{"while else", "while x:\n    pass\nelse:\n    pass\n", "else clause"},
		{"for else", "for i in x:\n    pass\nelse:\n    pass\n", "else clause"},
		{"tuple for target", "for a, b in x:\n    pass\n", "for loop target must be a name"},
		{"assign to list", "[a, b] = x\n", "cannot assign to list"},
		{"class", "class C:\n    pass\n", "class definition"},
		{"with", "with x:\n    pass\n", "with statement"},
		{"import", "import os\n", "import"},
		{"defaults", "def f(a=1):\n    pass\n", "default arguments"},
		{"varargs", "def f(*a):\n    pass\n", "variadic parameters"},
		{"kwargs", "def f(**a):\n    pass\n", "keyword parameters"},
		{"keyword call", "f(a=1)\n", "keyword or starred arguments"},
		{"literal out of range", "x = 2147483648\n", "does not fit in 32 bits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cerrs := compileErrors(t, tt.src)
			if !errors.Is(cerrs[0], errs.ErrSyntax) {
				t.Fatalf("expected SyntaxError, got %v", cerrs[0])
			}
			if !strings.Contains(cerrs[0].Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, cerrs[0])
			}
		})
	}
}

func TestCompileReportsEveryRejection(t *testing.T) {
	cerrs := compileErrors(t, "break\nimport os\ncontinue\n")
	if len(cerrs) != 3 {
		t.Fatalf("expected 3 errors, got %v", cerrs)
	}
	if cerrs[1].(*errs.Error).Pos.Line != 2 {
		t.Errorf("expected the import error on line 2, got %v", cerrs[1])
	}
}

func TestCompileInt32Bounds(t *testing.T) {
	code := compileSource(t, "x = -2147483648\ny = 2147483647\n")
	if code.Code[0].Arg != -2147483648 || code.Code[2].Arg != 2147483647 {
		t.Fatalf("unexpected constants %d, %d", code.Code[0].Arg, code.Code[2].Arg)
	}
}

func TestCompileNilProgram(t *testing.T) {
	_, cerrs := ir.Compile(nil)
	if len(cerrs) != 1 || !errs.IsInternal(cerrs[0]) {
		t.Fatalf("expected one internal error, got %v", cerrs)
	}
}
