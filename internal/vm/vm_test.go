package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"pyvm/internal/errs"
	"pyvm/internal/ir"
	"pyvm/internal/parser"
	"pyvm/internal/runtime"
	"pyvm/internal/value"
)

func compileSource(t *testing.T, src string) *ir.CodeObject {
	t.Helper()

	prog, perrs := parser.ParseString(src, "<test>")
	if len(perrs) > 0 {
		for _, e := range perrs {
			t.Logf("parser error: %s", e)
		}
		t.Fatalf("expected no parser errors, got %d", len(perrs))
	}
	code, cerrs := ir.Compile(prog)
	if len(cerrs) > 0 {
		for _, e := range cerrs {
			t.Logf("compile error: %s", e)
		}
		t.Fatalf("expected no compile errors, got %d", len(cerrs))
	}
	return code
}

// runSource compiles and evaluates src, returning the machine and what the
// program printed. setup, if set, runs before evaluation.
func runSource(t *testing.T, src string, opts Options, setup func(*VM)) (*VM, string, error) {
	t.Helper()

	code := compileSource(t, src)
	var out bytes.Buffer
	m := New(runtime.WriterEnv(&out), opts)
	if setup != nil {
		setup(m)
	}
	_, err := m.Evaluate(context.Background(), code)
	return m, out.String(), err
}

func expectOutput(t *testing.T, src, want string) {
	t.Helper()

	_, out, err := runSource(t, src, Options{}, nil)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if out != want {
		t.Fatalf("expected output %q, got %q", want, out)
	}
}

// Simple test: 1 + 2 = 3 using "manual" bytecode.
func TestVM_SimpleAdd(t *testing.T) {
	code := ir.NewCodeObject("main")
	code.Emit(ir.Instruction{Op: ir.OpLoadConst, Arg: 1})               // push 1
	code.Emit(ir.Instruction{Op: ir.OpLoadConst, Arg: 2})               // push 2
	code.Emit(ir.Instruction{Op: ir.OpBinaryOperation, BinOp: ir.Add}) // 1 + 2
	code.Emit(ir.Instruction{Op: ir.OpReturnValue})                     // return top

	m := New(runtime.DefaultEnv(), Options{})
	v, err := m.Evaluate(context.Background(), code)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	if v.Kind != value.KindInt || v.Int != 3 {
		t.Fatalf("expected 3, got %v", v)
	}
}

func TestVM_RunningOffTheEndYieldsNone(t *testing.T) {
	code := ir.NewCodeObject("main")
	code.Emit(ir.Instruction{Op: ir.OpLoadConst, Arg: 1})
	code.Emit(ir.Instruction{Op: ir.OpStoreName, Name: "x"})

	m := New(runtime.DefaultEnv(), Options{})
	v, err := m.Evaluate(context.Background(), code)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !v.IsNone() {
		t.Fatalf("expected None, got %v", v)
	}
	if x, ok := m.Lookup("x"); !ok || x.Int != 1 {
		t.Fatalf("expected x = 1, got %v (bound=%v)", x, ok)
	}
}

func TestVM_AddSubtractMatchHost(t *testing.T) {
	pairs := [][2]int32{
		{1, 2}, {-5, 17}, {123456, -654321},
		{math.MaxInt32, 1}, {math.MinInt32, 1}, {math.MinInt32, -1},
	}
	for _, p := range pairs {
		a, b := p[0], p[1]
		src := fmt.Sprintf("s = %d + %d\nd = %d - %d\n", a, b, a, b)
		m, _, err := runSource(t, src, Options{}, nil)
		if err != nil {
			t.Fatalf("%s: %v", src, err)
		}
		s, _ := m.Lookup("s")
		d, _ := m.Lookup("d")
		if s.Int != a+b || d.Int != a-b {
			t.Errorf("%d, %d: got sum %d diff %d, want %d %d", a, b, s.Int, d.Int, a+b, a-b)
		}
	}
}

func TestVM_OverflowWraps(t *testing.T) {
	expectOutput(t, "print(2147483647 + 1)\n", "-2147483648\n")
}

func TestVM_StringRepetition(t *testing.T) {
	expectOutput(t, `print("ab" * 3)
print("x" * 0 + "|")
print(3 * "x")
`, "ababab\n|\nxxx\n")
}

func TestVM_StatementsKeepTheStackBalanced(t *testing.T) {
	stmts := map[string]string{
		"expression": "1 + 2",
		"call":       `print("a", "b")`,
		"assign":     "a = b = [1, 2]",
		"if":         "if 1:\n    x = 1\nelse:\n    x = 2",
		"while":      "i = 3\nwhile i:\n    i = i - 1",
		"for":        "for x in (1, 2):\n    pass",
		"for break":  "for x in [1, 2]:\n    break",
		"continue":   "for x in [1, 2]:\n    continue",
		"def":        "def f(a):\n    for x in [a]:\n        return x\nf(1)",
		"assert":     "assert 1",
		"delete":     "q = 1\ndel q",
		"dict":       `{"k": 1, 2: "v"}`,
		"pass":       "pass",
	}
	for name, stmt := range stmts {
		t.Run(name, func(t *testing.T) {
			depths := []int32{}
			setup := func(m *VM) {
				m.Globals().Store("depth", value.Native("depth", func(args []value.Value) (value.Value, error) {
					depths = append(depths, int32(m.StackDepth()))
					return value.None(), nil
				}))
			}
			src := "depth()\n" + stmt + "\ndepth()\n"
			_, _, err := runSource(t, src, Options{}, setup)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if len(depths) != 2 || depths[0] != depths[1] {
				t.Fatalf("stack depth changed across statement: %v", depths)
			}
		})
	}
}

func TestVM_ForLoopVisitsEachElementInOrder(t *testing.T) {
	m, out, err := runSource(t, `for x in [1, 2, 3]:
    print(x)
print("after")
`, Options{}, nil)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if out != "1\n2\n3\nafter\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if x, _ := m.Lookup("x"); x.Int != 3 {
		t.Fatalf("expected x bound to last element, got %v", x)
	}
	if m.StackDepth() != 0 {
		t.Fatalf("iterator left on the stack: depth %d", m.StackDepth())
	}
}

func TestVM_BreakRunsBodyOnce(t *testing.T) {
	expectOutput(t, `for x in [1, 2, 3]:
    print(x)
    break
print("done")
`, "1\ndone\n")
}

func TestVM_ContinueSkipsRestOfBody(t *testing.T) {
	expectOutput(t, `for x in [1, 2, 3]:
    if x - 2:
        continue
    print(x)
print("end")
`, "2\nend\n")
}

func TestVM_WhileWithBreakAndContinue(t *testing.T) {
	expectOutput(t, `i = 0
while 1:
    i = i + 1
    if i - 3:
        continue
    break
print(i)
`, "3\n")
}

func TestVM_NestedLoops(t *testing.T) {
	expectOutput(t, `for a in [1, 2]:
    for b in [10, 20]:
        if b - 10:
            break
        print(a + b)
`, "11\n12\n")
}

func TestVM_PrintThroughCallProtocol(t *testing.T) {
	var depthAfter int
	setup := func(m *VM) {
		m.Globals().Store("depth", value.Native("depth", func(args []value.Value) (value.Value, error) {
			depthAfter = m.StackDepth()
			return value.None(), nil
		}))
	}
	_, out, err := runSource(t, "r = print(\"a\", \"b\")\ndepth()\n", Options{}, setup)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if out != "a b\n" {
		t.Fatalf("expected %q, got %q", "a b\n", out)
	}
	if depthAfter != 0 {
		t.Fatalf("expected empty stack after call, got %d", depthAfter)
	}
}

func TestVM_CallAlwaysPushesOneValue(t *testing.T) {
	m, _, err := runSource(t, "r = print()\n", Options{}, nil)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if r, ok := m.Lookup("r"); !ok || !r.IsNone() {
		t.Fatalf("expected r = None, got %v", r)
	}
}

func TestVM_UndefinedNameLeavesStateInspectable(t *testing.T) {
	m, _, err := runSource(t, "x = 1\ny\n", Options{}, nil)
	if !errors.Is(err, errs.ErrName) {
		t.Fatalf("expected NameError, got %v", err)
	}
	if !strings.Contains(err.Error(), "'y'") {
		t.Fatalf("error does not name the identifier: %v", err)
	}
	if m.StackDepth() != 0 {
		t.Fatalf("expected empty stack, got %d", m.StackDepth())
	}
	if x, ok := m.Lookup("x"); !ok || x.Int != 1 {
		t.Fatalf("expected x = 1 to survive, got %v", x)
	}
	if _, ok := m.Lookup("y"); ok {
		t.Fatalf("y should still be unbound")
	}
	if m.PC() < 0 {
		t.Fatalf("expected a halted frame to inspect")
	}
}

func TestVM_TypeErrors(t *testing.T) {
	tests := map[string]string{
		"str plus int":  `"a" + 1`,
		"call int":      "x = 1\nx()",
		"iterate int":   "for x in 5:\n    pass",
		"print func":    "def f():\n    pass\nprint(f)",
		"arity":         "def f(a):\n    pass\nf()",
		"unhashable":    "d = {[1]: 2}",
		"true division": "1 / 2",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := runSource(t, src+"\n", Options{}, nil)
			if !errors.Is(err, errs.ErrType) {
				t.Fatalf("expected TypeError, got %v", err)
			}
		})
	}
}

func TestVM_Functions(t *testing.T) {
	expectOutput(t, `g = 5
def add(a, b):
    return a + b + g
def pair():
    return 1, 2
def nothing():
    pass
print(add(2, 3))
print(pair())
print(nothing())
`, "10\n(1, 2)\nNone\n")
}

func TestVM_FunctionLocalsDoNotLeak(t *testing.T) {
	_, _, err := runSource(t, `def f():
    z = 1
f()
z
`, Options{}, nil)
	if !errors.Is(err, errs.ErrName) {
		t.Fatalf("expected NameError, got %v", err)
	}
}

func TestVM_Recursion(t *testing.T) {
	expectOutput(t, `def fact(n):
    if n:
        return n * fact(n - 1)
    return 1
print(fact(10))
`, "3628800\n")

	_, _, err := runSource(t, "def f(n):\n    return f(n)\nf(1)\n", Options{MaxCallDepth: 50}, nil)
	if !errors.Is(err, errs.ErrRecursion) {
		t.Fatalf("expected RecursionError, got %v", err)
	}
}

func TestVM_Assert(t *testing.T) {
	expectOutput(t, "assert 1\nprint(\"ok\")\n", "ok\n")

	_, _, err := runSource(t, "assert 0, \"boom\"\n", Options{}, nil)
	if !errors.Is(err, errs.ErrAssertion) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected AssertionError boom, got %v", err)
	}
}

func TestVM_DeleteUnbindsName(t *testing.T) {
	_, _, err := runSource(t, "x = 1\ndel x\nx\n", Options{}, nil)
	if !errors.Is(err, errs.ErrName) {
		t.Fatalf("expected NameError, got %v", err)
	}
}

func TestVM_LiteralsAndContainers(t *testing.T) {
	expectOutput(t, `a = b = 4
print(a, b)
print(True, False, None)
print({"k": [1, "x"]})
print(len("abc"), len((1, 2)), str(7) + "!")
x = 2
x += 3
print(x, -x, 7 // 2, -7 % 3, 2 ** 8, 1 << 4, 6 & 3, 6 | 3, 6 ^ 3)
`, "4 4\n1 0 0\n{'k': [1, 'x']}\n3 2 7!\n5 -5 3 2 256 16 2 7 5\n")
}

func TestVM_ModuleLevelReturnHalts(t *testing.T) {
	code := ir.NewCodeObject(ir.ModuleName)
	code.Emit(ir.Instruction{Op: ir.OpLoadConst, Arg: 7})
	code.Emit(ir.Instruction{Op: ir.OpReturnValue})
	code.Emit(ir.Instruction{Op: ir.OpLoadName, Name: "missing"})

	v, err := New(runtime.DefaultEnv(), Options{}).Evaluate(context.Background(), code)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if v.Int != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestVM_InternalConsistencyErrors(t *testing.T) {
	tests := map[string][]ir.Instruction{
		"underflow":       {{Op: ir.OpPop}},
		"break no block":  {{Op: ir.OpBreak}},
		"continue":        {{Op: ir.OpContinue}},
		"for iter no it":  {{Op: ir.OpLoadConst, Arg: 1}, {Op: ir.OpForIter}},
		"call underflow":  {{Op: ir.OpLoadConst, Arg: 1}, {Op: ir.OpCallFunction, Arg: 1}},
		"bad jump target": {{Op: ir.OpJump, Target: 5}},
		"unbalanced":      {{Op: ir.OpPopBlock}},
		"unknown opcode":  {{Op: ir.OpCode(200)}},
	}
	for name, instrs := range tests {
		t.Run(name, func(t *testing.T) {
			code := &ir.CodeObject{Name: "broken", Code: instrs}
			_, err := New(runtime.DefaultEnv(), Options{}).Evaluate(context.Background(), code)
			if !errs.IsInternal(err) {
				t.Fatalf("expected InternalError, got %v", err)
			}
		})
	}
}

func TestVM_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(runtime.DefaultEnv(), Options{}).Evaluate(ctx, ir.NewCodeObject("main"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(errs.Internalf("stack underflow")); !strings.Contains(got, "bug in pyvm") {
		t.Fatalf("internal error not marked as a defect: %s", got)
	}
	if got := Describe(errs.New(errs.Name, "name 'y' is not defined")); got != "NameError: name 'y' is not defined" {
		t.Fatalf("unexpected description: %s", got)
	}
}
