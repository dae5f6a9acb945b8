package ir

import (
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"pyvm/internal/ast"
	"pyvm/internal/errs"
)

var log = commonlog.GetLogger("pyvm.compiler")

// ModuleName is the name given to the top-level code object.
const ModuleName = "<module>"

// Compiler lowers a program tree into bytecode.
type Compiler struct {
	errors []error
}

// Compile compiles a whole program into a module code object. The result is
// deterministic for a given tree. Every rejected construct is reported; no
// code object is returned if anything was rejected.
func Compile(prog *ast.Program) (*CodeObject, []error) {
	if prog == nil {
		return nil, []error{errs.Internalf("nil program")}
	}

	c := &Compiler{}
	cc := newCodeCompiler(c, ModuleName)
	cc.compileStmts(prog.Stmts)
	code := cc.finish()

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	if err := Validate(code); err != nil {
		return nil, []error{err}
	}
	log.Debugf("compiled %s: %d instructions", code.Name, code.Len())
	return code, nil
}

func (c *Compiler) addError(pos ast.Position, format string, args ...interface{}) {
	c.errors = append(c.errors, errs.Syntaxf(pos, format, args...))
}

func (c *Compiler) addInternal(pos ast.Position, format string, args ...interface{}) {
	c.errors = append(c.errors, errs.At(pos, errs.Internal, format, args...))
}

// ---------- Labels ----------

// labelID names a jump target that may not be bound yet. Instructions
// referring to it carry the id as a placeholder until finish rewrites them.
type labelID int

type labelField byte

const (
	fieldTarget labelField = iota
	fieldStart
	fieldEnd
)

type patch struct {
	instr int
	field labelField
	label labelID
}

// ---------- codeCompiler ----------

// codeCompiler emits one code object: the module body or a function body.
type codeCompiler struct {
	c    *Compiler
	code *CodeObject

	labels  []int // labelID -> instruction index, -1 while unbound
	patches []patch

	loopDepth int // lexical loop nesting inside this code object
}

func newCodeCompiler(c *Compiler, name string) *codeCompiler {
	return &codeCompiler{
		c:    c,
		code: NewCodeObject(name),
	}
}

func (cc *codeCompiler) emit(in Instruction) int {
	return cc.code.Emit(in)
}

func (cc *codeCompiler) newLabel() labelID {
	cc.labels = append(cc.labels, -1)
	return labelID(len(cc.labels) - 1)
}

// bind attaches l to the next instruction to be emitted.
func (cc *codeCompiler) bind(l labelID, pos ast.Position) {
	if cc.labels[l] >= 0 {
		cc.c.addInternal(pos, "label %d bound twice", l)
		return
	}
	cc.labels[l] = cc.code.Len()
}

func (cc *codeCompiler) emitJump(op OpCode, l labelID) {
	idx := cc.emit(Instruction{Op: op, Target: Label(l)})
	cc.patches = append(cc.patches, patch{instr: idx, field: fieldTarget, label: l})
}

func (cc *codeCompiler) emitPushBlock(start, end labelID) {
	idx := cc.emit(Instruction{Op: OpPushBlock, Start: Label(start), End: Label(end)})
	cc.patches = append(cc.patches,
		patch{instr: idx, field: fieldStart, label: start},
		patch{instr: idx, field: fieldEnd, label: end},
	)
}

// finish rewrites every placeholder with its bound instruction index.
func (cc *codeCompiler) finish() *CodeObject {
	for _, p := range cc.patches {
		target := cc.labels[p.label]
		if target < 0 {
			cc.c.addInternal(ast.Position{}, "%s: label %d used at %d was never bound", cc.code.Name, p.label, p.instr)
			continue
		}
		in := &cc.code.Code[p.instr]
		switch p.field {
		case fieldTarget:
			in.Target = Label(target)
		case fieldStart:
			in.Start = Label(target)
		case fieldEnd:
			in.End = Label(target)
		}
	}
	cc.patches = nil
	return cc.code
}

// ---------- Statements ----------

func (cc *codeCompiler) compileStmts(stmts []ast.Stmt) {
	for _, st := range stmts {
		cc.compileStmt(st)
	}
}

func (cc *codeCompiler) compileStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.ExprStmt:
		cc.compileExpr(st.Expr)
		cc.emit(Instruction{Op: OpPop})

	case *ast.AssignStmt:
		cc.compileAssign(st)

	case *ast.IfStmt:
		cc.compileIf(st)

	case *ast.WhileStmt:
		cc.compileWhile(st)

	case *ast.ForStmt:
		cc.compileFor(st)

	case *ast.ReturnStmt:
		cc.compileReturn(st)

	case *ast.BreakStmt:
		if cc.loopDepth == 0 {
			cc.c.addError(st.Pos(), "'break' outside loop")
			return
		}
		cc.emit(Instruction{Op: OpBreak})

	case *ast.ContinueStmt:
		if cc.loopDepth == 0 {
			cc.c.addError(st.Pos(), "'continue' not properly in loop")
			return
		}
		cc.emit(Instruction{Op: OpContinue})

	case *ast.PassStmt:
		cc.emit(Instruction{Op: OpPass})

	case *ast.FunctionDef:
		cc.compileFunctionDef(st)

	case *ast.AssertStmt:
		cc.compileAssert(st)

	case *ast.DeleteStmt:
		for _, t := range st.Targets {
			name, ok := t.(*ast.Identifier)
			if !ok {
				cc.c.addError(t.Pos(), "unsupported construct: cannot delete %s", exprKind(t))
				continue
			}
			cc.emit(Instruction{Op: OpDeleteName, Name: name.Name})
		}

	case *ast.ClassDef:
		cc.c.addError(st.Pos(), "unsupported construct: class definition %q", st.Name)

	case *ast.WithStmt:
		cc.c.addError(st.Pos(), "unsupported construct: with statement")

	case *ast.ImportStmt:
		cc.c.addError(st.Pos(), "unsupported construct: import")

	case nil:
		cc.c.addInternal(ast.Position{}, "nil statement")

	default:
		cc.c.addError(s.Pos(), "unsupported construct: %T", s)
	}
}

// compileAssign evaluates the value once and binds it to every target.
func (cc *codeCompiler) compileAssign(st *ast.AssignStmt) {
	names := make([]string, 0, len(st.Targets))
	for _, t := range st.Targets {
		id, ok := t.(*ast.Identifier)
		if !ok {
			cc.c.addError(t.Pos(), "unsupported construct: cannot assign to %s", exprKind(t))
			continue
		}
		names = append(names, id.Name)
	}
	if len(names) != len(st.Targets) {
		return
	}

	cc.compileExpr(st.Value)
	for i, name := range names {
		if i < len(names)-1 {
			cc.emit(Instruction{Op: OpDupTop})
		}
		cc.emit(Instruction{Op: OpStoreName, Name: name})
	}
}

func (cc *codeCompiler) compileIf(s *ast.IfStmt) {
	elseL := cc.newLabel()

	cc.compileExpr(s.Test)
	cc.emitJump(OpJumpIfFalse, elseL)
	cc.compileStmts(s.Body)

	if len(s.Orelse) > 0 {
		endL := cc.newLabel()
		cc.emitJump(OpJump, endL)
		cc.bind(elseL, s.Pos())
		cc.compileStmts(s.Orelse)
		cc.bind(endL, s.Pos())
	} else {
		cc.bind(elseL, s.Pos())
	}
}

// compileWhile lowers
//
//	    PUSH_BLOCK head, exit
//	head:
//	    <test>
//	    JUMP_IF_FALSE done
//	    <body>
//	    JUMP head
//	done:
//	    POP_BLOCK
//	exit:
//
// BREAK pops the block itself, so it lands on exit.
func (cc *codeCompiler) compileWhile(s *ast.WhileStmt) {
	if len(s.Orelse) > 0 {
		cc.c.addError(s.Pos(), "unsupported construct: else clause on while loop")
		return
	}
	head, done, exit := cc.newLabel(), cc.newLabel(), cc.newLabel()

	cc.emitPushBlock(head, exit)
	cc.bind(head, s.Pos())
	cc.compileExpr(s.Test)
	cc.emitJump(OpJumpIfFalse, done)

	cc.loopDepth++
	cc.compileStmts(s.Body)
	cc.loopDepth--

	cc.emitJump(OpJump, head)
	cc.bind(done, s.Pos())
	cc.emit(Instruction{Op: OpPopBlock})
	cc.bind(exit, s.Pos())
}

// compileFor lowers
//
//	    <iter>
//	    GET_ITER
//	    PUSH_BLOCK head, exit
//	head:
//	    FOR_ITER
//	    STORE_NAME target
//	    <body>
//	    JUMP head
//	    POP_BLOCK
//	exit:
//	    POP_TOP
//
// FOR_ITER on an exhausted iterator behaves like BREAK. The POP_BLOCK is
// never reached at runtime; it closes the block for Validate. The final
// POP_TOP drops the iterator on every exit path.
func (cc *codeCompiler) compileFor(s *ast.ForStmt) {
	if len(s.Orelse) > 0 {
		cc.c.addError(s.Pos(), "unsupported construct: else clause on for loop")
		return
	}
	target, ok := s.Target.(*ast.Identifier)
	if !ok {
		cc.c.addError(s.Target.Pos(), "unsupported construct: for loop target must be a name, got %s", exprKind(s.Target))
		return
	}
	head, exit := cc.newLabel(), cc.newLabel()

	cc.compileExpr(s.Iter)
	cc.emit(Instruction{Op: OpGetIter})
	cc.emitPushBlock(head, exit)
	cc.bind(head, s.Pos())
	cc.emit(Instruction{Op: OpForIter})
	cc.emit(Instruction{Op: OpStoreName, Name: target.Name})

	cc.loopDepth++
	cc.compileStmts(s.Body)
	cc.loopDepth--

	cc.emitJump(OpJump, head)
	cc.emit(Instruction{Op: OpPopBlock})
	cc.bind(exit, s.Pos())
	cc.emit(Instruction{Op: OpPop})
}

func (cc *codeCompiler) compileReturn(s *ast.ReturnStmt) {
	switch len(s.Values) {
	case 0:
		cc.emit(Instruction{Op: OpLoadNone})
	case 1:
		cc.compileExpr(s.Values[0])
	default:
		for _, v := range s.Values {
			cc.compileExpr(v)
		}
		cc.emit(Instruction{Op: OpBuildTuple, Arg: len(s.Values)})
	}
	cc.emit(Instruction{Op: OpReturnValue})
}

// compileFunctionDef compiles the body into its own code object and binds
// the resulting function value to its name.
func (cc *codeCompiler) compileFunctionDef(fn *ast.FunctionDef) {
	switch {
	case fn.HasDecorators:
		cc.c.addError(fn.Pos(), "unsupported construct: decorators on %q", fn.Name)
		return
	case fn.HasDefaults:
		cc.c.addError(fn.Pos(), "unsupported construct: default arguments in %q", fn.Name)
		return
	case fn.HasVarArgs:
		cc.c.addError(fn.Pos(), "unsupported construct: variadic parameters in %q", fn.Name)
		return
	case fn.HasKwArgs:
		cc.c.addError(fn.Pos(), "unsupported construct: keyword parameters in %q", fn.Name)
		return
	}

	params := make([]string, len(fn.Params))
	seen := make(map[string]bool, len(fn.Params))
	for i, p := range fn.Params {
		if seen[p.Name] {
			cc.c.addError(p.At, "duplicate argument %q in function definition", p.Name)
		}
		seen[p.Name] = true
		params[i] = p.Name
	}

	body := newCodeCompiler(cc.c, fn.Name)
	body.compileStmts(fn.Body)
	body.emit(Instruction{Op: OpLoadNone})
	body.emit(Instruction{Op: OpReturnValue})

	cc.emit(Instruction{Op: OpMakeFunction, Func: &FunctionCode{
		Name:   fn.Name,
		Params: params,
		Code:   body.finish(),
	}})
	cc.emit(Instruction{Op: OpStoreName, Name: fn.Name})
}

// compileAssert lowers
//
//	    <test>
//	    JUMP_IF_FALSE fail
//	    JUMP end
//	fail:
//	    <msg> | LOAD_NONE
//	    ASSERTION_FAILED
//	end:
func (cc *codeCompiler) compileAssert(s *ast.AssertStmt) {
	fail, end := cc.newLabel(), cc.newLabel()

	cc.compileExpr(s.Test)
	cc.emitJump(OpJumpIfFalse, fail)
	cc.emitJump(OpJump, end)
	cc.bind(fail, s.Pos())
	if s.Msg != nil {
		cc.compileExpr(s.Msg)
	} else {
		cc.emit(Instruction{Op: OpLoadNone})
	}
	cc.emit(Instruction{Op: OpAssertionFailed})
	cc.bind(end, s.Pos())
}

// ---------- Expressions ----------

func (cc *codeCompiler) compileExpr(e ast.Expr) {
	switch ex := e.(type) {
	case *ast.NumberLiteral:
		if ex.Value < math.MinInt32 || ex.Value > math.MaxInt32 {
			cc.c.addError(ex.Pos(), "integer literal %d does not fit in 32 bits", ex.Value)
			return
		}
		cc.emit(Instruction{Op: OpLoadConst, Arg: int(ex.Value)})

	case *ast.StringLiteral:
		cc.emit(Instruction{Op: OpLoadStringConstant, Name: ex.Value})

	// Booleans and None are integers in this subset.
	case *ast.TrueLiteral:
		cc.emit(Instruction{Op: OpLoadConst, Arg: 1})

	case *ast.FalseLiteral:
		cc.emit(Instruction{Op: OpLoadConst, Arg: 0})

	case *ast.NoneLiteral:
		cc.emit(Instruction{Op: OpLoadConst, Arg: 0})

	case *ast.Identifier:
		cc.emit(Instruction{Op: OpLoadName, Name: ex.Name})

	case *ast.BinaryExpr:
		cc.compileBinary(ex)

	case *ast.CallExpr:
		if ex.HasKeywords {
			cc.c.addError(ex.Pos(), "unsupported construct: keyword or starred arguments")
			return
		}
		cc.compileExpr(ex.Func)
		for _, arg := range ex.Args {
			cc.compileExpr(arg)
		}
		cc.emit(Instruction{Op: OpCallFunction, Arg: len(ex.Args)})

	case *ast.ListLiteral:
		for _, el := range ex.Elems {
			cc.compileExpr(el)
		}
		cc.emit(Instruction{Op: OpBuildList, Arg: len(ex.Elems)})

	case *ast.TupleLiteral:
		for _, el := range ex.Elems {
			cc.compileExpr(el)
		}
		cc.emit(Instruction{Op: OpBuildTuple, Arg: len(ex.Elems)})

	case *ast.DictLiteral:
		if len(ex.Keys) != len(ex.Values) {
			cc.c.addInternal(ex.Pos(), "dict literal has %d keys and %d values", len(ex.Keys), len(ex.Values))
			return
		}
		for i := range ex.Keys {
			cc.compileExpr(ex.Keys[i])
			cc.compileExpr(ex.Values[i])
		}
		cc.emit(Instruction{Op: OpBuildMap, Arg: 2 * len(ex.Keys)})

	case nil:
		cc.c.addInternal(ast.Position{}, "nil expression")

	default:
		cc.c.addError(e.Pos(), "unsupported construct: %T", e)
	}
}

func (cc *codeCompiler) compileBinary(b *ast.BinaryExpr) {
	op, ok := BinaryOperatorFor(b.Op)
	if !ok {
		cc.c.addInternal(b.Pos(), "no opcode for operator %v", b.Op)
		return
	}
	cc.compileExpr(b.Left)
	cc.compileExpr(b.Right)
	cc.emit(Instruction{Op: OpBinaryOperation, BinOp: op})
}

// BinaryOperatorFor maps a surface operator to its opcode operand. Every
// ast.Operator has exactly one mapping.
func BinaryOperatorFor(op ast.Operator) (BinaryOperator, bool) {
	switch op {
	case ast.Pow:
		return Power, true
	case ast.Mult:
		return Multiply, true
	case ast.MatMult:
		return MatrixMultiply, true
	case ast.Div:
		return Divide, true
	case ast.FloorDiv:
		return FloorDivide, true
	case ast.Mod:
		return Modulo, true
	case ast.Add:
		return Add, true
	case ast.Sub:
		return Subtract, true
	case ast.LShift:
		return Lshift, true
	case ast.RShift:
		return Rshift, true
	case ast.BitAnd:
		return And, true
	case ast.BitXor:
		return Xor, true
	case ast.BitOr:
		return Or, true
	}
	return BinaryInvalid, false
}

func exprKind(e ast.Expr) string {
	switch e.(type) {
	case *ast.Identifier:
		return "name"
	case *ast.CallExpr:
		return "function call"
	case *ast.BinaryExpr:
		return "expression"
	case *ast.ListLiteral:
		return "list"
	case *ast.TupleLiteral:
		return "tuple"
	case *ast.DictLiteral:
		return "dict"
	case *ast.NumberLiteral, *ast.StringLiteral, *ast.TrueLiteral, *ast.FalseLiteral, *ast.NoneLiteral:
		return "literal"
	default:
		return fmt.Sprintf("%T", e)
	}
}
