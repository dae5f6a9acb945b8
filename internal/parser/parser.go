// Package parser turns Python source into the program tree the compiler
// consumes. Lexing and grammar work is delegated to gpython's parser; this
// package only maps gpython's tree onto internal/ast, desugaring a few
// shapes and rejecting everything the compiler has no node for.
package parser

import (
	"fmt"
	"io"
	"strings"

	pyast "github.com/go-python/gpython/ast"
	pyparser "github.com/go-python/gpython/parser"
	"github.com/go-python/gpython/py"

	"pyvm/internal/ast"
	"pyvm/internal/errs"
)

// ParseString parses a whole script held in memory.
func ParseString(src, filename string) (*ast.Program, []error) {
	return Parse(strings.NewReader(src), filename)
}

// Parse reads a whole script and converts it. A gpython parse failure is
// reported as a single SyntaxError; conversion keeps going after an
// unsupported construct so every problem is reported at once.
func Parse(r io.Reader, filename string) (*ast.Program, []error) {
	tree, err := pyparser.Parse(r, filename, py.ExecMode)
	if err != nil {
		return nil, []error{errs.New(errs.Syntax, "%s: %v", filename, err)}
	}
	mod, ok := tree.(*pyast.Module)
	if !ok {
		return nil, []error{errs.Internalf("parser returned %T, expected a module", tree)}
	}

	c := &converter{}
	prog := &ast.Program{Stmts: c.stmts(mod.Body)}
	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return prog, nil
}

type converter struct {
	errors []error
}

func (c *converter) addError(pos ast.Position, format string, args ...interface{}) {
	c.errors = append(c.errors, errs.Syntaxf(pos, format, args...))
}

func stmtPos(s pyast.Stmt) ast.Position {
	return ast.Position{Line: s.GetLineno(), Column: s.GetColOffset() + 1}
}

func exprPos(e pyast.Expr) ast.Position {
	return ast.Position{Line: e.GetLineno(), Column: e.GetColOffset() + 1}
}

func (c *converter) stmts(in []pyast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, 0, len(in))
	for _, s := range in {
		if st := c.stmt(s); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func (c *converter) exprs(in []pyast.Expr) []ast.Expr {
	out := make([]ast.Expr, 0, len(in))
	for _, e := range in {
		out = append(out, c.expr(e))
	}
	return out
}

func (c *converter) stmt(s pyast.Stmt) ast.Stmt {
	pos := stmtPos(s)
	switch st := s.(type) {
	case *pyast.Break:
		return &ast.BreakStmt{At: pos}
	case *pyast.Continue:
		return &ast.ContinueStmt{At: pos}
	case *pyast.Pass:
		return &ast.PassStmt{At: pos}
	case *pyast.ExprStmt:
		return &ast.ExprStmt{At: pos, Expr: c.expr(st.Value)}
	case *pyast.If:
		return &ast.IfStmt{At: pos, Test: c.expr(st.Test), Body: c.stmts(st.Body), Orelse: c.stmts(st.Orelse)}
	case *pyast.While:
		return &ast.WhileStmt{At: pos, Test: c.expr(st.Test), Body: c.stmts(st.Body), Orelse: c.stmts(st.Orelse)}
	case *pyast.For:
		return &ast.ForStmt{
			At:     pos,
			Target: c.expr(st.Target),
			Iter:   c.expr(st.Iter),
			Body:   c.stmts(st.Body),
			Orelse: c.stmts(st.Orelse),
		}
	case *pyast.With:
		return &ast.WithStmt{At: pos, Body: c.stmts(st.Body)}
	case *pyast.FunctionDef:
		return c.functionDef(st, pos)
	case *pyast.ClassDef:
		return &ast.ClassDef{At: pos, Name: string(st.Name), Body: c.stmts(st.Body)}
	case *pyast.Assert:
		a := &ast.AssertStmt{At: pos, Test: c.expr(st.Test)}
		if st.Msg != nil {
			a.Msg = c.expr(st.Msg)
		}
		return a
	case *pyast.Return:
		r := &ast.ReturnStmt{At: pos}
		switch v := st.Value.(type) {
		case nil:
		case *pyast.Tuple:
			// "return a, b" arrives as a single tuple expression.
			r.Values = c.exprs(v.Elts)
		default:
			r.Values = []ast.Expr{c.expr(v)}
		}
		return r
	case *pyast.Assign:
		return &ast.AssignStmt{At: pos, Targets: c.exprs(st.Targets), Value: c.expr(st.Value)}
	case *pyast.AugAssign:
		// x op= y is rewritten to x = x op y; names are the only targets and
		// values are immutable, so the two forms behave the same.
		name, ok := st.Target.(*pyast.Name)
		if !ok {
			c.addError(pos, "unsupported construct: augmented assignment to %s", describe(st.Target))
			return nil
		}
		op, ok := operator(st.Op)
		if !ok {
			c.addError(pos, "unsupported operator %v", st.Op)
			return nil
		}
		target := &ast.Identifier{At: exprPos(name), Name: string(name.Id)}
		load := &ast.Identifier{At: exprPos(name), Name: string(name.Id)}
		return &ast.AssignStmt{
			At:      pos,
			Targets: []ast.Expr{target},
			Value:   &ast.BinaryExpr{At: pos, Left: load, Op: op, Right: c.expr(st.Value)},
		}
	case *pyast.Delete:
		return &ast.DeleteStmt{At: pos, Targets: c.exprs(st.Targets)}
	case *pyast.Import:
		names := make([]string, len(st.Names))
		for i, a := range st.Names {
			names[i] = string(a.Name)
		}
		return &ast.ImportStmt{At: pos, Names: names}
	case *pyast.ImportFrom:
		names := make([]string, len(st.Names))
		for i, a := range st.Names {
			names[i] = string(st.Module) + "." + string(a.Name)
		}
		return &ast.ImportStmt{At: pos, Names: names}
	default:
		c.addError(pos, "unsupported construct: %s", describe(s))
		return nil
	}
}

func (c *converter) functionDef(st *pyast.FunctionDef, pos ast.Position) ast.Stmt {
	fn := &ast.FunctionDef{
		At:            pos,
		Name:          string(st.Name),
		Body:          c.stmts(st.Body),
		HasDecorators: len(st.DecoratorList) > 0,
	}
	if args := st.Args; args != nil {
		for _, a := range args.Args {
			fn.Params = append(fn.Params, &ast.Param{Name: string(a.Arg), At: ast.Position{Line: a.Lineno, Column: a.ColOffset + 1}})
		}
		fn.HasDefaults = len(args.Defaults) > 0 || len(args.KwDefaults) > 0
		fn.HasVarArgs = args.Vararg != nil || len(args.Kwonlyargs) > 0
		fn.HasKwArgs = args.Kwarg != nil
	}
	return fn
}

func (c *converter) expr(e pyast.Expr) ast.Expr {
	pos := exprPos(e)
	switch ex := e.(type) {
	case *pyast.BinOp:
		op, ok := operator(ex.Op)
		if !ok {
			c.addError(pos, "unsupported operator %v", ex.Op)
		}
		return &ast.BinaryExpr{At: pos, Left: c.expr(ex.Left), Op: op, Right: c.expr(ex.Right)}
	case *pyast.UnaryOp:
		return c.unary(ex, pos)
	case *pyast.Call:
		return &ast.CallExpr{
			At:          pos,
			Func:        c.expr(ex.Func),
			Args:        c.exprs(ex.Args),
			HasKeywords: len(ex.Keywords) > 0 || ex.Starargs != nil || ex.Kwargs != nil,
		}
	case *pyast.Num:
		switch n := ex.N.(type) {
		case py.Int:
			return &ast.NumberLiteral{At: pos, Value: int64(n)}
		case *py.BigInt:
			c.addError(pos, "integer literal %v is out of range", n)
		default:
			c.addError(pos, "unsupported construct: %s literal", n.Type().Name)
		}
		return &ast.NumberLiteral{At: pos}
	case *pyast.Str:
		return &ast.StringLiteral{At: pos, Value: string(ex.S)}
	case *pyast.Name:
		return &ast.Identifier{At: pos, Name: string(ex.Id)}
	case *pyast.NameConstant:
		switch ex.Value {
		case py.True:
			return &ast.TrueLiteral{At: pos}
		case py.False:
			return &ast.FalseLiteral{At: pos}
		default:
			return &ast.NoneLiteral{At: pos}
		}
	case *pyast.List:
		return &ast.ListLiteral{At: pos, Elems: c.exprs(ex.Elts)}
	case *pyast.Tuple:
		return &ast.TupleLiteral{At: pos, Elems: c.exprs(ex.Elts)}
	case *pyast.Dict:
		return &ast.DictLiteral{At: pos, Keys: c.exprs(ex.Keys), Values: c.exprs(ex.Values)}
	default:
		c.addError(pos, "unsupported construct: %s", describe(e))
		return &ast.NoneLiteral{At: pos}
	}
}

// unary folds -<int literal> into a negative literal and lowers -x to 0 - x.
// +x only applies to integer literals; everything else has no node.
func (c *converter) unary(ex *pyast.UnaryOp, pos ast.Position) ast.Expr {
	operand := c.expr(ex.Operand)
	switch ex.Op {
	case pyast.USub:
		if lit, ok := operand.(*ast.NumberLiteral); ok {
			return &ast.NumberLiteral{At: pos, Value: -lit.Value}
		}
		return &ast.BinaryExpr{At: pos, Left: &ast.NumberLiteral{At: pos}, Op: ast.Sub, Right: operand}
	case pyast.UAdd:
		if lit, ok := operand.(*ast.NumberLiteral); ok {
			return lit
		}
	}
	c.addError(pos, "unsupported construct: unary %v", ex.Op)
	return operand
}

func operator(op pyast.OperatorNumber) (ast.Operator, bool) {
	switch op {
	case pyast.Add:
		return ast.Add, true
	case pyast.Sub:
		return ast.Sub, true
	case pyast.Mult:
		return ast.Mult, true
	case pyast.Div:
		return ast.Div, true
	case pyast.Modulo:
		return ast.Mod, true
	case pyast.Pow:
		return ast.Pow, true
	case pyast.LShift:
		return ast.LShift, true
	case pyast.RShift:
		return ast.RShift, true
	case pyast.BitOr:
		return ast.BitOr, true
	case pyast.BitXor:
		return ast.BitXor, true
	case pyast.BitAnd:
		return ast.BitAnd, true
	case pyast.FloorDiv:
		return ast.FloorDiv, true
	}
	return ast.OpInvalid, false
}

// describe names a gpython node for diagnostics: *ast.ListComp -> "ListComp".
func describe(node interface{}) string {
	name := fmt.Sprintf("%T", node)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
