package ast

import (
	"fmt"
	"io"
	"strings"
)

// Dump returns a human-readable representation of the AST.
func Dump(node Node) string {
	var sb strings.Builder
	fprintNode(&sb, node, 0)
	return sb.String()
}

func fprintStmts(w io.Writer, label string, stmts []Stmt, indent int) {
	if len(stmts) == 0 {
		return
	}
	fmt.Fprintf(w, "%s%s:\n", strings.Repeat("  ", indent), label)
	for _, s := range stmts {
		fprintNode(w, s, indent+1)
	}
}

func fprintExprs(w io.Writer, label string, exprs []Expr, indent int) {
	if len(exprs) == 0 {
		return
	}
	fmt.Fprintf(w, "%s%s:\n", strings.Repeat("  ", indent), label)
	for _, e := range exprs {
		fprintNode(w, e, indent+1)
	}
}

func fprintNode(w io.Writer, n Node, indent int) {
	if n == nil {
		return
	}

	ind := strings.Repeat("  ", indent)

	switch n := n.(type) {
	case *Program:
		fmt.Fprintf(w, "%sProgram\n", ind)
		for _, s := range n.Stmts {
			fprintNode(w, s, indent+1)
		}

	case *BreakStmt:
		fmt.Fprintf(w, "%sBreak\n", ind)

	case *ContinueStmt:
		fmt.Fprintf(w, "%sContinue\n", ind)

	case *PassStmt:
		fmt.Fprintf(w, "%sPass\n", ind)

	case *ExprStmt:
		fmt.Fprintf(w, "%sExprStmt\n", ind)
		fprintNode(w, n.Expr, indent+1)

	case *IfStmt:
		fmt.Fprintf(w, "%sIf\n", ind)
		fmt.Fprintf(w, "%s  Test:\n", ind)
		fprintNode(w, n.Test, indent+2)
		fprintStmts(w, "Body", n.Body, indent+1)
		fprintStmts(w, "Else", n.Orelse, indent+1)

	case *WhileStmt:
		fmt.Fprintf(w, "%sWhile\n", ind)
		fmt.Fprintf(w, "%s  Test:\n", ind)
		fprintNode(w, n.Test, indent+2)
		fprintStmts(w, "Body", n.Body, indent+1)
		fprintStmts(w, "Else", n.Orelse, indent+1)

	case *ForStmt:
		fmt.Fprintf(w, "%sFor\n", ind)
		fmt.Fprintf(w, "%s  Target:\n", ind)
		fprintNode(w, n.Target, indent+2)
		fmt.Fprintf(w, "%s  Iter:\n", ind)
		fprintNode(w, n.Iter, indent+2)
		fprintStmts(w, "Body", n.Body, indent+1)
		fprintStmts(w, "Else", n.Orelse, indent+1)

	case *WithStmt:
		fmt.Fprintf(w, "%sWith\n", ind)
		fprintStmts(w, "Body", n.Body, indent+1)

	case *FunctionDef:
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = p.Name
		}
		fmt.Fprintf(w, "%sFunctionDef name=%s params=(%s)\n", ind, n.Name, strings.Join(params, ", "))
		fprintStmts(w, "Body", n.Body, indent+1)

	case *ClassDef:
		fmt.Fprintf(w, "%sClassDef name=%s\n", ind, n.Name)
		fprintStmts(w, "Body", n.Body, indent+1)

	case *AssertStmt:
		fmt.Fprintf(w, "%sAssert\n", ind)
		fprintNode(w, n.Test, indent+1)
		if n.Msg != nil {
			fmt.Fprintf(w, "%s  Msg:\n", ind)
			fprintNode(w, n.Msg, indent+2)
		}

	case *ReturnStmt:
		fmt.Fprintf(w, "%sReturn\n", ind)
		for _, v := range n.Values {
			fprintNode(w, v, indent+1)
		}

	case *AssignStmt:
		fmt.Fprintf(w, "%sAssign\n", ind)
		fprintExprs(w, "Targets", n.Targets, indent+1)
		fmt.Fprintf(w, "%s  Value:\n", ind)
		fprintNode(w, n.Value, indent+2)

	case *DeleteStmt:
		fmt.Fprintf(w, "%sDelete\n", ind)
		for _, t := range n.Targets {
			fprintNode(w, t, indent+1)
		}

	case *ImportStmt:
		fmt.Fprintf(w, "%sImport %s\n", ind, strings.Join(n.Names, ", "))

	case *BinaryExpr:
		fmt.Fprintf(w, "%sBinop op=%v\n", ind, n.Op)
		fprintNode(w, n.Left, indent+1)
		fprintNode(w, n.Right, indent+1)

	case *CallExpr:
		fmt.Fprintf(w, "%sCall\n", ind)
		fmt.Fprintf(w, "%s  Func:\n", ind)
		fprintNode(w, n.Func, indent+2)
		fprintExprs(w, "Args", n.Args, indent+1)

	case *NumberLiteral:
		fmt.Fprintf(w, "%sNumber %d\n", ind, n.Value)

	case *StringLiteral:
		fmt.Fprintf(w, "%sString %q\n", ind, n.Value)

	case *Identifier:
		fmt.Fprintf(w, "%sIdentifier %s\n", ind, n.Name)

	case *ListLiteral:
		fmt.Fprintf(w, "%sList\n", ind)
		for _, el := range n.Elems {
			fprintNode(w, el, indent+1)
		}

	case *TupleLiteral:
		fmt.Fprintf(w, "%sTuple\n", ind)
		for _, el := range n.Elems {
			fprintNode(w, el, indent+1)
		}

	case *DictLiteral:
		fmt.Fprintf(w, "%sDict\n", ind)
		for i := range n.Keys {
			fmt.Fprintf(w, "%s  Entry:\n", ind)
			fprintNode(w, n.Keys[i], indent+2)
			if i < len(n.Values) {
				fprintNode(w, n.Values[i], indent+2)
			}
		}

	case *TrueLiteral:
		fmt.Fprintf(w, "%sTrue\n", ind)

	case *FalseLiteral:
		fmt.Fprintf(w, "%sFalse\n", ind)

	case *NoneLiteral:
		fmt.Fprintf(w, "%sNone\n", ind)

	default:
		fmt.Fprintf(w, "%s<unknown node %T>\n", ind, n)
	}
}
