package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"github.com/ekaya-inc/pokedex/pkg/logging"
)

// check rejects imports, load statements and denied identifiers.
func check(code string) error {
	if m := importLine.FindString(code); m != "" {
		return fmt.Errorf("imports are not allowed: %q", strings.TrimSpace(m))
	}

	f, err := fileOptions.Parse(snippetFilename, code, 0)
	if err != nil {
		return fmt.Errorf("syntax error: %s", logging.TruncateString(err.Error(), maxErrorLength))
	}

	denied := make(map[string]bool, len(DeniedIdentifiers))
	for _, name := range DeniedIdentifiers {
		denied[name] = true
	}
	c := &checker{denied: denied}
	c.stmts(f.Stmts)
	return c.err
}

// checker walks every statement and expression form the parser can produce
// under fileOptions. Attribute names after a dot are not identifiers in
// scope and are not checked.
type checker struct {
	denied map[string]bool
	err    error
}

func (c *checker) stmts(list []syntax.Stmt) {
	for _, s := range list {
		if c.err != nil {
			return
		}
		c.stmt(s)
	}
}

func (c *checker) stmt(s syntax.Stmt) {
	switch s := s.(type) {
	case *syntax.ExprStmt:
		c.expr(s.X)
	case *syntax.AssignStmt:
		c.expr(s.LHS)
		c.expr(s.RHS)
	case *syntax.IfStmt:
		c.expr(s.Cond)
		c.stmts(s.True)
		c.stmts(s.False)
	case *syntax.ForStmt:
		c.expr(s.Vars)
		c.expr(s.X)
		c.stmts(s.Body)
	case *syntax.WhileStmt:
		c.expr(s.Cond)
		c.stmts(s.Body)
	case *syntax.DefStmt:
		c.expr(s.Name)
		c.exprs(s.Params)
		c.stmts(s.Body)
	case *syntax.ReturnStmt:
		c.expr(s.Result)
	case *syntax.BranchStmt:
	case *syntax.LoadStmt:
		c.err = errors.New("load statements are not allowed")
	default:
		c.err = fmt.Errorf("unsupported statement %T", s)
	}
}

func (c *checker) exprs(list []syntax.Expr) {
	for _, e := range list {
		c.expr(e)
	}
}

func (c *checker) expr(e syntax.Expr) {
	if e == nil || c.err != nil {
		return
	}
	switch e := e.(type) {
	case *syntax.Ident:
		if c.denied[e.Name] {
			c.err = fmt.Errorf("use of %s is not allowed", e.Name)
		}
	case *syntax.Literal:
	case *syntax.ParenExpr:
		c.expr(e.X)
	case *syntax.ListExpr:
		c.exprs(e.List)
	case *syntax.TupleExpr:
		c.exprs(e.List)
	case *syntax.DictExpr:
		c.exprs(e.List)
	case *syntax.DictEntry:
		c.expr(e.Key)
		c.expr(e.Value)
	case *syntax.CondExpr:
		c.expr(e.Cond)
		c.expr(e.True)
		c.expr(e.False)
	case *syntax.IndexExpr:
		c.expr(e.X)
		c.expr(e.Y)
	case *syntax.SliceExpr:
		c.expr(e.X)
		c.expr(e.Lo)
		c.expr(e.Hi)
		c.expr(e.Step)
	case *syntax.UnaryExpr:
		c.expr(e.X)
	case *syntax.BinaryExpr:
		c.expr(e.X)
		c.expr(e.Y)
	case *syntax.DotExpr:
		c.expr(e.X)
	case *syntax.CallExpr:
		c.expr(e.Fn)
		c.exprs(e.Args)
	case *syntax.LambdaExpr:
		c.exprs(e.Params)
		c.expr(e.Body)
	case *syntax.Comprehension:
		c.expr(e.Body)
		for _, clause := range e.Clauses {
			switch cl := clause.(type) {
			case *syntax.ForClause:
				c.expr(cl.Vars)
				c.expr(cl.X)
			case *syntax.IfClause:
				c.expr(cl.Cond)
			}
		}
	default:
		c.err = fmt.Errorf("unsupported expression %T", e)
	}
}
