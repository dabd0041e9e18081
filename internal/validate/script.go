package validate

import (
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"chimera/internal/api"
)

// Script parses a script body and enforces the structural discipline:
// top-level statements may only be load statements, function definitions,
// and tool bindings (an assignment whose right side is a direct Tool(...)
// call). Every load target, call name, and module.attribute access in the
// whole tree is then checked against the policy.
func Script(body string, policy *Policy) error {
	if policy == nil {
		policy = DefaultPolicy()
	}
	f, err := syntax.Parse("tool.star", body, 0)
	if err != nil {
		return fmt.Errorf("parsing script: %v: %w", err, api.ErrInvalidStructure)
	}
	for _, stmt := range f.Stmts {
		if err := checkTopLevel(stmt); err != nil {
			return err
		}
	}
	return walkPolicy(f, policy)
}

// checkTopLevel rejects any top-level statement that is not part of the
// import-functions-tool shape.
func checkTopLevel(stmt syntax.Stmt) error {
	switch s := stmt.(type) {
	case *syntax.LoadStmt:
		return nil
	case *syntax.DefStmt:
		return nil
	case *syntax.AssignStmt:
		if s.Op != syntax.EQ {
			return topLevelError(stmt, "augmented assignment")
		}
		call, ok := s.RHS.(*syntax.CallExpr)
		if !ok {
			return topLevelError(stmt, "assignment that is not a Tool(...) binding")
		}
		if ident, ok := call.Fn.(*syntax.Ident); !ok || ident.Name != "Tool" {
			return topLevelError(stmt, "assignment that is not a Tool(...) binding")
		}
		return nil
	default:
		return topLevelError(stmt, describeStmt(stmt))
	}
}

func topLevelError(stmt syntax.Stmt, what string) error {
	start, _ := stmt.Span()
	return fmt.Errorf("top-level %s at line %d (only load, def, and name = Tool(...) are allowed): %w",
		what, start.Line, api.ErrInvalidStructure)
}

func describeStmt(stmt syntax.Stmt) string {
	switch stmt.(type) {
	case *syntax.ExprStmt:
		return "expression statement"
	case *syntax.ForStmt:
		return "for loop"
	case *syntax.WhileStmt:
		return "while loop"
	case *syntax.IfStmt:
		return "conditional"
	case *syntax.ReturnStmt:
		return "return statement"
	case *syntax.BranchStmt:
		return "branch statement"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", stmt), "*syntax.")
	}
}

// walkPolicy visits every node in the tree and applies the policy to load
// targets, called names, and dotted attribute access.
func walkPolicy(f *syntax.File, policy *Policy) error {
	var walkErr error
	syntax.Walk(f, func(n syntax.Node) bool {
		if walkErr != nil {
			return false
		}
		switch node := n.(type) {
		case *syntax.LoadStmt:
			module := loadModuleName(node)
			if err := policy.CheckModule(module); err != nil {
				walkErr = atLine(err, n)
			}
		case *syntax.CallExpr:
			if ident, ok := node.Fn.(*syntax.Ident); ok {
				if err := policy.CheckFunction(ident.Name); err != nil {
					walkErr = atLine(err, n)
				}
			}
		case *syntax.DotExpr:
			if base, ok := node.X.(*syntax.Ident); ok {
				if err := policy.CheckAttribute(base.Name + "." + node.Name.Name); err != nil {
					walkErr = atLine(err, n)
				}
			}
		}
		return walkErr == nil
	})
	return walkErr
}

// loadModuleName normalizes a load target: quotes and a .star suffix are
// stripped so policies match plain module names.
func loadModuleName(load *syntax.LoadStmt) string {
	raw, _ := load.Module.Value.(string)
	return strings.TrimSuffix(raw, ".star")
}

func atLine(err error, n syntax.Node) error {
	start, _ := n.Span()
	return fmt.Errorf("line %d: %w", start.Line, err)
}
