package validate

import (
	"errors"
	"fmt"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
)

// CheckExpr parses src and runs the full acceptance chain for role: safety
// gate, structural checks and table references.
func CheckExpr(src string, role expr.Role, prof *game.Profile, known resolve.Known) (*expr.Expr, error) {
	e, err := expr.ParseChecked(src, kindOf(role))
	if err != nil {
		return nil, err
	}
	if err := checkTail(e.Root, role, prof, known); err != nil {
		return nil, err
	}
	return e, nil
}

// CheckNode runs the same chain on a node built in code. Repair passes call
// it before storing anything they synthesized.
func CheckNode(n expr.Node, role expr.Role, prof *game.Profile, known resolve.Known) error {
	if err := expr.CheckSafety(n, kindOf(role)); err != nil {
		return err
	}
	return checkTail(n, role, prof, known)
}

func checkTail(n expr.Node, role expr.Role, prof *game.Profile, known resolve.Known) error {
	if err := expr.FirstViolation(n, expr.NewScope(role, prof.IsStatBucket)); err != nil {
		return err
	}
	return resolve.Validate(n, known)
}

func kindOf(role expr.Role) expr.Kind {
	if role == expr.RoleGuard {
		return expr.GuardFragment
	}
	return expr.ValueFragment
}

// Describe renders err as a short diagnostic for field, such as
// "detail.dmgExpr uses illegal calc() call".
func Describe(field string, err error) string {
	var v *expr.Violation
	if errors.As(err, &v) {
		switch v.Type {
		case expr.ViolationCalcCall:
			return fmt.Sprintf("%s uses illegal calc() call (%s)", field, v.Detail)
		case expr.ViolationEmitCall:
			return fmt.Sprintf("%s uses illegal emission call (%s)", field, v.Detail)
		case expr.ViolationDenied:
			return fmt.Sprintf("%s uses denied identifier %s", field, v.Detail)
		}
		return fmt.Sprintf("%s: %s", field, v.Detail)
	}
	var se *expr.SyntaxError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s is not a valid expression: %v", field, se)
	}
	return fmt.Sprintf("%s: %v", field, err)
}
