package expr

import (
	"fmt"
	"strings"
)

// Kind selects the fragment class a source string is checked as.
type Kind int

const (
	// GuardFragment is a boolean condition.
	GuardFragment Kind = iota
	// ValueFragment produces a number or an object.
	ValueFragment
)

func (k Kind) String() string {
	if k == GuardFragment {
		return "guard"
	}
	return "value"
}

// ViolationType categorizes structural problems in a fragment.
type ViolationType int

const (
	ViolationDenied ViolationType = iota
	ViolationUnexposedField
	ViolationUnknownIdent
	ViolationHelperMember
	ViolationDottedTable
	ViolationParamsKey
	ViolationCalcCall
	ViolationEmitCall
	ViolationIllegalCall
	ViolationMathMember
	ViolationDmgMember
	ViolationLiteral
)

func (v ViolationType) String() string {
	switch v {
	case ViolationDenied:
		return "denied_identifier"
	case ViolationUnexposedField:
		return "unexposed_field"
	case ViolationUnknownIdent:
		return "unknown_identifier"
	case ViolationHelperMember:
		return "helper_member"
	case ViolationDottedTable:
		return "dotted_table"
	case ViolationParamsKey:
		return "params_key"
	case ViolationCalcCall:
		return "illegal_calc"
	case ViolationEmitCall:
		return "illegal_emit"
	case ViolationIllegalCall:
		return "illegal_call"
	case ViolationMathMember:
		return "math_member"
	case ViolationDmgMember:
		return "dmg_member"
	case ViolationLiteral:
		return "literal_in_guard"
	default:
		return "unknown"
	}
}

// Violation is a single rejected construct.
type Violation struct {
	Type   ViolationType
	Pos    int
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", v.Type, v.Pos, v.Detail)
}

var deniedNames = toSet(
	"process", "eval", "globalThis", "window", "global", "Function",
	"constructor", "__proto__", "prototype", "import", "require", "module",
	"exports", "class", "new", "function", "this", "for", "while", "do", "try",
	"catch", "throw", "return", "var", "let", "const", "delete", "async",
	"await", "yield", "with", "typeof", "instanceof", "void", "debugger",
	"arguments", "Reflect", "Proxy", "setTimeout", "setInterval",
)

// contextFields are the runtime fields every closure receives.
var contextFields = toSet("talent", "attr", "calc", "params", "cons", "weapon", "trees", "element")

// unexposedFields look like runtime context but are never passed in.
var unexposedFields = toSet(
	"char", "character", "meta", "state", "stats", "enemy", "level", "options",
	"currentTalent", "artis", "weaponName", "buff", "buffs", "detail", "details",
	"talents", "skill", "skills", "attrs", "ctx", "context", "target", "self",
)

// callOnly helpers are plain functions; member access on them is a mistake.
var callOnly = toSet("calc", "heal", "shield", "reaction", "toRatio")

var mathMembers = toSet(
	"min", "max", "abs", "floor", "ceil", "round", "trunc", "sign", "sqrt",
	"pow", "log", "exp", "PI", "E",
)

var mathConstants = toSet("PI", "E")

// DmgModes are the sub-functions of the damage emission helper.
var dmgModes = toSet("basic", "ratio", "dynamic")

// Role names the closure a fragment is rendered into. It decides which
// emission helper is in scope.
type Role int

const (
	RoleGuard Role = iota
	RoleBuff
	RoleDamage
	RoleHeal
	RoleShield
	RoleReaction
)

// Helper returns the emission helper name available to the role, or "".
func (r Role) Helper() string {
	switch r {
	case RoleDamage:
		return "dmg"
	case RoleHeal:
		return "heal"
	case RoleShield:
		return "shield"
	case RoleReaction:
		return "reaction"
	}
	return ""
}

// Scope is the set of identifiers a fragment may reference.
type Scope struct {
	Role Role
	// StatBucket reports whether attr.<name> may be passed to calc().
	StatBucket func(string) bool
}

// NewScope builds a scope for role using the game's stat-bucket vocabulary.
func NewScope(role Role, statBucket func(string) bool) Scope {
	return Scope{Role: role, StatBucket: statBucket}
}

func (s Scope) allows(name string) bool {
	if contextFields[name] || name == "Math" || name == "toRatio" {
		return true
	}
	h := s.Role.Helper()
	return h != "" && name == h
}

// CheckSafety is the boolean safety gate: it rejects denylisted names and,
// for guards, object and array literals. Lexer-level rejections have already
// happened by the time a Node exists.
func CheckSafety(n Node, kind Kind) error {
	var err error
	Walk(n, func(n Node) bool {
		if err != nil {
			return false
		}
		switch v := n.(type) {
		case *Ident:
			if deniedNames[v.Name] {
				err = &Violation{Type: ViolationDenied, Pos: v.At, Detail: v.Name}
			}
		case *Member:
			if deniedNames[v.Name] {
				err = &Violation{Type: ViolationDenied, Pos: v.At, Detail: v.Name}
			}
		case *Index:
			if s, ok := v.Index.(*StringLit); ok && deniedNames[s.Value] {
				err = &Violation{Type: ViolationDenied, Pos: v.At, Detail: s.Value}
			}
		case *ObjectLit:
			if kind == GuardFragment {
				err = &Violation{Type: ViolationLiteral, Pos: v.At, Detail: "object literal"}
			}
			for _, f := range v.Fields {
				if deniedNames[f.Key] {
					err = &Violation{Type: ViolationDenied, Pos: v.At, Detail: f.Key}
				}
			}
		case *Array:
			if kind == GuardFragment {
				err = &Violation{Type: ViolationLiteral, Pos: v.At, Detail: "array literal"}
			}
		}
		return err == nil
	})
	return err
}

// ParseChecked parses src and runs the safety gate for kind.
func ParseChecked(src string, kind Kind) (*Expr, error) {
	n, err := ParseNode(strings.TrimSpace(src))
	if err != nil {
		return nil, err
	}
	if err := CheckSafety(n, kind); err != nil {
		return nil, err
	}
	return New(n), nil
}

// IsSafeGuardExpr reports whether s passes the guard safety gate.
func IsSafeGuardExpr(s string) bool {
	_, err := ParseChecked(s, GuardFragment)
	return err == nil
}

// IsSafeValueExpr reports whether s passes the value safety gate.
func IsSafeValueExpr(s string) bool {
	_, err := ParseChecked(s, ValueFragment)
	return err == nil
}

// CheckStructure runs the structural checks that sit on top of the safety
// gate. It returns every violation found, in source order.
func CheckStructure(n Node, scope Scope) []*Violation {
	c := &structChecker{scope: scope}
	c.visit(n)
	return c.out
}

// FirstViolation is CheckStructure returning only the first problem.
func FirstViolation(n Node, scope Scope) error {
	if vs := CheckStructure(n, scope); len(vs) > 0 {
		return vs[0]
	}
	return nil
}

type structChecker struct {
	scope Scope
	out   []*Violation
}

func (c *structChecker) add(t ViolationType, pos int, format string, args ...any) {
	c.out = append(c.out, &Violation{Type: t, Pos: pos, Detail: fmt.Sprintf(format, args...)})
}

func (c *structChecker) visit(n Node) {
	switch v := n.(type) {
	case nil:
	case *Ident:
		c.ident(v)
	case *Member:
		c.member(v)
	case *Index:
		c.index(v)
	case *Call:
		c.call(v)
	case *Unary:
		c.visit(v.X)
	case *Binary:
		c.visit(v.X)
		c.visit(v.Y)
	case *Cond:
		c.visit(v.Test)
		c.visit(v.Then)
		c.visit(v.Else)
	case *ObjectLit:
		for _, f := range v.Fields {
			c.visit(f.Value)
		}
	case *Array:
		for _, e := range v.Elems {
			c.visit(e)
		}
	}
}

func (c *structChecker) ident(v *Ident) {
	switch {
	case c.scope.allows(v.Name):
	case unexposedFields[v.Name]:
		c.add(ViolationUnexposedField, v.At, "%s is not a runtime field", v.Name)
	default:
		c.add(ViolationUnknownIdent, v.At, "unknown identifier %s", v.Name)
	}
}

func (c *structChecker) member(v *Member) {
	if id, ok := v.X.(*Ident); ok {
		switch {
		case callOnly[id.Name] && c.scope.allows(id.Name):
			c.add(ViolationHelperMember, v.At, "%s is a function, %s.%s is not defined", id.Name, id.Name, v.Name)
			return
		case id.Name == "Math":
			if !mathMembers[v.Name] {
				c.add(ViolationMathMember, v.At, "Math.%s is not allowed", v.Name)
			}
			return
		case id.Name == "dmg" && c.scope.allows("dmg"):
			if !dmgModes[v.Name] {
				c.add(ViolationDmgMember, v.At, "dmg.%s is not an emission mode", v.Name)
			}
			return
		case id.Name == "params":
			if !IsASCIIIdent(v.Name) {
				c.add(ViolationParamsKey, v.At, "params key %q is not ASCII", v.Name)
			}
			return
		}
	}
	// talent.<block>.<name> is a hallucinated field: tables are only
	// reachable by string key.
	if inner, ok := v.X.(*Member); ok {
		if id, ok := inner.X.(*Ident); ok && id.Name == "talent" {
			c.add(ViolationDottedTable, v.At, "talent.%s.%s must use bracket access", inner.Name, v.Name)
			return
		}
	}
	c.visit(v.X)
}

func (c *structChecker) index(v *Index) {
	if id, ok := v.X.(*Ident); ok && id.Name == "params" {
		s, ok := v.Index.(*StringLit)
		switch {
		case !ok:
			c.add(ViolationParamsKey, v.At, "params key must be a literal")
		case !IsASCIIIdent(s.Value):
			c.add(ViolationParamsKey, v.At, "params key %q is not ASCII", s.Value)
		}
		return
	}
	c.visit(v.X)
	c.visit(v.Index)
}

func (c *structChecker) call(v *Call) {
	switch fn := v.Fn.(type) {
	case *Ident:
		if !c.scope.allows(fn.Name) {
			c.ident(fn)
			c.args(v.Args)
			return
		}
		switch fn.Name {
		case "calc":
			c.calc(v)
			return
		case "toRatio":
			if len(v.Args) != 1 {
				c.add(ViolationIllegalCall, v.At, "toRatio takes one argument, got %d", len(v.Args))
			}
		case "dmg":
			c.emit(v, "dmg")
		case "heal", "shield", "reaction":
			if len(v.Args) < 1 || len(v.Args) > 2 {
				c.add(ViolationEmitCall, v.At, "%s takes one argument, got %d", fn.Name, len(v.Args))
			}
		default:
			c.add(ViolationIllegalCall, v.At, "%s is not callable", fn.Name)
		}
	case *Member:
		id, ok := fn.X.(*Ident)
		switch {
		case ok && id.Name == "Math":
			c.member(fn)
			if mathConstants[fn.Name] {
				c.add(ViolationIllegalCall, v.At, "Math.%s is not callable", fn.Name)
			}
		case ok && id.Name == "dmg" && c.scope.allows("dmg"):
			c.member(fn)
			c.emit(v, "dmg."+fn.Name)
		default:
			c.visit(fn)
			c.add(ViolationIllegalCall, v.At, "%s is not callable", Print(fn))
		}
	default:
		c.visit(fn)
		c.add(ViolationIllegalCall, v.At, "%s is not callable", Print(fn))
	}
	c.args(v.Args)
}

func (c *structChecker) args(args []Node) {
	for _, a := range args {
		c.visit(a)
	}
}

// calc accepts exactly calc(attr.<bucket>).
func (c *structChecker) calc(v *Call) {
	if len(v.Args) != 1 {
		c.add(ViolationCalcCall, v.At, "calc() takes one argument, got %d", len(v.Args))
		c.args(v.Args)
		return
	}
	m, ok := v.Args[0].(*Member)
	if !ok {
		c.add(ViolationCalcCall, v.At, "calc() argument must be attr.<stat>, got %s", Print(v.Args[0]))
		return
	}
	if id, ok := m.X.(*Ident); !ok || id.Name != "attr" {
		c.add(ViolationCalcCall, v.At, "calc() argument must be attr.<stat>, got %s", Print(v.Args[0]))
		return
	}
	if c.scope.StatBucket != nil && !c.scope.StatBucket(m.Name) {
		c.add(ViolationCalcCall, v.At, "calc() stat %q is not a stat bucket", m.Name)
	}
}

func (c *structChecker) emit(v *Call, name string) {
	if len(v.Args) == 0 || len(v.Args) > 3 {
		c.add(ViolationEmitCall, v.At, "%s takes 1 to 3 arguments, got %d", name, len(v.Args))
		return
	}
	for i := 1; i < len(v.Args); i++ {
		switch v.Args[i].(type) {
		case *ObjectLit, *Array:
			c.add(ViolationEmitCall, v.At, "%s argument %d must not be a literal object or array", name, i+1)
		}
	}
}

// IsEmission reports whether n is a call to the role's emission helper or
// a dmg sub-mode.
func IsEmission(n Node, role Role) bool {
	call, ok := n.(*Call)
	if !ok {
		return false
	}
	h := role.Helper()
	switch fn := call.Fn.(type) {
	case *Ident:
		return h != "" && fn.Name == h
	case *Member:
		id, ok := fn.X.(*Ident)
		return ok && h == "dmg" && id.Name == "dmg" && dmgModes[fn.Name]
	}
	return false
}

// IsResultShape reports whether a dmgExpr produces a structured result: an
// emission call, an object literal carrying dmg and avg, or a ternary whose
// arms both qualify.
func IsResultShape(n Node, role Role) bool {
	switch v := n.(type) {
	case *Cond:
		return IsResultShape(v.Then, role) && IsResultShape(v.Else, role)
	case *ObjectLit:
		var hasDmg, hasAvg bool
		for _, f := range v.Fields {
			hasDmg = hasDmg || f.Key == "dmg"
			hasAvg = hasAvg || f.Key == "avg"
		}
		return hasDmg && hasAvg
	}
	return IsEmission(n, role)
}

func toSet(items ...string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
