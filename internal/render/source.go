package render

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

var moduleTemplate = template.Must(template.New("module").Parse(`// {{.Banner}}
const toRatio = {{.ToRatio}}

export const details = {{.Details}}

export const defDmgIdx = {{.DefDmgIdx}}
export const defDmgKey = {{.DefDmgKey}}
export const mainAttr = {{.MainAttr}}
export const defParams = {{.DefParams}}

export const buffs = {{.Buffs}}

export const createdBy = {{.CreatedBy}}
`))

// sourceData is the fully printed template input. Every field is already
// target-dialect text.
type sourceData struct {
	Banner    string
	ToRatio   string
	Details   string
	DefDmgIdx int
	DefDmgKey string
	MainAttr  string
	DefParams string
	Buffs     string
	CreatedBy string
}

// contextArgs is the destructuring pattern shared by every closure.
var contextArgs = "{ " + strings.Join(ContextParams, ", ") + " }"

func writeSource(m *Module) (string, error) {
	data := sourceData{
		Banner:    strings.Join(strings.Fields(m.CreatedBy), " "),
		ToRatio:   toRatioSource(m.Scale),
		DefDmgIdx: m.DefDmgIdx,
		DefDmgKey: expr.Quote(m.DefDmgKey),
		MainAttr:  expr.Quote(m.MainAttr),
		DefParams: paramsSource(m.DefParams),
		CreatedBy: expr.Quote(m.CreatedBy),
	}
	var rows []string
	for _, row := range m.Details {
		rows = append(rows, detailSource(row))
	}
	data.Details = list(rows)
	var buffs []string
	for _, b := range m.Buffs {
		buffs = append(buffs, buffSource(b))
	}
	data.Buffs = list(buffs)

	var b strings.Builder
	if err := moduleTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render: module template: %w", err)
	}
	return b.String(), nil
}

// toRatioSource is the one conversion every rendered percentage goes
// through.
func toRatioSource(scale float64) string {
	if scale == 1 {
		return "(v) => v"
	}
	return "(v) => v / " + strconv.FormatFloat(scale, 'f', -1, 64)
}

func list(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	return "[\n  " + strings.Join(items, ",\n  ") + "\n]"
}

// object prints fields one per line at row depth.
func object(fields []string) string {
	return "{\n    " + strings.Join(fields, ",\n    ") + "\n  }"
}

func detailSource(row Row) string {
	fields := []string{"title: " + expr.Quote(row.Title)}
	if row.Talent != "" {
		fields = append(fields, "talent: "+expr.Quote(row.Talent))
	}
	if row.DmgKey != "" {
		fields = append(fields, "dmgKey: "+expr.Quote(row.DmgKey))
	}
	if row.Cons > 0 {
		fields = append(fields, "cons: "+strconv.Itoa(row.Cons))
	}
	if len(row.Params) > 0 {
		fields = append(fields, "params: "+paramsSource(row.Params))
	}
	if row.Check != nil {
		fields = append(fields, "check: "+closure(row.Check.Root, ""))
	}
	fields = append(fields, "dmg: "+closure(row.Dmg.Root, emitArg(row.Kind)))
	return object(fields)
}

// emitArg is the second closure parameter: the emission helper the kind
// is allowed to call.
func emitArg(k plan.Kind) string {
	if h := k.Role().Helper(); h != "dmg" {
		return "{ " + h + " }"
	}
	return "dmg"
}

func buffSource(b BuffRow) string {
	if b.Canned != "" {
		return expr.Quote(b.Canned)
	}
	fields := []string{"title: " + expr.Quote(b.Title)}
	if b.Sort != 0 {
		fields = append(fields, "sort: "+strconv.Itoa(b.Sort))
	}
	if b.Cons > 0 {
		fields = append(fields, "cons: "+strconv.Itoa(b.Cons))
	}
	if b.Tree > 0 {
		fields = append(fields, "tree: "+strconv.Itoa(b.Tree))
	}
	if b.Check != nil {
		fields = append(fields, "check: "+closure(b.Check.Root, ""))
	}
	var data []string
	for _, e := range b.Data {
		v := expr.Print(e.Value.Node())
		if !e.Value.IsLiteral() {
			v = closure(e.Value.Expr.Root, "")
		}
		data = append(data, expr.PropertyKey(e.Key)+": "+v)
	}
	fields = append(fields, "data: {\n      "+strings.Join(data, ",\n      ")+"\n    }")
	return object(fields)
}

// closure prints an arrow function over the runtime context. An object
// body is parenthesized so it does not read as a block.
func closure(body expr.Node, extra string) string {
	args := contextArgs
	if extra != "" {
		args += ", " + extra
	}
	text := expr.Print(body)
	if _, ok := body.(*expr.ObjectLit); ok {
		text = "(" + text + ")"
	}
	return "(" + args + ") => " + text
}

func paramsSource(p plan.Params) string {
	if len(p) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, expr.PropertyKey(k)+": "+expr.Print(p[k].Node()))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}
