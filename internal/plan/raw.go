package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// RawPlan is the untrusted plan as proposed by the model. Fields are read
// lazily and loosely by the validator.
type RawPlan struct {
	root gjson.Result
}

// ParseRaw decodes a model response. Markdown code fences around the JSON
// and a top-level "result" or "plan" wrapper are tolerated.
func ParseRaw(data []byte) (*RawPlan, error) {
	data = stripFence(data)
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: plan must be an object", ErrInvalidJSON)
	}
	for _, wrapper := range []string{"result", "plan"} {
		if inner := root.Get(wrapper); inner.IsObject() && inner.Get("details").Exists() {
			root = inner
			break
		}
	}
	return &RawPlan{root: root}, nil
}

func stripFence(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if !bytes.HasPrefix(data, []byte("```")) {
		return data
	}
	if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
		data = data[nl+1:]
	}
	data = bytes.TrimSuffix(bytes.TrimSpace(data), []byte("```"))
	return bytes.TrimSpace(data)
}

// Get reads a top-level field.
func (r *RawPlan) Get(path string) gjson.Result { return r.root.Get(path) }

// Details returns the raw detail rows.
func (r *RawPlan) Details() []gjson.Result { return arrayOf(r.root.Get("details")) }

// Buffs returns the raw buff rows.
func (r *RawPlan) Buffs() []gjson.Result { return arrayOf(r.root.Get("buffs")) }

func arrayOf(v gjson.Result) []gjson.Result {
	if !v.IsArray() {
		return nil
	}
	return v.Array()
}

type detailJSON struct {
	Title    string            `json:"title"`
	Kind     Kind              `json:"kind"`
	Talent   string            `json:"talent,omitempty"`
	Table    string            `json:"table,omitempty"`
	Reaction string            `json:"reaction,omitempty"`
	Key      *string           `json:"key,omitempty"`
	Ele      string            `json:"ele,omitempty"`
	Stat     string            `json:"stat,omitempty"`
	Pick     *int              `json:"pick,omitempty"`
	Params   map[string]Scalar `json:"params,omitempty"`
	Check    string            `json:"check,omitempty"`
	DmgExpr  string            `json:"dmgExpr,omitempty"`
	Cons     int               `json:"cons,omitempty"`
}

type buffJSON struct {
	Title string         `json:"title"`
	Sort  int            `json:"sort,omitempty"`
	Cons  int            `json:"cons,omitempty"`
	Tree  int            `json:"tree,omitempty"`
	Check string         `json:"check,omitempty"`
	Data  map[string]any `json:"data"`
}

type planJSON struct {
	MainAttr  string            `json:"mainAttr"`
	DefDmgKey string            `json:"defDmgKey,omitempty"`
	DefParams map[string]Scalar `json:"defParams,omitempty"`
	Details   []detailJSON      `json:"details"`
	Buffs     []any             `json:"buffs"`
}

// MarshalJSON encodes s as a JSON primitive.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Type {
	case ScalarBool:
		return json.Marshal(s.Bool)
	case ScalarString:
		return json.Marshal(s.Str)
	default:
		return json.Marshal(s.Num)
	}
}

// Encode renders p as indented JSON in the model's plan shape. Encoding a
// validated plan and validating the result again yields the same plan.
func Encode(p *Plan) ([]byte, error) {
	out := planJSON{
		MainAttr:  p.MainAttr,
		DefDmgKey: p.DefDmgKey,
		DefParams: p.DefParams,
		Details:   make([]detailJSON, 0, len(p.Details)),
		Buffs:     make([]any, 0, len(p.Buffs)),
	}
	for _, d := range p.Details {
		dj := detailJSON{
			Title:   d.Title,
			Kind:    d.Kind,
			Key:     d.Key,
			Ele:     d.Ele,
			Stat:    d.Stat,
			Pick:    d.Pick,
			Params:  d.Params,
			Check:   d.Check.String(),
			DmgExpr: d.DmgExpr.String(),
			Cons:    d.Cons,
		}
		switch src := d.Source.(type) {
		case TableSource:
			dj.Talent, dj.Table = src.Talent, src.Table
		case ReactionSource:
			dj.Reaction = src.ID
		}
		out.Details = append(out.Details, dj)
	}
	for _, b := range p.Buffs {
		if b.Canned != "" {
			out.Buffs = append(out.Buffs, b.Canned)
			continue
		}
		bj := buffJSON{
			Title: b.Title,
			Sort:  b.Sort,
			Cons:  b.Cons,
			Tree:  b.Tree,
			Check: b.Check.String(),
			Data:  make(map[string]any, len(b.Data)),
		}
		for k, v := range b.Data {
			if v.IsLiteral() {
				bj.Data[k] = v.Num
			} else {
				bj.Data[k] = v.Expr.String()
			}
		}
		out.Buffs = append(out.Buffs, bj)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return []byte(strings.TrimRight(buf.String(), "\n")), nil
}
