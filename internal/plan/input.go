package plan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
)

// ErrInvalidJSON is returned for input that is not a JSON object.
var ErrInvalidJSON = errors.New("invalid json")

// Sample is a table's sample value: a scalar or an array of components.
type Sample struct {
	Values  []float64
	IsArray bool
}

// ScalarSample builds a scalar sample.
func ScalarSample(f float64) Sample { return Sample{Values: []float64{f}} }

// ArraySample builds an array sample.
func ArraySample(fs ...float64) Sample { return Sample{Values: fs, IsArray: true} }

// Len is the number of components; scalars have one.
func (s Sample) Len() int { return len(s.Values) }

// First returns the first component, or 0.
func (s Sample) First() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	return s.Values[0]
}

// Input is the immutable per-character context.
type Input struct {
	Game             game.Game
	Elem             string
	Tables           map[string][]string
	TableUnits       map[string]map[string]string
	TableSamples     map[string]map[string]Sample
	TableTextSamples map[string]map[string]string
	TalentDesc       map[string]string
	BuffHints        []string
	Upstream         bool
	UpstreamDirect   bool
}

// Trusted reports whether the plan came from a trusted upstream source.
func (in *Input) Trusted() bool { return in.Upstream || in.UpstreamDirect }

// Known returns the table set for reference validation.
func (in *Input) Known() resolve.Known { return resolve.Known(in.Tables) }

// Profile returns the game profile.
func (in *Input) Profile() *game.Profile { return game.For(in.Game) }

// Sample looks up a table's sample value.
func (in *Input) Sample(block, table string) (Sample, bool) {
	s, ok := in.TableSamples[block][table]
	return s, ok
}

// Unit returns a table's unit label.
func (in *Input) Unit(block, table string) string { return in.TableUnits[block][table] }

// TextSample returns a table's human-readable sample.
func (in *Input) TextSample(block, table string) string {
	return in.TableTextSamples[block][table]
}

// Desc returns the description of a talent block.
func (in *Input) Desc(block string) string { return in.TalentDesc[block] }

// AllText joins every description and hint, for whole-kit pattern scans.
func (in *Input) AllText() string {
	var b strings.Builder
	for _, block := range in.Known().Blocks() {
		b.WriteString(in.TalentDesc[block])
		b.WriteByte('\n')
	}
	for _, h := range in.BuffHints {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseInput decodes a CalcSuggestInput document. Auxiliary hint maps are
// decoded leniently; only game and tables are required.
func ParseInput(data []byte) (*Input, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: input must be an object", ErrInvalidJSON)
	}
	g, err := game.Parse(root.Get("game").String())
	if err != nil {
		return nil, err
	}
	in := &Input{
		Game:             g,
		Elem:             strings.TrimSpace(root.Get("elem").String()),
		Tables:           make(map[string][]string),
		TableUnits:       stringMaps(root.Get("tableUnits")),
		TableSamples:     make(map[string]map[string]Sample),
		TableTextSamples: stringMaps(root.Get("tableTextSamples")),
		TalentDesc:       make(map[string]string),
	}
	root.Get("tables").ForEach(func(block, list gjson.Result) bool {
		var names []string
		list.ForEach(func(_, name gjson.Result) bool {
			if s := strings.TrimSpace(name.String()); s != "" && name.Type == gjson.String {
				names = append(names, s)
			}
			return true
		})
		key := blockKey(block)
		in.Tables[key] = append(in.Tables[key], names...)
		return true
	})
	if len(in.Tables) == 0 {
		return nil, errors.New("input has no tables")
	}
	root.Get("tableSamples").ForEach(func(block, tables gjson.Result) bool {
		m := make(map[string]Sample)
		tables.ForEach(func(name, v gjson.Result) bool {
			if s, ok := parseSample(v); ok {
				m[name.String()] = s
			}
			return true
		})
		key := blockKey(block)
		if in.TableSamples[key] == nil {
			in.TableSamples[key] = m
			return true
		}
		for name, sample := range m {
			in.TableSamples[key][name] = sample
		}
		return true
	})
	root.Get("talentDesc").ForEach(func(block, v gjson.Result) bool {
		in.TalentDesc[blockKey(block)] = flattenText(v)
		return true
	})
	hints := root.Get("buffHints")
	switch {
	case hints.IsArray():
		hints.ForEach(func(_, h gjson.Result) bool {
			if s := strings.TrimSpace(h.String()); s != "" {
				in.BuffHints = append(in.BuffHints, s)
			}
			return true
		})
	case hints.Type == gjson.String:
		for _, line := range strings.Split(hints.String(), "\n") {
			if s := strings.TrimSpace(line); s != "" {
				in.BuffHints = append(in.BuffHints, s)
			}
		}
	}
	in.Upstream = truthy(root.Get("upstream"))
	in.UpstreamDirect = truthy(root.Get("upstreamDirect"))
	return in, nil
}

// blockKey folds a talent block key to the lowercase form plans use.
func blockKey(block gjson.Result) string {
	return strings.ToLower(strings.TrimSpace(block.String()))
}

// parseSample accepts a number, a numeric string, or an array of either.
func parseSample(v gjson.Result) (Sample, bool) {
	if v.IsArray() {
		var vals []float64
		ok := true
		v.ForEach(func(_, item gjson.Result) bool {
			f, good := number(item)
			if !good {
				ok = false
				return false
			}
			vals = append(vals, f)
			return true
		})
		if !ok || len(vals) == 0 {
			return Sample{}, false
		}
		return ArraySample(vals...), true
	}
	f, ok := number(v)
	if !ok {
		return Sample{}, false
	}
	return ScalarSample(f), true
}

func number(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		s := strings.TrimSuffix(strings.TrimSpace(v.String()), "%")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// truthy treats a non-empty object or array, true, a non-zero number, or a
// non-empty string as set.
func truthy(v gjson.Result) bool {
	switch {
	case !v.Exists():
		return false
	case v.IsObject():
		return len(v.Map()) > 0
	case v.IsArray():
		return len(v.Array()) > 0
	case v.Type == gjson.True:
		return true
	case v.Type == gjson.Number:
		return v.Float() != 0
	case v.Type == gjson.String:
		s := strings.ToLower(strings.TrimSpace(v.String()))
		return s != "" && s != "false" && s != "0"
	}
	return false
}

func stringMaps(v gjson.Result) map[string]map[string]string {
	out := make(map[string]map[string]string)
	v.ForEach(func(block, tables gjson.Result) bool {
		m := make(map[string]string)
		tables.ForEach(func(name, s gjson.Result) bool {
			if s.Type == gjson.String || s.Type == gjson.Number {
				m[name.String()] = s.String()
			}
			return true
		})
		key := blockKey(block)
		if out[key] == nil {
			out[key] = m
			return true
		}
		for name, v := range m {
			out[key][name] = v
		}
		return true
	})
	return out
}

// flattenText joins a description given as a string or a list of lines.
func flattenText(v gjson.Result) string {
	if !v.IsArray() {
		return v.String()
	}
	var lines []string
	v.ForEach(func(_, line gjson.Result) bool {
		lines = append(lines, line.String())
		return true
	})
	return strings.Join(lines, "\n")
}
