package repair

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/logging"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

// builtinRules holds the rule registry baked into the binary.
//
//go:embed rules
var builtinRules embed.FS

// Rules is the text-pattern registry the passes consult. The built-in set
// comes from the embedded rules/ directory; LoadRules may merge one extra
// file on top.
type Rules struct {
	Tiers       TierRules                    `yaml:"tiers"`
	AttackTypes map[string]map[string]string `yaml:"attack_types"`
	Stats       []StatRule                   `yaml:"stats"`
	Negative    []NegativeRule               `yaml:"negative_evidence"`
	HitCounts   []HitRule                    `yaml:"hit_counts"`
	Routing     []RouteRule                  `yaml:"routing"`
	Thresholds  []ThresholdRule              `yaml:"thresholds"`
	Break       BreakRule                    `yaml:"break"`
	Derived     []DerivedRule                `yaml:"derived"`
	Showcases   []Showcase                   `yaml:"showcases"`
}

// TierRules match the tier marker at the start of a buff hint.
type TierRules struct {
	Cons string `yaml:"cons"`
	Tree string `yaml:"tree"`

	cons, tree *regexp.Regexp
}

// StatRule recognizes a mention of one scaling stat.
type StatRule struct {
	ID      string `yaml:"id"`
	Stat    string `yaml:"stat"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// NegativeRule marks a sentence whose stat mentions must not decide the
// scaling stat of rows other than the Except kinds.
type NegativeRule struct {
	ID      string   `yaml:"id"`
	Pattern string   `yaml:"pattern"`
	Except  []string `yaml:"except"`

	re *regexp.Regexp
}

// HitRule reads a hit count. Source is text (table text sample), desc
// (talent description) or hint (tier-marked bonus hits).
type HitRule struct {
	ID      string `yaml:"id"`
	Source  string `yaml:"source"`
	Pattern string `yaml:"pattern"`
	Count   int    `yaml:"count"`

	re *regexp.Regexp
}

// RouteRule detects attack-type conversion. Group 1 captures the target
// attack type; Exclude vetoes the sentence; Rows selects the tables that
// take part in the conversion.
type RouteRule struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
	Exclude string `yaml:"exclude"`
	Rows    string `yaml:"rows"`

	re, exclude, rows *regexp.Regexp
}

// ThresholdRule ties a resource-threshold title marker to a params flag.
type ThresholdRule struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Params  string `yaml:"params"`
	Default string `yaml:"default"`

	title, params *regexp.Regexp
}

// BreakRule recognizes toughness-break ratio tables.
type BreakRule struct {
	Table    string         `yaml:"table"`
	Exclude  string         `yaml:"exclude"`
	Param    string         `yaml:"param"`
	Variants []BreakVariant `yaml:"variants"`

	table, exclude *regexp.Regexp
}

// BreakVariant is one showcase row generated for a break table.
type BreakVariant struct {
	Suffix    string  `yaml:"suffix"`
	Toughness float64 `yaml:"toughness"`
}

// DerivedRule synthesizes one buff-data entry from a hint line.
type DerivedRule struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
	Exclude string `yaml:"exclude"`
	Key     string `yaml:"key"`
	Block   int    `yaml:"block"`
	Value   int    `yaml:"value"`
	Stat    int    `yaml:"stat"`
	Stack   bool   `yaml:"stack"`

	re, exclude *regexp.Regexp
}

// Showcase is a hand-verified row and buff set keyed by a structural
// fingerprint of table names.
type Showcase struct {
	ID          string              `yaml:"id"`
	Game        string              `yaml:"game"`
	Fingerprint map[string][]string `yaml:"fingerprint"`
	MainAttr    string              `yaml:"main_attr"`
	DefDmgKey   string              `yaml:"def_dmg_key"`
	DefParams   map[string]any      `yaml:"def_params"`
	Details     []map[string]any    `yaml:"details"`
	Buffs       []any               `yaml:"buffs"`
}

var stackPattern = regexp.MustCompile(`(?:至多|最多)(?:可)?叠加\s*(\d+)\s*层|(?i)up to (\d+) stacks`)

// DefaultRules returns the embedded registry. It panics if the embedded
// files are broken, which tests catch.
func DefaultRules() *Rules {
	r, err := LoadRules("")
	if err != nil {
		panic(fmt.Sprintf("repair: embedded rules: %v", err))
	}
	return r
}

// LoadRules reads the embedded registry and merges the file at extra when
// it is not empty.
func LoadRules(extra string) (*Rules, error) {
	rules := &Rules{}
	err := fs.WalkDir(builtinRules, "rules", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		data, err := builtinRules.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", p, err)
		}
		part, err := decodeRules(data)
		if err != nil {
			return fmt.Errorf("parse embedded %s: %w", p, err)
		}
		rules.merge(part)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if extra != "" {
		data, err := os.ReadFile(extra)
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		part, err := decodeRules(data)
		if err != nil {
			return nil, fmt.Errorf("parse rules file %s: %w", extra, err)
		}
		rules.merge(part)
		logging.Repair("merged rules from %s", extra)
	}

	if err := rules.compile(); err != nil {
		return nil, err
	}
	return rules, nil
}

func isYAML(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}

func decodeRules(data []byte) (*Rules, error) {
	var r Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) merge(o *Rules) {
	if o.Tiers.Cons != "" {
		r.Tiers.Cons = o.Tiers.Cons
	}
	if o.Tiers.Tree != "" {
		r.Tiers.Tree = o.Tiers.Tree
	}
	for g, words := range o.AttackTypes {
		if r.AttackTypes == nil {
			r.AttackTypes = make(map[string]map[string]string)
		}
		if r.AttackTypes[g] == nil {
			r.AttackTypes[g] = make(map[string]string)
		}
		for w, k := range words {
			r.AttackTypes[g][w] = k
		}
	}
	r.Stats = append(r.Stats, o.Stats...)
	r.Negative = append(r.Negative, o.Negative...)
	r.HitCounts = append(r.HitCounts, o.HitCounts...)
	r.Routing = append(r.Routing, o.Routing...)
	r.Thresholds = append(r.Thresholds, o.Thresholds...)
	if o.Break.Table != "" {
		r.Break = o.Break
	}
	r.Derived = append(r.Derived, o.Derived...)
	r.Showcases = append(r.Showcases, o.Showcases...)
}

func compileOptional(id, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", id, err)
	}
	return re, nil
}

func compileRequired(id, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("rule %s: empty pattern", id)
	}
	return compileOptional(id, pattern)
}

func (r *Rules) compile() error {
	var err error
	if r.Tiers.cons, err = compileRequired("tiers.cons", r.Tiers.Cons); err != nil {
		return err
	}
	if r.Tiers.tree, err = compileOptional("tiers.tree", r.Tiers.Tree); err != nil {
		return err
	}
	for i := range r.Stats {
		s := &r.Stats[i]
		if s.re, err = compileRequired(s.ID, s.Pattern); err != nil {
			return err
		}
	}
	for i := range r.Negative {
		n := &r.Negative[i]
		if n.re, err = compileRequired(n.ID, n.Pattern); err != nil {
			return err
		}
	}
	for i := range r.HitCounts {
		h := &r.HitCounts[i]
		if h.re, err = compileRequired(h.ID, h.Pattern); err != nil {
			return err
		}
		switch h.Source {
		case "text", "desc", "hint":
		default:
			return fmt.Errorf("rule %s: unknown source %q", h.ID, h.Source)
		}
		if h.Count < 1 || h.Count > h.re.NumSubexp() {
			return fmt.Errorf("rule %s: count group %d out of range", h.ID, h.Count)
		}
	}
	for i := range r.Routing {
		rt := &r.Routing[i]
		if rt.re, err = compileRequired(rt.ID, rt.Pattern); err != nil {
			return err
		}
		if rt.exclude, err = compileOptional(rt.ID, rt.Exclude); err != nil {
			return err
		}
		if rt.rows, err = compileOptional(rt.ID, rt.Rows); err != nil {
			return err
		}
	}
	for i := range r.Thresholds {
		t := &r.Thresholds[i]
		if t.title, err = compileRequired(t.ID, t.Title); err != nil {
			return err
		}
		if t.params, err = compileRequired(t.ID, t.Params); err != nil {
			return err
		}
		if t.Default == "" {
			return fmt.Errorf("rule %s: missing default param", t.ID)
		}
	}
	if r.Break.table, err = compileOptional("break.table", r.Break.Table); err != nil {
		return err
	}
	if r.Break.exclude, err = compileOptional("break.exclude", r.Break.Exclude); err != nil {
		return err
	}
	for i := range r.Derived {
		d := &r.Derived[i]
		if d.re, err = compileRequired(d.ID, d.Pattern); err != nil {
			return err
		}
		if d.exclude, err = compileOptional(d.ID, d.Exclude); err != nil {
			return err
		}
		n := d.re.NumSubexp()
		if d.Key == "" || d.Value < 1 || d.Value > n || d.Block > n || d.Stat > n {
			return fmt.Errorf("rule %s: bad key or group indexes", d.ID)
		}
		if strings.Contains(d.Key, "{block}") && d.Block == 0 {
			return fmt.Errorf("rule %s: key uses {block} without a block group", d.ID)
		}
	}
	seen := make(map[string]bool)
	for _, s := range r.Showcases {
		if s.ID == "" || seen[s.ID] {
			return fmt.Errorf("showcase %q: missing or duplicate id", s.ID)
		}
		seen[s.ID] = true
		if _, err := game.Parse(s.Game); err != nil {
			return fmt.Errorf("showcase %s: %w", s.ID, err)
		}
		if len(s.Fingerprint) == 0 {
			return fmt.Errorf("showcase %s: empty fingerprint", s.ID)
		}
	}
	return nil
}

// IDs lists every rule id grouped by section, for the rules command.
func (r *Rules) IDs() map[string][]string {
	out := make(map[string][]string)
	for _, s := range r.Stats {
		out["stats"] = append(out["stats"], s.ID)
	}
	for _, n := range r.Negative {
		out["negative_evidence"] = append(out["negative_evidence"], n.ID)
	}
	for _, h := range r.HitCounts {
		out["hit_counts"] = append(out["hit_counts"], h.ID)
	}
	for _, rt := range r.Routing {
		out["routing"] = append(out["routing"], rt.ID)
	}
	for _, t := range r.Thresholds {
		out["thresholds"] = append(out["thresholds"], t.ID)
	}
	for _, d := range r.Derived {
		out["derived"] = append(out["derived"], d.ID)
	}
	for _, s := range r.Showcases {
		out["showcases"] = append(out["showcases"], s.ID)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}

// attackKey maps an attack-type word to the game's bucket tag.
func (r *Rules) attackKey(g game.Game, word string) (string, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	word = strings.TrimSuffix(word, "s")
	k, ok := r.AttackTypes[string(g)][word]
	return k, ok
}

// tier splits a hint into its tier marker and the remaining text. A hint
// without a marker returns ok=false.
func (r *Rules) tier(hint string) (cons, tree int, text string, ok bool) {
	if m := r.Tiers.cons.FindStringSubmatchIndex(hint); m != nil {
		cons, _ = strconv.Atoi(hint[m[2]:m[3]])
		return cons, 0, strings.TrimSpace(hint[m[1]:]), true
	}
	if r.Tiers.tree != nil {
		if m := r.Tiers.tree.FindStringSubmatchIndex(hint); m != nil {
			tree, _ = strconv.Atoi(hint[m[2]:m[3]])
			return 0, tree, strings.TrimSpace(hint[m[1]:]), true
		}
	}
	return 0, 0, hint, false
}

// stackCount returns the max stack count stated in s, or 1.
func stackCount(s string) float64 {
	m := stackPattern.FindStringSubmatch(s)
	if m == nil {
		return 1
	}
	for _, g := range m[1:] {
		if n, err := strconv.Atoi(g); err == nil && n > 0 {
			return float64(n)
		}
	}
	return 1
}

var cnDigits = map[string]int{
	"一": 1, "二": 2, "两": 2, "三": 3, "四": 4, "五": 5, "六": 6, "七": 7, "八": 8, "九": 9, "十": 10,
}

// parseCount reads an arabic or single CN numeral.
func parseCount(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}
	n, ok := cnDigits[s]
	return n, ok
}

// raw renders the showcase as a model-shaped plan document so it goes
// through the same validator as everything else.
func (s *Showcase) raw(fallbackMainAttr string) (*plan.RawPlan, error) {
	doc := map[string]any{
		"mainAttr":  s.MainAttr,
		"defDmgKey": s.DefDmgKey,
		"details":   s.Details,
		"buffs":     s.Buffs,
	}
	if s.MainAttr == "" {
		doc["mainAttr"] = fallbackMainAttr
	}
	if len(s.DefParams) > 0 {
		doc["defParams"] = s.DefParams
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode showcase %s: %w", s.ID, err)
	}
	return plan.ParseRaw(data)
}

// matches reports whether every fingerprint table exists in in.
func (s *Showcase) matches(in *plan.Input) bool {
	if string(in.Game) != s.Game {
		g, err := game.Parse(s.Game)
		if err != nil || g != in.Game {
			return false
		}
	}
	known := in.Known()
	for block, tables := range s.Fingerprint {
		for _, t := range tables {
			if !known.Has(block, t) {
				return false
			}
		}
	}
	return true
}
