package resolve

import (
	"regexp"
	"strings"
	"unicode"
)

var widthReplacer = strings.NewReplacer(
	"（", "(", "）", ")", "：", ":", "，", ",", "／", "/", "　", " ", "％", "%", "＋", "+",
)

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	parenSpace = regexp.MustCompile(`\s*([()])\s*`)
)

// NormalizeName folds full-width punctuation and collapses whitespace.
// Spacing around parentheses is dropped, so "X (2)" and "X(2)" match.
func NormalizeName(s string) string {
	s = widthReplacer.Replace(s)
	s = parenSpace.ReplaceAllString(s, "$1")
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(s)
}

var siblingSuffix = regexp.MustCompile(`^(.*?)\s*(?:\(2\)|2)$`)

// StructuredSibling returns the "2"-suffixed variant of name present in
// tables: "X2", "X(2)" or "X (2)".
func StructuredSibling(tables []string, name string) (string, bool) {
	want := NormalizeName(name)
	for _, t := range tables {
		if t == name {
			continue
		}
		base, ok := SiblingBase(t)
		if ok && NormalizeName(base) == want {
			return t, true
		}
	}
	return "", false
}

// SiblingBase strips a structured-variant suffix from name.
func SiblingBase(name string) (string, bool) {
	n := widthReplacer.Replace(strings.TrimSpace(name))
	m := siblingSuffix.FindStringSubmatch(n)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	base := strings.TrimSpace(m[1])
	// "一段伤害2" is a sibling of "一段伤害"; "Hit 12" is not one of "Hit 1".
	last := []rune(base)[len([]rune(base))-1]
	if unicode.IsDigit(last) {
		return "", false
	}
	return base, true
}

var slashUnit = regexp.MustCompile(`(伤害|治疗量|护盾吸收量|倍率|damage|dmg)$`)

// SlashParts splits a multi-variant name such as "一段/二段伤害" into the
// display names of its components. A shared trailing unit is carried onto
// every part. Names without a slash return nil.
func SlashParts(name string) []string {
	n := widthReplacer.Replace(strings.TrimSpace(name))
	if !strings.Contains(n, "/") {
		return nil
	}
	raw := strings.Split(n, "/")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil
		}
		parts = append(parts, p)
	}
	unit := slashUnit.FindString(parts[len(parts)-1])
	if unit != "" {
		for i := 0; i < len(parts)-1; i++ {
			if !strings.HasSuffix(parts[i], unit) {
				parts[i] += unit
			}
		}
	}
	return parts
}

var deltaTokens = []string{
	"倍率提升", "倍率提高", "倍率增加", "伤害倍率提升", "额外倍率",
	"multiplier increase", "multiplier bonus", "dmg multiplier increase",
}

// IsDeltaTable reports whether name denotes an additive increase to another
// table's multiplier rather than a standalone multiplier.
func IsDeltaTable(name string) bool {
	n := NormalizeName(name)
	for _, tok := range deltaTokens {
		if strings.Contains(n, tok) {
			return true
		}
	}
	return false
}

// DeltaStem strips the delta marker, leaving the title tokens used to find
// the base table.
func DeltaStem(name string) string {
	n := NormalizeName(name)
	for _, tok := range deltaTokens {
		n = strings.ReplaceAll(n, tok, "")
	}
	return strings.TrimSpace(n)
}

var (
	healTokens    = []string{"治疗", "回复", "恢复", "生命值回复", "heal", "healing", "regenerat"}
	shieldTokens  = []string{"护盾", "吸收量", "shield"}
	perHitTokens  = []string{"单次", "每段", "每次", "单段", "每跳", "per hit", "per-hit", "single hit"}
	totalTokens   = []string{"总伤害", "合计", "总计", "完整", "total", "full"}
	lowHPPattern  = regexp.MustCompile(`(?i)(生命值(低于|少于|不高于|不足)\s*\d+\s*%|低血|残血|below\s*\d+\s*%\s*hp|low\s*hp)`)
	highHPPattern = regexp.MustCompile(`(?i)(生命值(高于|大于|不低于)\s*\d+\s*%|满血|above\s*\d+\s*%\s*hp|full\s*hp)`)
)

func containsAny(s string, toks []string) bool {
	s = strings.ToLower(s)
	for _, t := range toks {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// IsHealName reports whether a title or table name reads as healing.
func IsHealName(s string) bool { return containsAny(s, healTokens) }

// IsShieldName reports whether a title or table name reads as a shield.
func IsShieldName(s string) bool { return containsAny(s, shieldTokens) }

// IsPerHitTitle reports whether a row title asks for a single hit.
func IsPerHitTitle(s string) bool { return containsAny(s, perHitTokens) }

// IsTotalTitle reports whether a row title asks for an aggregate.
func IsTotalTitle(s string) bool { return containsAny(s, totalTokens) }

// LowHPMarker reports whether a title carries a low-resource threshold.
func LowHPMarker(s string) bool { return lowHPPattern.MatchString(s) }

// HighHPMarker reports whether a title carries a high-resource threshold.
func HighHPMarker(s string) bool { return highHPPattern.MatchString(s) }

var stopTokens = map[string]bool{
	"伤害": true, "damage": true, "dmg": true, "技能": true, "the": true, "of": true,
	"倍率": true, "提升": true, "提高": true, "攻击": true,
}

// Tokens splits s into lowercase word tokens. CJK runs contribute
// overlapping bigrams, so "重击伤害" and "重击" share "重击".
func Tokens(s string) []string {
	s = NormalizeName(s)
	var out []string
	seen := map[string]bool{}
	add := func(tok string) {
		if tok == "" || stopTokens[tok] || seen[tok] {
			return
		}
		seen[tok] = true
		out = append(out, tok)
	}
	var word []rune
	var han []rune
	flushWord := func() {
		add(string(word))
		word = word[:0]
	}
	flushHan := func() {
		switch {
		case len(han) == 1:
			add(string(han))
		case len(han) > 1:
			for i := 0; i+1 < len(han); i++ {
				add(string(han[i : i+2]))
			}
		}
		han = han[:0]
	}
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return out
}

// Overlap counts the tokens a and b share.
func Overlap(a, b string) int {
	tb := map[string]bool{}
	for _, t := range Tokens(b) {
		tb[t] = true
	}
	n := 0
	for _, t := range Tokens(a) {
		if tb[t] {
			n++
		}
	}
	return n
}
