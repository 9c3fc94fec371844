package render

import (
	"math"
	"regexp"
	"strings"

	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
)

var (
	// "60%*3", "60%攻击力×3"
	hitsText = regexp.MustCompile(`^\s*\d+(?:\.\d+)?\s*%\s*([^\d*×xX]*?)\s*[*×xX]\s*\d+\s*$`)
	pctPart  = regexp.MustCompile(`^\s*\d+(?:\.\d+)?\s*%\s*(.*?)\s*$`)
	flatPart = regexp.MustCompile(`^\s*\d+(?:\.\d+)?\s*$`)
	hitsUnit = regexp.MustCompile(`次|段|(?i)\bhits?\b`)
)

// layout is the classified structure of an array table.
type layout struct {
	shape Shape
	// stats holds the stat each percentage component names, "" if none.
	stats []string
}

// classify picks a rendering for an array sample from its text form and
// unit. Table names are never consulted.
func classify(prof *game.Profile, kind plan.Kind, s plan.Sample, text, unit string) layout {
	n := s.Len()
	text = strings.TrimSpace(text)
	if text != "" {
		return classifyText(prof, n, text)
	}
	if n == 2 {
		if hitsUnit.MatchString(unit) && isCount(s.Values[1]) {
			return layout{shape: ShapeHits}
		}
		if kind == plan.KindHeal || kind == plan.KindShield {
			return layout{shape: ShapePctFlat}
		}
	}
	return layout{shape: ShapeFirst}
}

func classifyText(prof *game.Profile, n int, text string) layout {
	if m := hitsText.FindStringSubmatch(text); m != nil && n == 2 {
		return layout{shape: ShapeHits, stats: []string{statOf(prof, m[1])}}
	}
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == '+' || r == '＋' })
	if len(parts) != n || n < 2 {
		return layout{shape: ShapeFirst}
	}
	var stats []string
	pcts := 0
	for i, part := range parts {
		if m := pctPart.FindStringSubmatch(part); m != nil {
			pcts++
			stats = append(stats, statOf(prof, m[1]))
			continue
		}
		if !flatPart.MatchString(part) {
			return layout{shape: ShapeFirst}
		}
		if i == 0 {
			return layout{shape: ShapeFirst}
		}
	}
	switch {
	case n == 2 && pcts == 2 && stats[0] != "" && stats[1] != "" && stats[0] != stats[1]:
		return layout{shape: ShapeTwoStat, stats: stats}
	case pcts == n:
		return layout{shape: ShapeSum, stats: []string{common(stats)}}
	case n == 2 && pcts == 1:
		return layout{shape: ShapePctFlat, stats: stats}
	}
	return layout{shape: ShapeFirst}
}

// statOf maps the words after a percentage to a stat bucket, or "".
func statOf(prof *game.Profile, s string) string {
	if id, ok := prof.NormalizeStat(s); ok {
		return id
	}
	return ""
}

// common returns the stat every component names, or "".
func common(stats []string) string {
	if len(stats) == 0 {
		return ""
	}
	for _, s := range stats[1:] {
		if s != stats[0] {
			return ""
		}
	}
	return stats[0]
}

func isCount(v float64) bool {
	return v == math.Trunc(v) && v >= 1 && v <= 20
}
