// Package game holds the per-game vocabularies the calc pipeline validates
// against: talent blocks, reaction identifiers, element tags, buff-data keys,
// stat buckets and the table percentage scale.
package game

import (
	"fmt"
	"sort"
	"strings"
)

// Game identifies one of the two supported games.
type Game string

const (
	Genshin  Game = "gs"
	StarRail Game = "sr"
)

// Parse accepts the canonical ids plus the long names used by upstream data.
func Parse(s string) (Game, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gs", "genshin":
		return Genshin, nil
	case "sr", "starrail", "star-rail", "hsr":
		return StarRail, nil
	default:
		return "", fmt.Errorf("unsupported game %q", s)
	}
}

func (g Game) String() string { return string(g) }

// KeyClass groups buff-data keys by how their values are bounded and repaired.
type KeyClass int

const (
	KeyOther KeyClass = iota
	KeyCrit           // crit rate: realistic percentage range
	KeyShred          // resistance shred / defense ignore: never negative
	KeyPercent        // percentage bonus
	KeyFlat           // absolute additive value
)

func (c KeyClass) String() string {
	switch c {
	case KeyCrit:
		return "crit"
	case KeyShred:
		return "shred"
	case KeyPercent:
		return "percent"
	case KeyFlat:
		return "flat"
	default:
		return "other"
	}
}

// Profile is the immutable vocabulary of one game.
type Profile struct {
	Game Game

	// Blocks lists the talent block keys in display order.
	Blocks []string

	// PercentScale is 100 when tables store percentage points and 1 when
	// they already store fractions.
	PercentScale float64

	// TierMarker is the character used in buff hints for the cons axis.
	TierMarker string

	blocks         map[string]bool
	reactions      map[string]string
	transformative map[string]bool
	amplifying     map[string]bool
	elements       map[string]bool
	buffKeys       map[string]bool
	keyPrefixes    []string
	dmgKeys        map[string]bool
	statBuckets    map[string]bool
	mainAttrs      map[string]bool
}

// For returns the profile for g. Unknown games panic; callers parse first.
func For(g Game) *Profile {
	switch g {
	case Genshin:
		return genshinProfile
	case StarRail:
		return starRailProfile
	}
	panic(fmt.Sprintf("game: no profile for %q", g))
}

// HasBlock reports whether b is a talent block key for this game.
func (p *Profile) HasBlock(b string) bool { return p.blocks[b] }

// CanonicalReaction maps a reaction name or synonym to its canonical id.
func (p *Profile) CanonicalReaction(s string) (string, bool) {
	id, ok := p.reactions[normalizeReaction(s)]
	return id, ok
}

// IsTransformative reports whether id can stand alone as a reaction row.
func (p *Profile) IsTransformative(id string) bool { return p.transformative[id] }

// IsAmplifying reports whether id is a reaction that tags a damage row.
func (p *Profile) IsAmplifying(id string) bool { return p.amplifying[id] }

// ValidElement reports whether s may be used as a damage row element tag.
func (p *Profile) ValidElement(s string) bool { return p.elements[s] }

// IsBuffKey reports whether k is on the buff-data allow-list.
func (p *Profile) IsBuffKey(k string) bool { return p.buffKeys[k] }

// BuffKeys returns the sorted allow-list.
func (p *Profile) BuffKeys() []string {
	keys := make([]string, 0, len(p.buffKeys))
	for k := range p.buffKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsStatBucket reports whether attr.<b> may be passed to calc().
func (p *Profile) IsStatBucket(b string) bool { return p.statBuckets[b] }

// IsMainAttr reports whether a is a valid mainAttr token.
func (p *Profile) IsMainAttr(a string) bool { return p.mainAttrs[a] }

// IsDmgKey reports whether k is a bucket tag that buff-data keys can be
// prefixed with, such as "e" or "a2".
func (p *Profile) IsDmgKey(k string) bool { return p.dmgKeys[k] }

// ToRatio converts a raw table value to a multiplier.
func (p *Profile) ToRatio(v float64) float64 { return v / p.PercentScale }

// SplitKey splits a prefixed buff-data key such as "a2Dmg" into its block
// prefix and suffix. Unprefixed keys return an empty block.
func (p *Profile) SplitKey(k string) (block, suffix string) {
	for _, prefix := range p.keyPrefixes {
		if !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			continue
		}
		rest := k[len(prefix):]
		if rest[0] >= 'A' && rest[0] <= 'Z' {
			return prefix, rest
		}
	}
	return "", k
}

// ClassifyKey returns the bounding class of a buff-data key.
func (p *Profile) ClassifyKey(k string) KeyClass {
	_, suffix := p.SplitKey(k)
	switch suffix {
	case "cpct", "Cpct":
		return KeyCrit
	case "kx", "Kx", "enemyDef", "Def", "ignore", "Ignore":
		return KeyShred
	case "Plus", "Base", "mastery", "fyplus", "fybase", "speedPlus",
		"atkPlus", "atkBase", "hpPlus", "hpBase", "defPlus", "defBase":
		return KeyFlat
	}
	if p.amplifying[k] || p.transformative[k] {
		return KeyPercent
	}
	switch {
	case strings.HasSuffix(suffix, "Pct"), strings.HasSuffix(suffix, "Dmg"),
		strings.HasSuffix(suffix, "dmg"), strings.HasSuffix(suffix, "Cdmg"),
		strings.HasSuffix(suffix, "Inc"), strings.HasSuffix(suffix, "Multi"),
		strings.HasSuffix(suffix, "Enemydmg"):
		return KeyPercent
	}
	switch suffix {
	case "dmg", "cdmg", "recharge", "phy", "heal", "shield", "stance",
		"effPct", "effDef", "fypct", "fyinc", "enemydmg":
		return KeyPercent
	}
	return KeyOther
}

func normalizeReaction(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
	return s
}

type reactionSpec struct {
	id      string
	amplify bool
	aliases []string
}

func buildProfile(p *Profile, reactions []reactionSpec, elements, baseKeys, prefixes, suffixes, buckets, mainAttrs []string) *Profile {
	p.blocks = toSet(p.Blocks)
	p.reactions = make(map[string]string)
	p.transformative = make(map[string]bool)
	p.amplifying = make(map[string]bool)
	for _, r := range reactions {
		p.reactions[normalizeReaction(r.id)] = r.id
		for _, alias := range r.aliases {
			p.reactions[normalizeReaction(alias)] = r.id
		}
		if r.amplify {
			p.amplifying[r.id] = true
		} else {
			p.transformative[r.id] = true
		}
	}
	p.elements = toSet(elements)
	p.buffKeys = toSet(baseKeys)
	for _, prefix := range prefixes {
		for _, suffix := range suffixes {
			p.buffKeys[prefix+suffix] = true
		}
	}
	p.dmgKeys = toSet(prefixes)
	// Longest prefix first so "a2Dmg" never splits as "a" + "2Dmg".
	p.keyPrefixes = append([]string(nil), prefixes...)
	sort.Slice(p.keyPrefixes, func(i, j int) bool {
		if len(p.keyPrefixes[i]) != len(p.keyPrefixes[j]) {
			return len(p.keyPrefixes[i]) > len(p.keyPrefixes[j])
		}
		return p.keyPrefixes[i] < p.keyPrefixes[j]
	})
	p.statBuckets = toSet(buckets)
	p.mainAttrs = toSet(mainAttrs)
	return p
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

var statAliases = map[string]string{
	"atk": "atk", "attack": "atk", "攻击": "atk", "攻击力": "atk",
	"hp": "hp", "health": "hp", "生命": "hp", "生命值": "hp", "生命上限": "hp", "生命值上限": "hp", "最大生命值": "hp",
	"def": "def", "defense": "def", "defence": "def", "防御": "def", "防御力": "def",
	"mastery": "mastery", "em": "mastery", "elementalmastery": "mastery", "元素精通": "mastery", "精通": "mastery",
	"recharge": "recharge", "er": "recharge", "energyrecharge": "recharge", "元素充能效率": "recharge", "能量恢复效率": "recharge",
	"speed": "speed", "spd": "speed", "速度": "speed",
	"stance": "stance", "breakeffect": "stance", "击破特攻": "stance",
	"effpct": "effPct", "effecthitrate": "effPct", "效果命中": "effPct",
	"effdef": "effDef", "effectres": "effDef", "效果抵抗": "effDef",
	"cpct": "cpct", "crit": "cpct", "critrate": "cpct", "暴击": "cpct", "暴击率": "cpct",
	"cdmg": "cdmg", "critdmg": "cdmg", "暴击伤害": "cdmg",
	"dmg": "dmg", "dmgbonus": "dmg", "伤害加成": "dmg",
	"phy": "phy", "物理伤害加成": "phy",
	"heal": "heal", "healing": "heal", "治疗加成": "heal",
	"shield": "shield", "护盾强效": "shield",
}

// NormalizeStat maps a stat name or alias (English or CN) to a stat bucket
// of this game. The second result is false when s is not a bucket.
func (p *Profile) NormalizeStat(s string) (string, bool) {
	id, ok := statAliases[aliasKey(s)]
	if !ok || !p.statBuckets[id] {
		return "", false
	}
	return id, true
}

// NormalizeMainAttr maps a mainAttr token or alias to its canonical id.
func (p *Profile) NormalizeMainAttr(s string) (string, bool) {
	id, ok := statAliases[aliasKey(s)]
	if !ok || !p.mainAttrs[id] {
		return "", false
	}
	return id, true
}

func aliasKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "", "%", "").Replace(s)
}
