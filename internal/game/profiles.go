package game

var genshinProfile = buildProfile(
	&Profile{
		Game:         Genshin,
		Blocks:       []string{"a", "e", "q"},
		PercentScale: 100,
		TierMarker:   "命",
	},
	[]reactionSpec{
		{id: "vaporize", amplify: true, aliases: []string{"蒸发"}},
		{id: "melt", amplify: true, aliases: []string{"融化"}},
		{id: "aggravate", amplify: true, aliases: []string{"超激化"}},
		{id: "spread", amplify: true, aliases: []string{"蔓激化"}},
		{id: "swirl", aliases: []string{"扩散"}},
		{id: "burning", aliases: []string{"燃烧", "burn"}},
		{id: "overloaded", aliases: []string{"超载", "overload"}},
		{id: "electroCharged", aliases: []string{"感电", "electro-charged", "ec"}},
		{id: "superConduct", aliases: []string{"超导", "superconduct"}},
		{id: "shatter", aliases: []string{"碎冰"}},
		{id: "bloom", aliases: []string{"绽放"}},
		{id: "burgeon", aliases: []string{"烈绽放"}},
		{id: "hyperBloom", aliases: []string{"超绽放", "hyperbloom"}},
		{id: "lunarCharged", aliases: []string{"月感电", "lunar-charged"}},
	},
	[]string{"phy", "vaporize", "melt", "aggravate", "spread"},
	[]string{
		"atkPct", "atkPlus", "atkBase", "hpPct", "hpPlus", "hpBase",
		"defPct", "defPlus", "defBase", "mastery", "recharge",
		"cpct", "cdmg", "dmg", "phy", "heal", "healInc", "shield", "shieldInc",
		"kx", "enemyDef", "ignore", "fyplus", "fypct", "fybase", "fyinc",
		"vaporize", "melt", "aggravate", "spread", "swirl", "burning",
		"overloaded", "electroCharged", "superConduct", "shatter", "bloom",
		"burgeon", "hyperBloom", "lunarCharged",
	},
	[]string{"a", "a2", "a3", "e", "q"},
	[]string{"Dmg", "Plus", "Cpct", "Cdmg", "Ignore", "Def", "Multi"},
	[]string{"atk", "hp", "def", "mastery", "recharge"},
	[]string{"atk", "hp", "def", "mastery", "recharge", "cpct", "cdmg", "dmg", "phy", "heal", "shield"},
)

var starRailProfile = buildProfile(
	&Profile{
		Game:         StarRail,
		Blocks:       []string{"a", "e", "q", "t", "me", "mt"},
		PercentScale: 1,
		TierMarker:   "魂",
	},
	[]reactionSpec{
		{id: "physicalBreak", aliases: []string{"物理击破", "physical break"}},
		{id: "fireBreak", aliases: []string{"火击破", "fire break"}},
		{id: "iceBreak", aliases: []string{"冰击破", "ice break"}},
		{id: "lightningBreak", aliases: []string{"雷击破", "lightning break"}},
		{id: "windBreak", aliases: []string{"风击破", "wind break"}},
		{id: "quantumBreak", aliases: []string{"量子击破", "quantum break"}},
		{id: "imaginaryBreak", aliases: []string{"虚数击破", "imaginary break"}},
		{id: "superBreak", aliases: []string{"超击破", "super break"}},
		{id: "shock", aliases: []string{"触电"}},
		{id: "burn", aliases: []string{"灼烧"}},
		{id: "windShear", aliases: []string{"风化", "wind shear"}},
		{id: "bleed", aliases: []string{"裂伤"}},
	},
	[]string{"phy", "fire", "ice", "elec", "wind", "quantum", "imaginary"},
	[]string{
		"atkPct", "atkPlus", "hpPct", "hpPlus", "defPct", "defPlus",
		"speedPct", "speedPlus", "cpct", "cdmg", "dmg", "enemydmg",
		"kx", "enemyDef", "ignore", "stance", "effPct", "effDef",
		"recharge", "heal", "healInc", "shield", "shieldInc",
	},
	[]string{"a", "e", "q", "t", "me", "mt", "dot", "break"},
	[]string{"Dmg", "Plus", "Cpct", "Cdmg", "Ignore", "Def", "Kx", "Enemydmg", "Multi"},
	[]string{"atk", "hp", "def", "speed", "stance", "effPct", "effDef", "recharge"},
	[]string{"atk", "hp", "def", "speed", "cpct", "cdmg", "dmg", "stance", "effPct", "effDef", "recharge", "heal", "shield"},
)

// BreakReaction maps a character element to the sr break reaction id.
func BreakReaction(elem string) (string, bool) {
	switch elem {
	case "phy", "physical", "物理":
		return "physicalBreak", true
	case "fire", "火":
		return "fireBreak", true
	case "ice", "冰":
		return "iceBreak", true
	case "elec", "lightning", "雷":
		return "lightningBreak", true
	case "wind", "风":
		return "windBreak", true
	case "quantum", "量子":
		return "quantumBreak", true
	case "imaginary", "虚数":
		return "imaginaryBreak", true
	}
	return "", false
}
