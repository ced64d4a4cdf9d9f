package stats

import "strconv"

// FKDRBenchmarks are the tier thresholds for FKDR coloring.
type FKDRBenchmarks struct {
	Good   float64
	Medium float64
	Low    float64
}

// starColors indexes tier color by stars/100.
var starColors = []string{
	"§7", // 0-99: gray
	"§f", // 100-199: white
	"§6", // 200-299: gold
	"§b", // 300-399: cyan
	"§2", // 400-499: dark green
	"§3", // 500-599: dark aqua
	"§4", // 600-699: dark red
	"§d", // 700-799: pink
	"§9", // 800-899: blue
	"§5", // 900-999: purple
}

// rainbowColors cycle through the digits of a prestige (1000+) star count.
var rainbowColors = []string{"§c", "§6", "§e", "§a", "§d", "§5"}

// FormatLine renders the colored overlay line for one player.
func FormatLine(username string, s Snapshot, b FKDRBenchmarks) string {
	return rankColor(s.Rank) + username + ": " + starText(s.Stars) +
		" §7| " + fkdrColor(s.FKDR, b) + s.FKDRString() + " FKDR §7| §2" + s.Guild
}

func rankColor(r Rank) string {
	switch r {
	case RankMVPPlusPlus:
		return "§6"
	case RankMVPPlus, RankMVP:
		return "§b"
	case RankVIPPlus, RankVIP:
		return "§a"
	default:
		return "§7"
	}
}

func starText(stars int) string {
	if stars >= 1000 {
		return rainbowStarText(stars)
	}
	tier := stars / 100
	if tier < 0 {
		tier = 0
	}
	return starColors[tier] + "[" + strconv.Itoa(stars) + "✫]"
}

// rainbowStarText colors each digit of a prestige star count individually.
func rainbowStarText(stars int) string {
	digits := strconv.Itoa(stars)
	out := rainbowColors[0] + "["
	for i, d := range digits {
		out += rainbowColors[(i+1)%len(rainbowColors)] + string(d)
	}
	out += "✫" + rainbowColors[(len(digits)+1)%len(rainbowColors)] + "]"
	return out
}

func fkdrColor(fkdr float64, b FKDRBenchmarks) string {
	switch {
	case fkdr >= b.Good:
		return "§c" // red
	case fkdr >= b.Medium:
		return "§6" // orange
	case fkdr >= b.Low:
		return "§e" // yellow
	default:
		return "§7" // gray
	}
}
