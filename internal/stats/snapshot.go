package stats

import (
	"math"
	"strconv"
)

// Rank is the player's purchased rank tier.
type Rank string

const (
	RankNone        Rank = "NONE"
	RankVIP         Rank = "VIP"
	RankVIPPlus     Rank = "VIP_PLUS"
	RankMVP         Rank = "MVP"
	RankMVPPlus     Rank = "MVP_PLUS"
	RankMVPPlusPlus Rank = "MVP_PLUS_PLUS"
)

// monthlySuperstar is the premium-monthly indicator that overrides any
// package rank field.
const monthlySuperstar = "SUPERSTAR"

// expPerStar is the Bedwars experience per prestige star.
const expPerStar = 5000

// Snapshot is the derived, immutable view of one player's statistics.
type Snapshot struct {
	Stars   int
	FKDR    float64
	Rank    Rank
	Guild   string
	Slumber map[string]int
}

// FKDRString renders the ratio with exactly two fraction digits.
func (s Snapshot) FKDRString() string {
	return strconv.FormatFloat(s.FKDR, 'f', 2, 64)
}

// SlumberTotal is the summed slumber ticket count across items.
func (s Snapshot) SlumberTotal() int {
	total := 0
	for _, n := range s.Slumber {
		total += n
	}
	return total
}

// Derive computes a Snapshot from raw statistics and a guild name ("" when
// unaffiliated). Final deaths are floored at 1 so the ratio is always defined.
func Derive(p *Player, guild string) Snapshot {
	snap := Snapshot{Rank: deriveRank(p), Guild: guild}
	if snap.Guild == "" {
		snap.Guild = "No Guild"
	}

	bw := p.Bedwars
	if bw == nil {
		return snap
	}

	snap.Stars = int(bw.Experience / expPerStar)
	deaths := bw.FinalDeaths
	if deaths < 1 {
		deaths = 1
	}
	snap.FKDR = math.Round(float64(bw.FinalKills)/float64(deaths)*100) / 100
	snap.Slumber = bw.Slumber
	return snap
}

func deriveRank(p *Player) Rank {
	if p.MonthlyPackageRank == monthlySuperstar {
		return RankMVPPlusPlus
	}
	if r := p.PackageRank; r != "" && r != string(RankNone) {
		return Rank(r)
	}
	if r := p.NewPackageRank; r != "" && r != string(RankNone) {
		return Rank(r)
	}
	return RankNone
}
