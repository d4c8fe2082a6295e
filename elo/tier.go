package elo

// TierInfo is one named rating band.
type TierInfo struct {
	Tier      string `json:"tier"`
	Name      string `json:"name"`
	MinRating int    `json:"minRating"`
	MaxRating int    `json:"maxRating"`
}

// tierBands is ordered by ascending MinRating; bands are contiguous and the
// top band is effectively unbounded.
var tierBands = []TierInfo{
	{"BRONZE_5", "Bronze 5", 0, 199},
	{"BRONZE_4", "Bronze 4", 200, 299},
	{"BRONZE_3", "Bronze 3", 300, 399},
	{"BRONZE_2", "Bronze 2", 400, 499},
	{"BRONZE_1", "Bronze 1", 500, 599},
	{"SILVER_5", "Silver 5", 600, 699},
	{"SILVER_4", "Silver 4", 700, 799},
	{"SILVER_3", "Silver 3", 800, 899},
	{"SILVER_2", "Silver 2", 900, 999},
	{"SILVER_1", "Silver 1", 1000, 1099},
	{"GOLD_5", "Gold 5", 1100, 1199},
	{"GOLD_4", "Gold 4", 1200, 1299},
	{"GOLD_3", "Gold 3", 1300, 1399},
	{"GOLD_2", "Gold 2", 1400, 1499},
	{"GOLD_1", "Gold 1", 1500, 1599},
	{"PLATINUM_5", "Platinum 5", 1600, 1699},
	{"PLATINUM_4", "Platinum 4", 1700, 1799},
	{"PLATINUM_3", "Platinum 3", 1800, 1899},
	{"PLATINUM_2", "Platinum 2", 1900, 1999},
	{"PLATINUM_1", "Platinum 1", 2000, 2099},
	{"DIAMOND_5", "Diamond 5", 2100, 2199},
	{"DIAMOND_4", "Diamond 4", 2200, 2299},
	{"DIAMOND_3", "Diamond 3", 2300, 2399},
	{"DIAMOND_2", "Diamond 2", 2400, 2499},
	{"DIAMOND_1", "Diamond 1", 2500, 2599},
	{"MASTER", "Master", 2600, 2799},
	{"GRANDMASTER", "Grandmaster", 2800, 2999},
	{"LEGEND", "Legend", 3000, 9999},
}

// TierByRating returns the highest band whose lower bound does not exceed
// rating.
func TierByRating(rating int) TierInfo {
	for i := len(tierBands) - 1; i >= 0; i-- {
		if rating >= tierBands[i].MinRating {
			return tierBands[i]
		}
	}
	return tierBands[0]
}

// NextTier returns the band above tier, or false at the top.
func NextTier(tier string) (TierInfo, bool) {
	for i, t := range tierBands {
		if t.Tier == tier && i < len(tierBands)-1 {
			return tierBands[i+1], true
		}
	}
	return TierInfo{}, false
}

// RatingProgress describes how far into the current band a rating sits.
type RatingProgress struct {
	Current      int `json:"current"`
	Max          int `json:"max"`
	Percentage   int `json:"percentage"`
	PointsToNext int `json:"pointsToNext"`
}

// ProgressFor computes band progress for display.
func ProgressFor(rating int) RatingProgress {
	tier := TierByRating(rating)
	next, ok := NextTier(tier.Tier)
	if !ok {
		return RatingProgress{Current: rating, Max: rating, Percentage: 100}
	}

	current := rating - tier.MinRating
	max := next.MinRating - tier.MinRating
	return RatingProgress{
		Current:      current,
		Max:          max,
		Percentage:   current * 100 / max,
		PointsToNext: next.MinRating - rating,
	}
}

// TierIndex returns the band's position in ascending order, for comparing
// two tiers. Unknown tiers rank lowest.
func TierIndex(tier string) int {
	for i, t := range tierBands {
		if t.Tier == tier {
			return i
		}
	}
	return -1
}
