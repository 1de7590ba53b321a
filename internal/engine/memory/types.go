package memory

import "github.com/ignite/perf-brain/internal/domain"

// Tier is an entity's performance class relative to the portfolio.
type Tier string

const (
	TierWinner  Tier = "winner"
	TierLoser   Tier = "loser"
	TierNeutral Tier = "neutral"
	// TierUnranked covers zero-spend entities and cycles with too few
	// ranked entities to compare.
	TierUnranked Tier = "unranked"
)

type LTVConfidence string

const (
	LTVConfidenceHigh LTVConfidence = "high"
	LTVConfidenceLow  LTVConfidence = "low"
)

// Params tune attribution and ranking.
type Params struct {
	LookbackDays int `yaml:"lookback_days" json:"lookback_days" validate:"min=1,max=365"`
	// An entity is a winner at or above WinnerRatio*overallRoas and a loser
	// at or below LoserRatio*overallRoas.
	WinnerRatio       float64 `yaml:"winner_ratio" json:"winner_ratio" validate:"gt=1"`
	LoserRatio        float64 `yaml:"loser_ratio" json:"loser_ratio" validate:"gt=0,lt=1"`
	MinRankedEntities int     `yaml:"min_ranked_entities" json:"min_ranked_entities" validate:"min=2"`
	CohortMinAgeDays  int     `yaml:"cohort_min_age_days" json:"cohort_min_age_days" validate:"min=1"`
	// MarginalRoasDiscount scales blended ROAS into the return expected
	// from the next dollar of spend.
	MarginalRoasDiscount float64 `yaml:"marginal_roas_discount" json:"marginal_roas_discount" validate:"gt=0,lte=1"`
}

func DefaultParams() Params {
	return Params{
		LookbackDays:         30,
		WinnerRatio:          1.15,
		LoserRatio:           0.85,
		MinRankedEntities:    2,
		CohortMinAgeDays:     90,
		MarginalRoasDiscount: 0.8,
	}
}

// EntityInsight is the profitability of one channel or campaign over the
// lookback window. The ROAS fields are null when spend is zero.
type EntityInsight struct {
	EntityID        string            `json:"entity_id"`
	EntityType      domain.EntityType `json:"entity_type"`
	ChannelID       string            `json:"channel_id"`
	Name            string            `json:"name"`
	Spend           float64           `json:"spend"`
	Revenue         float64           `json:"revenue"`
	Impressions     int64             `json:"impressions"`
	Clicks          int64             `json:"clicks"`
	Conversions     int64             `json:"conversions"`
	Frequency       float64           `json:"frequency"`
	DaysActive      int               `json:"days_active"`
	BlendedRoas     *float64          `json:"blended_roas"`
	LTVAdjustedRoas *float64          `json:"ltv_adjusted_roas"`
	MarginalRoas    *float64          `json:"marginal_roas"`
	LTVFactor       float64           `json:"ltv_factor"`
	LTVCohortID     string            `json:"ltv_cohort_id,omitempty"`
	LTVConfidence   LTVConfidence     `json:"ltv_confidence"`
	Tier            Tier              `json:"tier"`
}

// Ranked reports whether the entity has a ROAS and takes part in ranking.
func (e EntityInsight) Ranked() bool { return e.BlendedRoas != nil }

type LeaderboardEntry struct {
	EntityID   string            `json:"entity_id"`
	EntityType domain.EntityType `json:"entity_type"`
	Name       string            `json:"name"`
	Roas       float64           `json:"roas"`
	Spend      float64           `json:"spend"`
	Revenue    float64           `json:"revenue"`
}

// Leaderboard partitions the ranked entities. Winners are ordered best
// first, losers worst first.
type Leaderboard struct {
	Winners []LeaderboardEntry `json:"winners"`
	Losers  []LeaderboardEntry `json:"losers"`
	Neutral []LeaderboardEntry `json:"neutral"`
}

// Size is the number of entities across the three tiers.
func (l Leaderboard) Size() int { return len(l.Winners) + len(l.Losers) + len(l.Neutral) }

// Output is the MEMORY stage result.
type Output struct {
	RankLevel       domain.EntityType `json:"rank_level"`
	Window          domain.Window     `json:"window"`
	ChannelInsights []EntityInsight   `json:"channel_insights"`
	Leaderboard     Leaderboard       `json:"leaderboard"`
	OverallRoas     float64           `json:"overall_roas"`
	WinnerThreshold float64           `json:"winner_threshold"`
	LoserThreshold  float64           `json:"loser_threshold"`
	TotalSpend      float64           `json:"total_spend"`
	TotalRevenue    float64           `json:"total_revenue"`
	RankedCount     int               `json:"ranked_count"`
	// MinRankedEntities is the ranking floor in force for the cycle.
	MinRankedEntities int                  `json:"min_ranked_entities"`
	LowSampleSize     bool                 `json:"low_sample_size"`
	// ZeroBaseline is set when the ranked population earned no revenue;
	// every ranked entity is then neutral.
	ZeroBaseline bool                 `json:"zero_baseline"`
	Exclusions   []domain.EntityError `json:"exclusions"`
}

// Insight looks up an entity's insight by id.
func (o *Output) Insight(entityID string) (EntityInsight, bool) {
	for _, in := range o.ChannelInsights {
		if in.EntityID == entityID {
			return in, true
		}
	}
	return EntityInsight{}, false
}
