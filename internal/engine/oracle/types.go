package oracle

import "github.com/ignite/perf-brain/internal/domain"

type RiskType string

const (
	RiskCreativeFatigue RiskType = "creative_fatigue"
	RiskROIDecay        RiskType = "roi_decay"
	RiskLTVDrift        RiskType = "ltv_drift"
)

// Level is the traffic-light rollup of all risks in a cycle.
type Level string

const (
	LevelGreen  Level = "green"
	LevelYellow Level = "yellow"
	LevelRed    Level = "red"
)

// Risk is one flagged condition. ContributingMetrics holds the inputs that
// tripped the detector so the flag can be explained from the snapshot alone.
type Risk struct {
	Type                 RiskType           `json:"type"`
	EntityID             string             `json:"entity_id"`
	EntityType           domain.EntityType  `json:"entity_type"`
	EntityName           string             `json:"entity_name"`
	ChannelID            string             `json:"channel_id"`
	CampaignID           string             `json:"campaign_id,omitempty"`
	CohortID             string             `json:"cohort_id,omitempty"`
	Severity             float64            `json:"severity"`
	Confidence           float64            `json:"confidence"`
	PredictedHorizonDays int                `json:"predicted_horizon_days"`
	ContributingMetrics  map[string]float64 `json:"contributing_metrics"`
}

// Metric returns a contributing metric, or 0 when absent.
func (r Risk) Metric(name string) float64 { return r.ContributingMetrics[name] }

type FatigueParams struct {
	WindowDays     int     `yaml:"window_days" json:"window_days" validate:"min=3"`
	MinHistoryDays int     `yaml:"min_history_days" json:"min_history_days" validate:"min=1"`
	CVRDropPct     float64 `yaml:"cvr_drop_pct" json:"cvr_drop_pct" validate:"gt=0,lt=1"`
	CPARisePct     float64 `yaml:"cpa_rise_pct" json:"cpa_rise_pct" validate:"gt=0"`
	MaxFrequency   float64 `yaml:"max_frequency" json:"max_frequency" validate:"gt=0"`
	MinImpressions int64   `yaml:"min_impressions" json:"min_impressions" validate:"min=0"`
	MinConversions int64   `yaml:"min_conversions" json:"min_conversions" validate:"min=0"`
	MinHorizonDays int     `yaml:"min_horizon_days" json:"min_horizon_days" validate:"min=1"`
	MaxHorizonDays int     `yaml:"max_horizon_days" json:"max_horizon_days" validate:"gtefield=MinHorizonDays"`
}

type ROIDecayParams struct {
	BaselineDays    int     `yaml:"baseline_days" json:"baseline_days" validate:"min=1"`
	CurrentDays     int     `yaml:"current_days" json:"current_days" validate:"min=1"`
	MinCurrentDays  int     `yaml:"min_current_days" json:"min_current_days" validate:"min=1,ltefield=CurrentDays"`
	MinBaselineDays int     `yaml:"min_baseline_days" json:"min_baseline_days" validate:"min=1,ltefield=BaselineDays"`
	DropPct         float64 `yaml:"drop_pct" json:"drop_pct" validate:"gt=0,lt=1"`
	MaxHorizonDays  int     `yaml:"max_horizon_days" json:"max_horizon_days" validate:"min=1"`
}

type LTVDriftParams struct {
	DropPct         float64 `yaml:"drop_pct" json:"drop_pct" validate:"gt=0,lt=1"`
	MinCohorts      int     `yaml:"min_cohorts" json:"min_cohorts" validate:"min=2"`
	MaxPriorCohorts int     `yaml:"max_prior_cohorts" json:"max_prior_cohorts" validate:"min=1"`
	HorizonDays     int     `yaml:"horizon_days" json:"horizon_days" validate:"min=1"`
}

// Params tune the three detectors and the rollup.
type Params struct {
	Fatigue  FatigueParams  `yaml:"fatigue" json:"fatigue"`
	ROIDecay ROIDecayParams `yaml:"roi_decay" json:"roi_decay"`
	LTVDrift LTVDriftParams `yaml:"ltv_drift" json:"ltv_drift"`
	// CriticalSeverity turns the rollup red.
	CriticalSeverity float64 `yaml:"critical_severity" json:"critical_severity" validate:"gt=0,lte=1"`
	// Volumes at which sample-size confidence reaches one half.
	ConfidenceImpressionsHalf float64 `yaml:"confidence_impressions_half" json:"confidence_impressions_half" validate:"gt=0"`
	ConfidenceConversionsHalf float64 `yaml:"confidence_conversions_half" json:"confidence_conversions_half" validate:"gt=0"`
	ConfidenceCustomersHalf   float64 `yaml:"confidence_customers_half" json:"confidence_customers_half" validate:"gt=0"`
}

func DefaultParams() Params {
	return Params{
		Fatigue: FatigueParams{
			WindowDays:     7,
			MinHistoryDays: 7,
			CVRDropPct:     0.20,
			CPARisePct:     0.25,
			MaxFrequency:   3.5,
			MinImpressions: 1000,
			MinConversions: 10,
			MinHorizonDays: 7,
			MaxHorizonDays: 14,
		},
		ROIDecay: ROIDecayParams{
			BaselineDays:    14,
			CurrentDays:     7,
			MinCurrentDays:  3,
			MinBaselineDays: 7,
			DropPct:         0.15,
			MaxHorizonDays:  30,
		},
		LTVDrift: LTVDriftParams{
			DropPct:         0.10,
			MinCohorts:      2,
			MaxPriorCohorts: 3,
			HorizonDays:     90,
		},
		CriticalSeverity:          0.75,
		ConfidenceImpressionsHalf: 10000,
		ConfidenceConversionsHalf: 50,
		ConfidenceCustomersHalf:   100,
	}
}

// Output is the ORACLE stage result. Abstentions list entities a detector
// looked at but could not judge, such as a channel with a single cohort.
type Output struct {
	Risks            []Risk               `json:"risks"`
	OverallRiskLevel Level                `json:"overall_risk_level"`
	CriticalSeverity float64              `json:"critical_severity"`
	Abstentions      []domain.EntityError `json:"abstentions"`
}

// RisksFor returns the risks of one type raised against entityID.
func (o *Output) RisksFor(t RiskType, entityID string) []Risk {
	var out []Risk
	for _, r := range o.Risks {
		if r.Type == t && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out
}

// Critical reports whether r reaches the red threshold.
func (o *Output) Critical(r Risk) bool { return r.Severity >= o.CriticalSeverity }
