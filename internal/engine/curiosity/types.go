package curiosity

import "github.com/ignite/perf-brain/internal/domain"

// ActionType is the closed set of actions the engine can recommend. Each
// type carries its own payload in the matching Payload field.
type ActionType string

const (
	ActionShiftBudget    ActionType = "shift_budget"
	ActionPauseCreative  ActionType = "pause_creative"
	ActionIncreaseBudget ActionType = "increase_budget"
	ActionRetention      ActionType = "retention_action"
)

// ActionTypes lists every action type in a stable order.
var ActionTypes = []ActionType{ActionShiftBudget, ActionPauseCreative, ActionIncreaseBudget, ActionRetention}

type ShiftBudgetPayload struct {
	FromEntityID   string  `json:"from_entity_id"`
	ToEntityID     string  `json:"to_entity_id"`
	Amount         float64 `json:"amount"`
	FromRoas       float64 `json:"from_roas"`
	ToMarginalRoas float64 `json:"to_marginal_roas"`
}

type PauseCreativePayload struct {
	CreativeID  string  `json:"creative_id"`
	CampaignID  string  `json:"campaign_id,omitempty"`
	DailySpend  float64 `json:"daily_spend"`
	HorizonDays int     `json:"horizon_days"`
}

type IncreaseBudgetPayload struct {
	EntityID         string  `json:"entity_id"`
	CurrentSpend     float64 `json:"current_spend"`
	IncrementalSpend float64 `json:"incremental_spend"`
	MarginalRoas     float64 `json:"marginal_roas"`
}

type RetentionPayload struct {
	ChannelID    string  `json:"channel_id"`
	CohortID     string  `json:"cohort_id"`
	LTVGap       float64 `json:"ltv_gap"`
	Customers    int64   `json:"customers"`
	RecoveryRate float64 `json:"recovery_rate"`
}

// Payload holds exactly one non-nil member, matching Action.Type.
type Payload struct {
	ShiftBudget    *ShiftBudgetPayload    `json:"shift_budget,omitempty"`
	PauseCreative  *PauseCreativePayload  `json:"pause_creative,omitempty"`
	IncreaseBudget *IncreaseBudgetPayload `json:"increase_budget,omitempty"`
	Retention      *RetentionPayload      `json:"retention,omitempty"`
}

// Factors are the normalized [0,1] inputs of the composite score.
type Factors struct {
	Impact      float64 `json:"impact"`
	Confidence  float64 `json:"confidence"`
	Urgency     float64 `json:"urgency"`
	Feasibility float64 `json:"feasibility"`
}

// Action is a recommendation. Candidates carry a zero Score until scored.
type Action struct {
	Type             ActionType        `json:"action_type"`
	TargetEntityID   string            `json:"target_entity_id"`
	TargetEntityType domain.EntityType `json:"target_entity_type"`
	TargetName       string            `json:"target_name"`
	ExpectedImpact   float64           `json:"expected_impact"`
	Rationale        string            `json:"rationale"`
	Score            float64           `json:"score"`
	Factors          Factors           `json:"factors"`
	// Confidence and HorizonDays feed the confidence and urgency factors.
	// HorizonDays is 0 when the action has no deadline.
	Confidence  float64 `json:"confidence"`
	HorizonDays int     `json:"horizon_days"`
	Payload     Payload `json:"payload"`
}

// Key identifies an action within a snapshot.
func (a Action) Key() string { return string(a.Type) + ":" + a.TargetEntityID }

type OpportunitySummary struct {
	CandidatesConsidered int                `json:"candidates_considered"`
	CandidatesByType     map[ActionType]int `json:"candidates_by_type"`
	DuplicatesDropped    int                `json:"duplicates_dropped"`
	Truncated            int                `json:"truncated"`
	TotalExpectedImpact  float64            `json:"total_expected_impact"`
}

// MaxTopActions bounds TopActions whatever Params.MaxActions says.
const MaxTopActions = 3

// Output is the CURIOSITY stage result. TopActions never exceeds
// Params.MaxActions (at most MaxTopActions) and is never padded.
type Output struct {
	TopActions         []Action           `json:"top_actions"`
	OpportunitySummary OpportunitySummary `json:"opportunity_summary"`
}

type Weights struct {
	Impact      float64 `yaml:"impact" json:"impact" validate:"gte=0,lte=1"`
	Confidence  float64 `yaml:"confidence" json:"confidence" validate:"gte=0,lte=1"`
	Urgency     float64 `yaml:"urgency" json:"urgency" validate:"gte=0,lte=1"`
	Feasibility float64 `yaml:"feasibility" json:"feasibility" validate:"gte=0,lte=1"`
}

// Sum is the total weight; a valid configuration sums to 1.
func (w Weights) Sum() float64 { return w.Impact + w.Confidence + w.Urgency + w.Feasibility }

// Feasibility is the inverse execution cost of each action type.
type Feasibility struct {
	ShiftBudget    float64 `yaml:"shift_budget" json:"shift_budget" validate:"gte=0,lte=1"`
	PauseCreative  float64 `yaml:"pause_creative" json:"pause_creative" validate:"gte=0,lte=1"`
	IncreaseBudget float64 `yaml:"increase_budget" json:"increase_budget" validate:"gte=0,lte=1"`
	Retention      float64 `yaml:"retention_action" json:"retention_action" validate:"gte=0,lte=1"`
}

func (f Feasibility) For(t ActionType) float64 {
	switch t {
	case ActionShiftBudget:
		return f.ShiftBudget
	case ActionPauseCreative:
		return f.PauseCreative
	case ActionIncreaseBudget:
		return f.IncreaseBudget
	case ActionRetention:
		return f.Retention
	}
	return 0
}

type Params struct {
	Weights     Weights     `yaml:"weights" json:"weights"`
	Feasibility Feasibility `yaml:"feasibility" json:"feasibility"`
	MaxActions  int         `yaml:"max_actions" json:"max_actions" validate:"min=1,max=3"`

	ShiftFraction         float64 `yaml:"shift_fraction" json:"shift_fraction" validate:"gt=0,lte=1"`
	PauseSeverityFloor    float64 `yaml:"pause_severity_floor" json:"pause_severity_floor" validate:"gte=0,lte=1"`
	IncreaseFraction      float64 `yaml:"increase_fraction" json:"increase_fraction" validate:"gt=0,lte=1"`
	MinScaleConversions   int64   `yaml:"min_scale_conversions" json:"min_scale_conversions" validate:"min=0"`
	MaxScaleFrequency     float64 `yaml:"max_scale_frequency" json:"max_scale_frequency" validate:"gt=0"`
	RetentionRecoveryRate float64 `yaml:"retention_recovery_rate" json:"retention_recovery_rate" validate:"gt=0,lte=1"`

	// Urgency falls linearly from 1 at a one-day horizon to 0 at
	// UrgencyHorizonDays. Actions without a horizon get DefaultUrgency.
	UrgencyHorizonDays  int     `yaml:"urgency_horizon_days" json:"urgency_horizon_days" validate:"min=2"`
	DefaultUrgency      float64 `yaml:"default_urgency" json:"default_urgency" validate:"gte=0,lte=1"`
	ConfidenceSpendHalf float64 `yaml:"confidence_spend_half" json:"confidence_spend_half" validate:"gt=0"`
}

func DefaultParams() Params {
	return Params{
		Weights: Weights{Impact: 0.4, Confidence: 0.3, Urgency: 0.2, Feasibility: 0.1},
		Feasibility: Feasibility{
			ShiftBudget:    0.7,
			PauseCreative:  0.9,
			IncreaseBudget: 0.6,
			Retention:      0.4,
		},
		MaxActions:            3,
		ShiftFraction:         0.2,
		PauseSeverityFloor:    0.5,
		IncreaseFraction:      0.2,
		MinScaleConversions:   30,
		MaxScaleFrequency:     3.5,
		RetentionRecoveryRate: 0.5,
		UrgencyHorizonDays:    30,
		DefaultUrgency:        0.25,
		ConfidenceSpendHalf:   1000,
	}
}
