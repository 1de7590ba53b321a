package face

import (
	"encoding/json"
	"time"

	"github.com/ignite/perf-brain/internal/engine/curiosity"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/engine/oracle"
)

// Persona selects narrative wording. It never changes the numbers.
type Persona string

const (
	PersonaExecutive Persona = "executive"
	PersonaOperator  Persona = "operator"
	PersonaAnalyst   Persona = "analyst"
)

var Personas = []Persona{PersonaExecutive, PersonaOperator, PersonaAnalyst}

// ParsePersona maps a string to a Persona, reporting false when unknown.
func ParsePersona(s string) (Persona, bool) {
	for _, p := range Personas {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Badge codes surfaced when a result is degraded.
const (
	BadgeInsufficientData  = "insufficient_data"
	BadgeLowSampleSize     = "low_sample_size"
	BadgeZeroBaseline      = "zero_baseline"
	BadgeStaleData         = "stale_data"
	BadgeLTVLowConfidence  = "ltv_low_confidence"
	BadgeExcludedEntities  = "excluded_entities"
	BadgeDetectorAbstained = "detector_abstained"
)

type Badge struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Summary holds the top-line figures. The *Text fields are the exact
// strings the narrative uses. Risk counts cover every detected risk, not
// only the ones shown as cards.
type Summary struct {
	Spend            float64      `json:"spend"`
	Revenue          float64      `json:"revenue"`
	OverallRoas      float64      `json:"overall_roas"`
	OverallRiskLevel oracle.Level `json:"overall_risk_level"`
	RankedEntities   int          `json:"ranked_entities"`
	Winners          int          `json:"winners"`
	Losers           int          `json:"losers"`
	RiskCount        int          `json:"risk_count"`
	CriticalRisks    int          `json:"critical_risks"`
	SpendText        string       `json:"spend_text"`
	RevenueText      string       `json:"revenue_text"`
	RoasText         string       `json:"roas_text"`
}

type RiskCard struct {
	Type                 oracle.RiskType `json:"type"`
	EntityID             string          `json:"entity_id"`
	EntityName           string          `json:"entity_name"`
	Severity             float64         `json:"severity"`
	SeverityLabel        string          `json:"severity_label"`
	Confidence           float64         `json:"confidence"`
	LowConfidence        bool            `json:"low_confidence"`
	PredictedHorizonDays int             `json:"predicted_horizon_days"`
	Headline             string          `json:"headline"`
}

type ActionCard struct {
	ActionID           string               `json:"action_id"`
	ActionType         curiosity.ActionType `json:"action_type"`
	TargetEntityID     string               `json:"target_entity_id"`
	TargetName         string               `json:"target_name"`
	ExpectedImpact     float64              `json:"expected_impact"`
	ExpectedImpactText string               `json:"expected_impact_text"`
	Rationale          string               `json:"rationale"`
	Score              float64              `json:"score"`
}

// BrainState is the immutable snapshot of one brain cycle. ID, Version and
// ComputedAt form the envelope assigned when the cycle is persisted;
// everything else is a pure function of the dataset, the configuration and
// AsOf.
type BrainState struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Version        int64     `json:"version"`
	ComputedAt     time.Time `json:"computed_at"`

	AsOf          time.Time       `json:"as_of"`
	Trigger       string          `json:"trigger"`
	ConfigVersion string          `json:"config_version"`
	Config        json.RawMessage `json:"config,omitempty"`
	Persona       Persona         `json:"persona"`
	Stale         bool            `json:"stale"`
	DataFreshness time.Time       `json:"data_freshness"`
	Degraded      bool            `json:"degraded"`
	Badges        []Badge         `json:"badges"`

	Summary     Summary            `json:"summary"`
	Leaderboard memory.Leaderboard `json:"leaderboard"`
	RiskCards   []RiskCard         `json:"risk_cards"`
	TopActions  []ActionCard       `json:"top_actions"`
	Narrative   string             `json:"narrative"`

	Memory    *memory.Output    `json:"memory"`
	Oracle    *oracle.Output    `json:"oracle"`
	Curiosity *curiosity.Output `json:"curiosity"`
}

// HasBadge reports whether the state carries the badge code.
func (s *BrainState) HasBadge(code string) bool {
	for _, b := range s.Badges {
		if b.Code == code {
			return true
		}
	}
	return false
}

// StateSummary is the light listing form of a BrainState.
type StateSummary struct {
	ID               string       `json:"id"`
	OrganizationID   string       `json:"organization_id"`
	Version          int64        `json:"version"`
	ComputedAt       time.Time    `json:"computed_at"`
	Trigger          string       `json:"trigger"`
	ConfigVersion    string       `json:"config_version"`
	OverallRoas      float64      `json:"overall_roas"`
	OverallRiskLevel oracle.Level `json:"overall_risk_level"`
	Stale            bool         `json:"stale"`
	Degraded         bool         `json:"degraded"`
}

func (s *BrainState) Summarize() StateSummary {
	return StateSummary{
		ID:               s.ID,
		OrganizationID:   s.OrganizationID,
		Version:          s.Version,
		ComputedAt:       s.ComputedAt,
		Trigger:          s.Trigger,
		ConfigVersion:    s.ConfigVersion,
		OverallRoas:      s.Summary.OverallRoas,
		OverallRiskLevel: s.Summary.OverallRiskLevel,
		Stale:            s.Stale,
		Degraded:         s.Degraded,
	}
}

// ActionPayload is the record handed to the action executor.
type ActionPayload struct {
	ActionID       string               `json:"action_id"`
	OrganizationID string               `json:"organization_id"`
	BrainStateID   string               `json:"brain_state_id"`
	Version        int64                `json:"version"`
	ActionType     curiosity.ActionType `json:"action_type"`
	TargetEntityID string               `json:"target_entity_id"`
	ExpectedImpact float64              `json:"expected_impact"`
	Rationale      string               `json:"rationale"`
	Details        curiosity.Payload    `json:"details"`
}

// ActionPayloads lists the executor payloads of the state's top actions.
func (s *BrainState) ActionPayloads() []ActionPayload {
	out := make([]ActionPayload, 0, len(s.TopActions))
	if s.Curiosity == nil {
		return out
	}
	for _, a := range s.Curiosity.TopActions {
		out = append(out, ActionPayload{
			ActionID:       s.ID + ":" + a.Key(),
			OrganizationID: s.OrganizationID,
			BrainStateID:   s.ID,
			Version:        s.Version,
			ActionType:     a.Type,
			TargetEntityID: a.TargetEntityID,
			ExpectedImpact: a.ExpectedImpact,
			Rationale:      a.Rationale,
			Details:        a.Payload,
		})
	}
	return out
}

// Params tune presentation.
type Params struct {
	Persona      Persona `yaml:"persona" json:"persona" validate:"oneof=executive operator analyst"`
	MaxRiskCards int     `yaml:"max_risk_cards" json:"max_risk_cards" validate:"min=1"`
	// Risks below this confidence are marked low confidence on their card.
	LowConfidenceBelow float64 `yaml:"low_confidence_below" json:"low_confidence_below" validate:"gte=0,lte=1"`
}

func DefaultParams() Params {
	return Params{
		Persona:            PersonaExecutive,
		MaxRiskCards:       5,
		LowConfidenceBelow: 0.5,
	}
}
