package face

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/osteele/liquid"
)

// Narrator renders persona narratives from parsed liquid templates.
// It is safe for concurrent use.
type Narrator struct {
	engine       *liquid.Engine
	normal       map[Persona]*liquid.Template
	insufficient map[Persona]*liquid.Template
	stale        *liquid.Template
}

func NewNarrator() (*Narrator, error) {
	engine := liquid.NewEngine()
	registerFilters(engine)

	n := &Narrator{
		engine:       engine,
		normal:       make(map[Persona]*liquid.Template, len(narrativeTemplates)),
		insufficient: make(map[Persona]*liquid.Template, len(narrativeTemplates)),
	}
	for persona, src := range narrativeTemplates {
		tpl, err := engine.ParseString(src.normal)
		if err != nil {
			return nil, fmt.Errorf("parse %s narrative: %w", persona, err)
		}
		n.normal[persona] = tpl
		tpl, err = engine.ParseString(src.insufficient)
		if err != nil {
			return nil, fmt.Errorf("parse %s insufficient narrative: %w", persona, err)
		}
		n.insufficient[persona] = tpl
	}
	tpl, err := engine.ParseString(staleSuffix)
	if err != nil {
		return nil, fmt.Errorf("parse stale suffix: %w", err)
	}
	n.stale = tpl
	return n, nil
}

func registerFilters(engine *liquid.Engine) {
	engine.RegisterFilter("money", func(v float64) string { return formatMoney(v) })
	engine.RegisterFilter("ratio", func(v float64) string { return formatRatio(v) })
	engine.RegisterFilter("pct", func(v float64) string { return formatPct(v) })
	engine.RegisterFilter("plural", func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	})
}

// Render writes the narrative of st for persona. It reads only the
// structured fields of st, so rendering another persona later yields the
// same figures.
func (n *Narrator) Render(st *BrainState, persona Persona) (string, error) {
	tpl, ok := n.normal[persona]
	if !ok {
		return "", fmt.Errorf("unknown persona %q", persona)
	}
	if st.HasBadge(BadgeInsufficientData) || st.HasBadge(BadgeLowSampleSize) {
		tpl = n.insufficient[persona]
	}

	facts := narrativeFacts(st)
	text, err := tpl.RenderString(facts)
	if err != nil {
		return "", fmt.Errorf("render %s narrative: %w", persona, err)
	}
	if st.Stale {
		suffix, err := n.stale.RenderString(facts)
		if err != nil {
			return "", fmt.Errorf("render stale suffix: %w", err)
		}
		text += " " + suffix
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func narrativeFacts(st *BrainState) liquid.Bindings {
	s := st.Summary
	facts := liquid.Bindings{
		"spend":             s.Spend,
		"revenue":           s.Revenue,
		"roas":              s.OverallRoas,
		"risk_level":        string(s.OverallRiskLevel),
		"ranked":            s.RankedEntities,
		"winners":           s.Winners,
		"losers":            s.Losers,
		"risk_count":        s.RiskCount,
		"critical_count":    s.CriticalRisks,
		"action_count":      len(st.TopActions),
		"top_risk":          "",
		"top_risk_severity": "",
		"top_action":        "",
		"top_action_impact": 0.0,
		"top_action_score":  "",
		"winner_threshold":  0.0,
		"loser_threshold":   0.0,
		"min_ranked":        0,
		"freshness":         st.DataFreshness.Format("2006-01-02"),
	}
	if st.Memory != nil {
		facts["winner_threshold"] = roundTo(st.Memory.WinnerThreshold, 2)
		facts["loser_threshold"] = roundTo(st.Memory.LoserThreshold, 2)
		facts["min_ranked"] = st.Memory.MinRankedEntities
	}
	if len(st.RiskCards) > 0 {
		top := st.RiskCards[0]
		facts["top_risk"] = sentenceCase(top.Headline) + " on " + top.EntityName
		facts["top_risk_severity"] = fmt.Sprintf("%.2f", top.Severity)
	}
	if len(st.TopActions) > 0 {
		top := st.TopActions[0]
		facts["top_action"] = actionPhrase(top)
		facts["top_action_impact"] = top.ExpectedImpact
		facts["top_action_score"] = fmt.Sprintf("%.2f", top.Score)
	}
	return facts
}

func actionPhrase(a ActionCard) string {
	switch a.ActionType {
	case "shift_budget":
		return "shift budget away from " + a.TargetName
	case "pause_creative":
		return "pause creative " + a.TargetName
	case "increase_budget":
		return "increase budget on " + a.TargetName
	case "retention_action":
		return "run a retention program for " + a.TargetName
	}
	return string(a.ActionType) + " on " + a.TargetName
}

// sentenceCase lower-cases a leading capital unless it starts an acronym.
func sentenceCase(s string) string {
	if len(s) < 2 || !unicode.IsUpper(rune(s[0])) || unicode.IsUpper(rune(s[1])) {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
