package face

// Narrative templates, one normal and one degraded variant per persona.
// Every number reaches a template as a raw value and is printed through the
// same filters that fill the Summary text fields.
var narrativeTemplates = map[Persona]struct{ normal, insufficient string }{
	PersonaExecutive: {
		normal: `Spend of {{ spend | money }} returned {{ revenue | money }} in revenue, an overall ROAS of {{ roas | ratio }}.
{% if risk_count > 0 %}Risk is {{ risk_level }} with {{ risk_count }} open {{ risk_count | plural: "issue", "issues" }}, led by {{ top_risk }}.{% else %}No material risks were detected.{% endif %}
{% if action_count > 0 %}Top priority: {{ top_action }}, worth about {{ top_action_impact | money }}.{% endif %}`,
		insufficient: `There is not enough performance data yet to rank channels reliably.
{% if spend > 0 %}Tracked spend so far is {{ spend | money }} against {{ revenue | money }} in revenue.{% endif %}
Recommendations will follow once more history has synced.`,
	},
	PersonaOperator: {
		normal: `{{ winners }} {{ winners | plural: "winner", "winners" }} and {{ losers }} {{ losers | plural: "loser", "losers" }} at a portfolio ROAS of {{ roas | ratio }} on {{ spend | money }} spend.
{% if risk_count > 0 %}{{ risk_count }} {{ risk_count | plural: "risk needs", "risks need" }} attention; start with {{ top_risk }}.{% else %}No risks flagged this cycle.{% endif %}
{% if action_count > 0 %}Next step: {{ top_action }} ({{ top_action_impact | money }} expected).{% endif %}`,
		insufficient: `Insufficient data: {{ ranked }} of {{ min_ranked }} required entities have spend in the window.
{% if risk_count > 0 %}{{ risk_count }} {{ risk_count | plural: "risk was", "risks were" }} still detected; start with {{ top_risk }}.{% else %}No risks could be evaluated yet.{% endif %}
Connect more channels or wait for more days to sync.`,
	},
	PersonaAnalyst: {
		normal: `Overall ROAS {{ roas | ratio }} ({{ revenue | money }} over {{ spend | money }}) across {{ ranked }} ranked entities, winner cut {{ winner_threshold | ratio }}, loser cut {{ loser_threshold | ratio }}.
{% if risk_count > 0 %}{{ risk_count }} {{ risk_count | plural: "risk", "risks" }} ({{ critical_count }} critical), highest severity {{ top_risk_severity }} on {{ top_risk }}.{% else %}No detector crossed its threshold.{% endif %}
{% if action_count > 0 %}Best-scoring action: {{ top_action }} (score {{ top_action_score }}).{% endif %}`,
		insufficient: `Ranking skipped: {{ ranked }} entities with non-zero spend against a minimum of {{ min_ranked }}.
{% if risk_count > 0 %}{{ risk_count }} {{ risk_count | plural: "risk", "risks" }} ({{ critical_count }} critical) from detectors with enough history.{% else %}Detectors abstained or found nothing.{% endif %}
Treat all figures as low confidence.`,
	},
}

// staleSuffix is appended when the underlying data is past its freshness window.
const staleSuffix = `Figures are stale: data was last refreshed on {{ freshness }}.`
