// Package alerting emails the configured recipients when a cycle ends at
// red risk.
package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/storage"
)

var _ engine.Alerter = (*SESAlerter)(nil)

// SESAPI is the subset of the SES v2 client the alerter uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

const bodyTemplate = `Brain state v{{ version }} for organization {{ org }} finished at RED risk.

{{ narrative }}

Risks:
{% for r in risks %}- [{{ r.label }}] {{ r.headline }} on {{ r.entity }} (severity {{ r.severity }}, confidence {{ r.confidence }})
{% endfor %}{% if actions.size > 0 %}
Recommended actions:
{% for a in actions %}- {{ a.rationale }} (expected impact {{ a.impact }})
{% endfor %}{% endif %}
Computed at {{ computed_at }} with config {{ config_version }}.
`

// SESAlerter sends one plain-text email per red state.
type SESAlerter struct {
	client SESAPI
	from   string
	to     []string
	body   *liquid.Template
}

func NewSESAlerter(client SESAPI, from string, to []string) (*SESAlerter, error) {
	tpl, err := liquid.NewEngine().ParseString(bodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse alert template: %w", err)
	}
	return &SESAlerter{client: client, from: from, to: to, body: tpl}, nil
}

// New builds the alerter from configuration. It returns nil, nil when
// alerts are disabled.
func New(ctx context.Context, cfg config.AlertsConfig) (*SESAlerter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("alerts need a sender and at least one recipient")
	}
	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Region, "", cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	return NewSESAlerter(sesv2.NewFromConfig(awsCfg), cfg.From, cfg.To)
}

// Subject is the email subject for st.
func Subject(st *face.BrainState) string {
	return fmt.Sprintf("[RED] %s: %d risks (%d critical), ROAS %s",
		st.OrganizationID, st.Summary.RiskCount, st.Summary.CriticalRisks, st.Summary.RoasText)
}

// Body renders the plain-text email body for st.
func (a *SESAlerter) Body(st *face.BrainState) (string, error) {
	risks := make([]map[string]any, 0, len(st.RiskCards))
	for _, c := range st.RiskCards {
		risks = append(risks, map[string]any{
			"label":      strings.ToUpper(c.SeverityLabel),
			"headline":   c.Headline,
			"entity":     c.EntityName,
			"severity":   fmt.Sprintf("%.2f", c.Severity),
			"confidence": fmt.Sprintf("%.2f", c.Confidence),
		})
	}
	actions := make([]map[string]any, 0, len(st.TopActions))
	for _, c := range st.TopActions {
		actions = append(actions, map[string]any{
			"rationale": c.Rationale,
			"impact":    c.ExpectedImpactText,
		})
	}
	out, err := a.body.RenderString(liquid.Bindings{
		"version":        st.Version,
		"org":            st.OrganizationID,
		"narrative":      st.Narrative,
		"risks":          risks,
		"actions":        actions,
		"computed_at":    st.ComputedAt.UTC().Format("2006-01-02 15:04 MST"),
		"config_version": st.ConfigVersion,
	})
	if err != nil {
		return "", fmt.Errorf("render alert body: %w", err)
	}
	return out, nil
}

func (a *SESAlerter) AlertRed(ctx context.Context, st *face.BrainState) error {
	body, err := a.Body(st)
	if err != nil {
		return err
	}
	_, err = a.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(a.from),
		Destination:      &types.Destination{ToAddresses: a.to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(Subject(st)), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("source"), Value: aws.String("perf-brain")},
			{Name: aws.String("risk_level"), Value: aws.String(string(st.Summary.OverallRiskLevel))},
		},
	})
	if err != nil {
		return fmt.Errorf("SES send failed: %w", err)
	}
	return nil
}
