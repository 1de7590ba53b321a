package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/engine/oracle"
)

type fakeSES struct {
	sent []*sesv2.SendEmailInput
	err  error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func redState() *face.BrainState {
	return &face.BrainState{
		ID:             "bs-1",
		OrganizationID: "org-1",
		Version:        7,
		ComputedAt:     time.Date(2026, 3, 30, 12, 0, 0, 0, time.UTC),
		ConfigVersion:  "abc123def456",
		Summary:        face.Summary{OverallRiskLevel: oracle.LevelRed, RoasText: "2.12x", RiskCount: 2, CriticalRisks: 1},
		Narrative:      "Risk is red.",
		RiskCards: []face.RiskCard{
			{Type: oracle.RiskROIDecay, EntityName: "Retargeting", Severity: 1, SeverityLabel: "critical", Confidence: 0.9, Headline: "ROAS down 50.0% against its 14-day baseline"},
			{Type: oracle.RiskCreativeFatigue, EntityName: "video cr-1", Severity: 0.62, SeverityLabel: "high", Confidence: 0.4, Headline: "Frequency at 6.1"},
		},
		TopActions: []face.ActionCard{
			{Rationale: "Shift budget from Retargeting to Prospecting", ExpectedImpactText: "$648.00"},
		},
	}
}

func TestAlertRed_SendsEmail(t *testing.T) {
	ses := &fakeSES{}
	a, err := NewSESAlerter(ses, "brain@example.com", []string{"ops@example.com"})
	require.NoError(t, err)

	require.NoError(t, a.AlertRed(context.Background(), redState()))
	require.Len(t, ses.sent, 1)
	in := ses.sent[0]
	assert.Equal(t, "brain@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "[RED] org-1: 2 risks (1 critical), ROAS 2.12x", aws.ToString(in.Content.Simple.Subject.Data))

	body := aws.ToString(in.Content.Simple.Body.Text.Data)
	assert.Contains(t, body, "Brain state v7 for organization org-1 finished at RED risk.")
	assert.Contains(t, body, "- [CRITICAL] ROAS down 50.0% against its 14-day baseline on Retargeting (severity 1.00, confidence 0.90)")
	assert.Contains(t, body, "- Shift budget from Retargeting to Prospecting (expected impact $648.00)")
	assert.Contains(t, body, "config abc123def456")
}

func TestAlertRed_NoActionsSection(t *testing.T) {
	a, err := NewSESAlerter(&fakeSES{}, "f", []string{"t"})
	require.NoError(t, err)
	st := redState()
	st.TopActions = nil

	body, err := a.Body(st)
	require.NoError(t, err)
	assert.NotContains(t, body, "Recommended actions")
}

func TestAlertRed_SendError(t *testing.T) {
	a, err := NewSESAlerter(&fakeSES{err: errors.New("throttled")}, "f", []string{"t"})
	require.NoError(t, err)
	assert.ErrorContains(t, a.AlertRed(context.Background(), redState()), "throttled")
}

func TestNew(t *testing.T) {
	a, err := New(context.Background(), config.AlertsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = New(context.Background(), config.AlertsConfig{Enabled: true, From: "brain@example.com"})
	assert.Error(t, err)
}
