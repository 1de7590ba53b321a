package snowflake

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/domain"
)

func TestParseConnectionString(t *testing.T) {
	connStr := "scheme=https;ACCOUNT=HZDABLB-WLB56571;HOST=HZDABLB-WLB56571.azure.snowflakecomputing.com;port=443;USER=testuser;PASSWORD=testpass;DB=MARKETING.PERFORMANCE;"

	cfg := ParseConnectionString(connStr)
	assert.Equal(t, "HZDABLB-WLB56571", cfg.Account)
	assert.Equal(t, "testuser", cfg.User)
	assert.Equal(t, "testpass", cfg.Password)
	assert.Equal(t, "MARKETING", cfg.Database)
	assert.Equal(t, "PERFORMANCE", cfg.Schema)
}

func TestParseConnectionStringNoTrailingSemicolon(t *testing.T) {
	cfg := ParseConnectionString("ACCOUNT=test;USER=user;PASSWORD=pass;DB=mydb")
	assert.Equal(t, "test", cfg.Account)
	assert.Equal(t, "mydb", cfg.Database)
	assert.Empty(t, cfg.Schema)
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.SnowflakeConfig{
		ConnectionString: "ACCOUNT=acct;USER=brain;PASSWORD=secret",
		Database:         "MARKETING",
		Schema:           "PERFORMANCE",
		Warehouse:        "BRAIN_WH",
	})
	assert.Equal(t, "brain:secret@acct/MARKETING/PERFORMANCE?warehouse=BRAIN_WH", cfg.DSN())
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestReader_DailyMetrics(t *testing.T) {
	db, mock := newMock(t)
	asOf := time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)
	w := domain.LookbackWindow(asOf, 7)

	mock.ExpectQuery(regexp.QuoteMeta("FROM DAILY_METRICS")).
		WithArgs("org-1", w.From, w.To).
		WillReturnRows(sqlmock.NewRows([]string{"ENTITY_ID", "ENTITY_TYPE", "DATE", "SPEND", "IMPRESSIONS", "CLICKS", "CONVERSIONS", "REVENUE", "FREQUENCY"}).
			AddRow("ch-1", "channel", asOf, 300.0, int64(15000), int64(300), int64(30), 900.0, 2.0))

	rows, err := NewReader(db).DailyMetrics(context.Background(), "org-1", w)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.EntityChannel, rows[0].EntityType)
	assert.Equal(t, 900.0, rows[0].Revenue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReader_CohortsVariantTrend(t *testing.T) {
	db, mock := newMock(t)
	acquired := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM COHORTS")).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "ORGANIZATION_ID", "CHANNEL_ID", "ACQUISITION_PERIOD", "CUSTOMER_COUNT", "REVENUE_AT_90_DAYS", "REVENUE_TREND"}).
			AddRow("coh-1", "org-1", "ch-1", acquired, int64(120), 0.0, `[{"day":0,"revenue":20},{"day":60,"revenue":55}]`))

	cohorts, err := NewReader(db).Cohorts(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, cohorts, 1)
	require.Len(t, cohorts[0].RevenueTrend, 2)
	assert.Equal(t, 60, cohorts[0].RevenueTrend[1].Day)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReader_LastSyncedAtNoSyncs(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM CONNECTOR_SYNCS")).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"MAX"}).AddRow(nil))

	got, err := NewReader(db).LastSyncedAt(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestReader_OrganizationIDs(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ORGANIZATION_ID FROM CHANNELS")).
		WillReturnRows(sqlmock.NewRows([]string{"ORGANIZATION_ID"}).AddRow("org-1").AddRow("org-2"))

	ids, err := NewReader(db).OrganizationIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1", "org-2"}, ids)
}
