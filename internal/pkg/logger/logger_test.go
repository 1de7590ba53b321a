package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_FieldsAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Log(WARN, "alert sent", "recipient", "ops.lead@example.com", "org_id", "org-1", "err", errors.New("boom"))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "alert sent", entry["msg"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "op***@example.com", entry["recipient"])
	assert.Equal(t, "org-1", entry["org_id"])
	assert.Equal(t, "boom", entry["err"])
}

func TestLogger_EmbeddedEmailMasked(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Log(INFO, "dispatch", "detail", "notified jane.doe@example.com about org-1")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "notified ja***@example.com about org-1", entry["detail"])
}

func TestLogger_RedactionDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetRedactPII(false)

	l.Log(INFO, "x", "email", "ab@example.com")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "ab@example.com", entry["email"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetLevel(ERROR)

	l.Log(INFO, "hidden")
	assert.Zero(t, buf.Len())

	l.Log(ERROR, "shown")
	assert.NotZero(t, buf.Len())
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
	assert.Equal(t, "***@***", RedactEmail("ops@example.com,cmo@example.com"))
}

func TestSetLevelFromString(t *testing.T) {
	defer SetLevel(INFO)
	assert.True(t, SetLevelFromString("DEBUG"))
	assert.True(t, SetLevelFromString("warning"))
	assert.False(t, SetLevelFromString("verbose"))
}
