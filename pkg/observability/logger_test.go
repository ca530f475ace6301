package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Info("engine started")

	record := decodeLogLine(t, &buf)
	assert.Equal(t, "engine started", record["msg"])
	assert.Equal(t, "INFO", record["level"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf).
		WithField("user_id", "u1").
		WithFields(map[string]interface{}{"project_id": "p1"})

	logger.Info("revoked")

	record := decodeLogLine(t, &buf)
	assert.Equal(t, "u1", record["user_id"])
	assert.Equal(t, "p1", record["project_id"])
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("boom")).Error("failed")
	record := decodeLogLine(t, &buf)
	assert.Equal(t, "boom", record["error"])

	// Nil error adds nothing.
	buf.Reset()
	logger.WithError(nil).Info("fine")
	record = decodeLogLine(t, &buf)
	_, ok := record["error"]
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("garbage"))
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ResolutionsTotal.WithLabelValues("constellation", "global", "ok").Inc()
	assert.NotNil(t, m.Handler())
}
