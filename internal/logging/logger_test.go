package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelInfo, FormatJSON, &buf)

	logger.WithFields(map[string]interface{}{
		"portfolioId": 7,
		"period":      "HOUR_1",
	}).WithError(errors.New("boom")).Error("snapshot failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))

	assert.Equal(t, "snapshot failed", entry["message"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, float64(7), entry["portfolioId"])
	assert.Equal(t, "HOUR_1", entry["period"])
	assert.Equal(t, "boom", entry["error"])
	assert.Contains(t, entry, "timestamp")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelWarn, FormatJSON, &buf)

	logger.Info("hidden")
	logger.Debugf("hidden %d", 1)
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	logger.SetLevel(LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelInfo, FormatText, &buf)

	logger.WithField("batch", 3).Infof("processed %d portfolios", 5)

	line := buf.String()
	assert.True(t, strings.Contains(line, "INFO"))
	assert.True(t, strings.Contains(line, "processed 5 portfolios"))
	assert.True(t, strings.Contains(line, `"batch": 3`))
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelInfo, FormatJSON, &buf)

	ctx := WithLogger(context.Background(), logger.WithField("requestId", "abc"))
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), `"requestId":"abc"`)
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevelAndFormat(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("verbose"))
	assert.Equal(t, FormatText, ParseLogFormat("console"))
	assert.Equal(t, FormatJSON, ParseLogFormat("yaml"))
}
