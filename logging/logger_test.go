package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/hr-engine/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, logging.ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, logging.ParseLevel(" WARN "))
	assert.Equal(t, zapcore.InfoLevel, logging.ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, logging.ParseLevel(""))
}

func TestLogger_SplitsStreams(t *testing.T) {
	// GIVEN: A logger at info
	// WHEN: Debug, info and warn lines are written
	// THEN: Debug is dropped, info goes to out, warn goes to errOut
	var out, errOut bytes.Buffer
	logger, _ := logging.NewWithWriters("info", &out, &errOut)

	logger.Debug("hidden")
	logger.Info("hello", zap.String("k", "v"))
	logger.Warn("careful")
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "v", line["k"])
	assert.Contains(t, line, "ts")

	assert.Contains(t, errOut.String(), "careful")
	assert.NotContains(t, out.String(), "careful")
	assert.NotContains(t, out.String(), "hidden")
}

func TestLogger_LevelIsLive(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, level := logging.NewWithWriters("warn", &out, &errOut)

	logger.Info("before")
	level.SetLevel(zapcore.DebugLevel)
	logger.Debug("after")

	assert.NotContains(t, out.String(), "before")
	assert.Contains(t, out.String(), "after")
}
