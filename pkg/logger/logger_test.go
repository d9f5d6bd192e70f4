package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(buffer *bytes.Buffer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.MessageKey = "msg"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buffer), zap.DebugLevel)
	return NewFromZap(zap.New(core))
}

func TestLogger_InfoContext_WithRunID(t *testing.T) {
	buffer := &bytes.Buffer{}
	log := newBufferLogger(buffer)

	ctx := WithRunID(context.Background(), "run-123")
	log.InfoContext(ctx, "run started", StringField("source", "openinsider"), IntField("documents", 2))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "run started", entry["msg"])
	assert.Equal(t, "openinsider", entry["source"])
	assert.Equal(t, float64(2), entry["documents"])
	assert.Equal(t, "run-123", entry["run_id"])
}

func TestLogger_ErrorContext_NoRunID(t *testing.T) {
	buffer := &bytes.Buffer{}
	log := newBufferLogger(buffer)

	log.ErrorContext(context.Background(), "fetch failed", ErrorField(errors.New("boom")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))

	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	_, exists := entry["run_id"]
	assert.False(t, exists)
}

func TestNew_FallsBackToInfoOnUnknownLevel(t *testing.T) {
	log, err := New("verbose", "json")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}
