package logger

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/sai-org-registry/types"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("bogus"))
}

func TestErrorWithErrStackAddsCauseAndStack(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapWrapper(zap.New(core))

	root := errors.New("disk full")
	l.ErrorWithErrStack("save failed", errors.Wrap(root, "flush"), zap.String("key_id", "key_1"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "flush: disk full", fields["error"])
	assert.Equal(t, "disk full", fields["cause"])
	assert.Equal(t, "key_1", fields["key_id"])
	assert.NotEmpty(t, fields["stack"])
}

func TestCreateLoggerUnknownType(t *testing.T) {
	_, err := createLogger(&types.LoggerConfig{Type: "syslog"})
	assert.True(t, types.IsError(err, types.ErrLoggerTypeUnknown))

	l, err := createLogger(&types.LoggerConfig{Level: "error", Config: map[string]interface{}{"format": "json"}})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestCreateLoggerCustomType(t *testing.T) {
	var got interface{}
	RegisterLogger("capture", func(config interface{}) (types.Logger, error) {
		got = config
		return NewNop(), nil
	})
	t.Cleanup(func() { delete(customLoggerCreators, "capture") })

	l, err := createLogger(&types.LoggerConfig{Type: "capture", Config: map[string]interface{}{"sink": "mem"}})
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.Equal(t, map[string]interface{}{"sink": "mem"}, got)
}
