package logger

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
    l, err := New("prod", "")
    require.NoError(t, err)
    assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

    l, err = New("dev", "")
    require.NoError(t, err)
    assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

    l, err = New("prod", "warn")
    require.NoError(t, err)
    assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
    assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}
