package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	testCases := map[string]struct {
		level     string
		format    string
		wantLevel zapcore.Level
	}{
		"console info":  {level: "info", format: "console", wantLevel: zapcore.InfoLevel},
		"json debug":    {level: "debug", format: "json", wantLevel: zapcore.DebugLevel},
		"console error": {level: "error", format: "console", wantLevel: zapcore.ErrorLevel},
	}

	for scenario, tc := range testCases {
		t.Run(scenario, func(t *testing.T) {
			log, err := New(tc.level, tc.format)
			require.NoError(t, err)

			assert.True(t, log.Core().Enabled(tc.wantLevel))
			if tc.wantLevel > zapcore.DebugLevel {
				assert.False(t, log.Core().Enabled(tc.wantLevel-1))
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("verbose", "console")
	assert.ErrorContains(t, err, "invalid log level: verbose")
}

func Test_parseLevel(t *testing.T) {
	lvl, err := parseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = parseLevel("")
	assert.Error(t, err)
}
