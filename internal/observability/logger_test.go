package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	defer func() { _ = SetLevel("info") }()

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, Level())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, zapcore.WarnLevel, Level(), "empty keeps the current level")

	assert.Error(t, SetLevel("loud"))
}

func TestConfigure(t *testing.T) {
	defer func() {
		_ = SetLevel("info")
		InitCLILogger("test", false)
	}()

	require.NoError(t, Configure("test", "structured", "error", false))
	assert.Equal(t, zapcore.ErrorLevel, Level())
	assert.NotNil(t, CLILogger)

	require.NoError(t, Configure("test", "", "error", true))
	assert.Equal(t, zapcore.DebugLevel, Level())

	assert.Error(t, Configure("test", "fancy", "info", false))
}
