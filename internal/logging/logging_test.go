package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONWithService(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cam.log")
	log, err := New(Config{Level: "debug", OutputPath: out}, "cam-api")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log.Info("analysis completed")
	_ = log.Sync()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"cam-api"`)
	assert.Contains(t, string(data), `"msg":"analysis completed"`)
}

func TestNewUnknownLevelIsInfo(t *testing.T) {
	log, err := New(Config{Level: "loud", OutputPath: filepath.Join(t.TempDir(), "x.log")}, "")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}
