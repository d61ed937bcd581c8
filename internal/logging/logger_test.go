package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestGetLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, GetLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, GetLevel("warning"))
	assert.Equal(t, logrus.TraceLevel, GetLevel("trace"))
	assert.Equal(t, logrus.InfoLevel, GetLevel(""))
	assert.Equal(t, logrus.InfoLevel, GetLevel("loud"))
}

func TestOutput_StdoutOnly(t *testing.T) {
	assert.Equal(t, os.Stdout, Output(LoggerSetupParams{}))
}

func TestOutput_FileGetsLogSuffix(t *testing.T) {
	base := filepath.Join(t.TempDir(), "server")
	w := Output(LoggerSetupParams{LogFileName: base})

	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	defer lj.Close()
	assert.Equal(t, base+".log", lj.Filename)

	_, err := lj.Write([]byte("hello\n"))
	require.NoError(t, err)
	data, err := os.ReadFile(base + ".log")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestSetup_SetsLevel(t *testing.T) {
	prev := logrus.GetLevel()
	t.Cleanup(func() {
		logrus.SetLevel(prev)
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})

	Setup(LoggerSetupParams{LogLevel: "error", LogFormatJSON: true})
	assert.Equal(t, logrus.ErrorLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}
