package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/netcarve/internal/config"
)

func TestFormatterPattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %msg %field%n", time: "15:04:05"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "read failed",
		Data: logrus.Fields{
			"interface": "eth0",
			"error":     errors.New("boom"),
			"count":     3,
		},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "03:04:05 [WARNING] read failed count=3,error=boom,interface=eth0\n", string(out))
}

func TestFormatterCallerWithoutReport(t *testing.T) {
	f := &formatter{pattern: "%caller %func", time: time.RFC3339}
	out, err := f.Format(&logrus.Entry{Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "unknown unknown", string(out))
}

func TestNewLogrusLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &logrusAdapter{entry: logrus.NewEntry(newLogrus(config.LogConfig{Level: "warn"}, &buf))}

	l.Info("hidden")
	l.WithField("k", "v").Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown k=v")
	assert.False(t, l.IsInfoEnabled())
	assert.False(t, l.IsDebugEnabled())

	bad := &logrusAdapter{entry: logrus.NewEntry(newLogrus(config.LogConfig{Level: "nope"}, &buf))}
	assert.True(t, bad.IsInfoEnabled())
	assert.False(t, bad.IsDebugEnabled())
}

func TestDefaultLoggerAvailableBeforeInit(t *testing.T) {
	require.NotNil(t, GetLogger())
	assert.True(t, GetLogger().IsInfoEnabled())
}

func TestInitWithFileAppender(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	path := filepath.Join(t.TempDir(), "netcarve.log")
	err := Init(config.LogConfig{
		Level:   "debug",
		Pattern: "[%level] %msg%n",
		File: config.FileOutputConfig{
			Enabled:  true,
			Path:     path,
			Rotation: config.RotationConfig{MaxSizeMB: 1, MaxBackups: 1},
		},
	})
	require.NoError(t, err)

	GetLogger().Debug("to file")
	require.NoError(t, Init(config.LogConfig{Level: "info"})) // closes the file appender

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[DEBUG] to file\n", string(data))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMultiWriterContinuesPastFailure(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiWriter().Add(failingWriter{}).Add(&buf)

	n, err := m.Write([]byte("line"))
	assert.Equal(t, 4, n)
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, "line", buf.String())
	assert.NoError(t, m.Close())
}
