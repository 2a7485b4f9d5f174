package logger

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileOutputWritesJSONWithFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	log := New(Config{Level: "debug", Format: "json", Output: path, MaxSize: 1})

	log.WithComponent("dispatcher").WithField("command_id", "c-1").Info("Команда выполнена.")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	require.Equal(t, "dispatcher", line["component"])
	require.Equal(t, "c-1", line["command_id"])
	require.Equal(t, "info", line["level"])
}

func TestLevelParsing(t *testing.T) {
	require.Equal(t, "warning", New(Config{Level: "warn"}).Logrus().GetLevel().String())
	require.Equal(t, "debug", New(Config{Level: "DEBUG"}).Logrus().GetLevel().String())
	require.Equal(t, "info", New(Config{Level: "bogus"}).Logrus().GetLevel().String())
}

func TestNamedOutputs(t *testing.T) {
	require.Equal(t, os.Stdout, New(Config{}).Logrus().Out)
	require.Equal(t, os.Stderr, New(Config{Output: OutputStderr}).Logrus().Out)
	require.Equal(t, io.Discard, New(Config{Output: OutputDiscard}).Logrus().Out)

	_, err := os.Stat(OutputDiscard)
	require.True(t, os.IsNotExist(err))
}
