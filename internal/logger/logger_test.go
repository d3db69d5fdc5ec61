package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customizer/internal/models"
	"customizer/internal/version"
)

func testVersion() version.Info {
	return version.Info{
		Version:   "1.2.3",
		GitCommit: "abc1234",
		BuildDate: "2026-03-01",
	}
}

func TestSetupRejectsInvalidLevel(t *testing.T) {
	_, _, err := Setup(models.LoggingConfig{Level: "verbose", Format: "json", Output: "stdout"}, testVersion())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestSetupRequiresFilePathForFileOutput(t *testing.T) {
	_, _, err := Setup(models.LoggingConfig{Level: "info", Format: "json", Output: "file"}, testVersion())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file path is required")
}

func TestSetupStdoutHasNoCloser(t *testing.T) {
	log, closer, err := Setup(models.LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, testVersion())
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Nil(t, closer)
}

func TestFileOutputCarriesVersionFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customizer.log")

	log, closer, err := Setup(models.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	}, testVersion())
	require.NoError(t, err)
	require.NotNil(t, closer)

	log.Info("startup complete", "port", 8080)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "startup complete", entry["msg"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "abc1234", entry["git_commit"])
	assert.Equal(t, float64(8080), entry["port"])
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customizer.log")

	log, closer, err := Setup(models.LoggingConfig{
		Level:    "error",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	}, testVersion())
	require.NoError(t, err)

	log.Info("suppressed")
	log.Error("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "kept")
}

func TestParseLevelIsCaseInsensitive(t *testing.T) {
	for _, level := range []string{"DEBUG", "Info", "warn", "ERROR"} {
		_, err := parseLevel(level)
		assert.NoError(t, err, level)
	}
}
