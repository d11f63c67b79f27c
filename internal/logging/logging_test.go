package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(logrus.DebugLevel, "json", &buf)
	require.NoError(t, err)
	Component(log, "importer").WithField("entity", "gene").Debug("staged")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "importer", line["component"])
	assert.Equal(t, "gene", line["entity"])
	assert.Equal(t, "staged", line["msg"])
}

func TestNewTextLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(logrus.WarnLevel, "text", &buf)
	require.NoError(t, err)
	log.Info("hidden")
	assert.Empty(t, buf.String())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(logrus.InfoLevel, "xml", nil)
	assert.Error(t, err)
}

func TestComponentDefaultsToStandardLogger(t *testing.T) {
	entry := Component(nil, "cli")
	assert.Equal(t, logrus.StandardLogger(), entry.Logger)
	assert.Equal(t, "cli", entry.Data["component"])
}
