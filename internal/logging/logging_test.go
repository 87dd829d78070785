package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", &buf)
	l.WithField("sessionId", "abc").Debug("clip added")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "clip added", line["message"])
	assert.Equal(t, "abc", line["sessionId"])
	assert.Equal(t, "debug", line["level"])
}

func TestUnknownLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	l := New("loud", &buf)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.Contains(t, buf.String(), "unknown log level")
}
