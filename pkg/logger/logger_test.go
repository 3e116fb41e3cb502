package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "production", "info")
	t.Cleanup(func() { Log = slog.Default() })

	Info("fee transaction failed", "loan_id", "abc")
	Debug("hidden at info level")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fee transaction failed", line["msg"])
	assert.Equal(t, "abc", line["loan_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
