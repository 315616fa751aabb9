package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerTextFormat(t *testing.T) {
	l := NewLogger("runtime.controller")
	l.format = "text"
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Info("tick complete", map[string]interface{}{"run_id": "run-1"})
	out := buf.String()
	assert.Contains(t, out, "runtime.controller")
	assert.Contains(t, out, "tick complete")
	assert.Contains(t, out, "run_id=run-1")
}

func TestLoggerJSONFormat(t *testing.T) {
	l := NewLogger("runtime.controller")
	l.format = "json"
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Info("tick complete", map[string]interface{}{"run_id": "run-1"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "runtime.controller", entry["component"])
	assert.Equal(t, "tick complete", entry["message"])
	assert.Equal(t, "run-1", entry["run_id"])
}

func TestLoggerDebugSuppressedByDefault(t *testing.T) {
	l := NewLogger("x")
	l.debug = false
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.Debug("should not appear", nil)
	assert.Empty(t, buf.String())
}

func TestLoggerErrorRateLimited(t *testing.T) {
	l := NewLogger("x")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Error("first", nil)
	l.Error("second", nil)

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 1, lines)
}

func TestWithComponentPreservesSettings(t *testing.T) {
	l := NewLogger("a")
	l.format = "text"
	child := l.WithComponent("b")
	var buf bytes.Buffer
	child.(*Logger).SetOutput(&buf)
	child.Info("hi", nil)
	assert.Contains(t, buf.String(), "[b]")
}
