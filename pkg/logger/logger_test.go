package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(WARN)
	log.SetOutput(&buf)

	log.Debugw("debug message")
	log.Infow("info message")
	log.Warnw("warn message")
	log.Errorw("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestStructuredKeyValues(t *testing.T) {
	var buf bytes.Buffer
	log := New(DEBUG)
	log.SetOutput(&buf)

	log.Infow("request handled", "userID", 42, "path", "/api/health")

	out := buf.String()
	assert.Contains(t, out, "request handled")
	assert.Contains(t, out, "userID=42")
	assert.Contains(t, out, "path=/api/health")
}

func TestOddKeyValueTail(t *testing.T) {
	var buf bytes.Buffer
	log := New(DEBUG)
	log.SetOutput(&buf)

	// Ключ без значения не должен терять хвост пар
	log.Warnw("odd pairs", "orphan")

	assert.Contains(t, buf.String(), "orphan=MISSING_VALUE")
}
