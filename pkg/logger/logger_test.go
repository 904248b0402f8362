package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_KeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewLogger(zap.New(core))

	log.Info("Drain submitted", "source", "EQAb..cd", zap.Int("messages", 2))
	log.With("run_id", "r-1").Warn("Fee estimate failed")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "Drain submitted", entries[0].Message)
	assert.Equal(t, "EQAb..cd", entries[0].ContextMap()["source"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["messages"])
	assert.Equal(t, "r-1", entries[1].ContextMap()["run_id"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestNew_FallsBackToInfo(t *testing.T) {
	log := New("not-a-level", "test")
	assert.NotNil(t, log.Zap())
	assert.True(t, log.Zap().Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Zap().Core().Enabled(zap.DebugLevel))
}

func TestForRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := NewLogger(zap.New(core))

	log.ForRequest("req-1", "POST", "/ton-event").Infow("HTTP Request", "status_code", 200)

	entry := logs.All()[0]
	assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
	assert.Equal(t, "/ton-event", entry.ContextMap()["path"])
}
