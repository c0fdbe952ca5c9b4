package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlogWritesThroughZapCore(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewWithCore(core)

	logger.GetSlog().Info("proposal resolved", "row", 3, "residue", "G", "err", errors.New("boom"))
	logger.GetSlog().Debug("dropped below level")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "proposal resolved", entry.Message)
	fields := entry.ContextMap()
	assert.EqualValues(t, 3, fields["row"])
	assert.Equal(t, "G", fields["residue"])
	assert.Equal(t, "boom", fields["err"])
}

func TestSlogGroupsAndAttrs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core)

	logger.GetSlog().With("run_id", "r1").WithGroup("oracle").Warn("slow", "items", 12)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "r1", fields["run_id"])
	assert.EqualValues(t, 12, fields["oracle.items"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestLogGeneration(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewWithCore(core).WithRunID("run-7")

	logger.LogGeneration(4, 0.25, 1.5, -9.0, 20*time.Millisecond)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-7", fields["run_id"])
	assert.EqualValues(t, 4, fields["generation"])
	assert.Equal(t, 0.25, fields["acceptance_rate"])
}

func TestNewLoggerLevels(t *testing.T) {
	l, err := NewLogger(Config{Level: "debug", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, l.GetSlog())
	assert.Equal(t, zapcore.WarnLevel, parseZapLevel("warn").Level())
	assert.Equal(t, zapcore.InfoLevel, parseZapLevel("nonsense").Level())
}
