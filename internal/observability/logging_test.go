// ABOUTME: Tests for slog level/format resolution in SetupLogging

package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLogging_DefaultsToInfoAndText(t *testing.T) {
	logger := SetupLogging("", "")
	assert.True(t, logger.Enabled(nil, slog.LevelInfo), "expected info level enabled by default")
	assert.False(t, logger.Enabled(nil, slog.LevelDebug), "expected debug level disabled by default")
}

func TestSetupLogging_DebugLevelEnablesDebug(t *testing.T) {
	logger := SetupLogging("debug", "json")
	assert.True(t, logger.Enabled(nil, slog.LevelDebug), "expected debug level enabled when configured")
}

func TestSetupLogging_WarnLevelDisablesInfo(t *testing.T) {
	logger := SetupLogging("warn", "text")
	assert.False(t, logger.Enabled(nil, slog.LevelInfo), "expected info level disabled when configured as warn")
	assert.True(t, logger.Enabled(nil, slog.LevelWarn), "expected warn level enabled")
}
